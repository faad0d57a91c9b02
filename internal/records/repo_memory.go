package records

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// It preserves the compare-and-swap semantics of UpdateWhereStatus so race
// behavior can be exercised without Postgres.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Record // key: id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]Record{}}
}

func (m *MemoryStore) GetByID(ctx context.Context, workspaceID, id string) (Record, error) {
	if workspaceID == "" {
		return Record{}, errors.New("workspace_id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.WorkspaceID != workspaceID {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) FindBySource(ctx context.Context, workspaceID, sourceType, externalID string) (Record, bool, error) {
	if workspaceID == "" {
		return Record{}, false, errors.New("workspace_id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.WorkspaceID == workspaceID && r.SourceType == sourceType && r.ExternalID == externalID {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}

func (m *MemoryStore) Insert(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ID]; ok {
		return errors.New("records: duplicate id")
	}
	for _, existing := range m.rows {
		if existing.WorkspaceID == r.WorkspaceID &&
			existing.SourceType == r.SourceType && existing.ExternalID == r.ExternalID {
			return errors.New("records: duplicate composite key")
		}
	}
	m.rows[r.ID] = r
	return nil
}

func (m *MemoryStore) UpdateWhereStatus(ctx context.Context, r Record, expected Status) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[r.ID]
	if !ok || stored.WorkspaceID != r.WorkspaceID || stored.Status != expected {
		return 0, nil
	}
	r.CreatedAt = stored.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	m.rows[r.ID] = r
	return 1, nil
}

func (m *MemoryStore) ListCompletedDurations(ctx context.Context, workspaceID string, from, to time.Time) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, r := range m.rows {
		if r.WorkspaceID != workspaceID || r.Status != StatusCompleted || r.DurationSeconds == nil {
			continue
		}
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		out = append(out, *r.DurationSeconds)
	}
	return out, nil
}
