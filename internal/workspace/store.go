package workspace

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("workspace: not found")

// Store loads and saves per-workspace settings.
type Store interface {
	GetSettings(ctx context.Context, workspaceID string) (Settings, error)
	UpdateSettings(ctx context.Context, workspaceID string, s Settings) error
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[string]Settings)}
}

func (m *MemoryStore) Put(workspaceID string, s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[workspaceID] = s
}

func (m *MemoryStore) UpdateSettings(ctx context.Context, workspaceID string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.Put(workspaceID, s)
	return nil
}

func (m *MemoryStore) GetSettings(ctx context.Context, workspaceID string) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[workspaceID]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return s, nil
}
