package billing

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
// SetFinalized keeps the conditional semantics of the SQL implementation.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]BillingMonth // key: workspace_id|month
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]BillingMonth{}}
}

func monthKey(workspaceID, month string) string {
	return workspaceID + "|" + month
}

func (r *MemoryRepo) Get(ctx context.Context, workspaceID, month string) (BillingMonth, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bm, ok := r.rows[monthKey(workspaceID, month)]
	return bm, ok, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, bm BillingMonth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := monthKey(bm.WorkspaceID, bm.Month)
	if existing, ok := r.rows[key]; ok {
		// Finalized rows never change; the service checks first, this is the
		// storage-level backstop.
		if existing.IsFinalized {
			return ErrAlreadyFinalized
		}
		bm.IsFinalized = existing.IsFinalized
		bm.FinalizedAt = existing.FinalizedAt
	}
	r.rows[key] = bm
	return nil
}

func (r *MemoryRepo) SetFinalized(ctx context.Context, workspaceID, month string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := monthKey(workspaceID, month)
	bm, ok := r.rows[key]
	if !ok || bm.IsFinalized {
		return 0, nil
	}
	t := at.UTC()
	bm.IsFinalized = true
	bm.FinalizedAt = &t
	r.rows[key] = bm
	return 1, nil
}
