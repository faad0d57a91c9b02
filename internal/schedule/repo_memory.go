package schedule

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
// MarkRun keeps the conditional semantics of the SQL implementation.
type MemoryRepo struct {
	mu   sync.Mutex
	jobs map[string]JobDefinition // key: workspace_id|job_type
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: map[string]JobDefinition{}}
}

func jobKey(workspaceID string, jobType JobType) string {
	return workspaceID + "|" + string(jobType)
}

func (r *MemoryRepo) Put(job JobDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobKey(job.WorkspaceID, job.Type)] = job
}

func (r *MemoryRepo) GetJob(ctx context.Context, workspaceID string, jobType JobType) (JobDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobKey(workspaceID, jobType)]
	if !ok {
		return JobDefinition{}, ErrNotFound
	}
	return job, nil
}

func (r *MemoryRepo) ListEnabled(ctx context.Context, jobType JobType) ([]JobDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobDefinition, 0)
	for _, job := range r.jobs {
		if job.Type == jobType && job.Enabled {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpsertJob(ctx context.Context, job JobDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := jobKey(job.WorkspaceID, job.Type)
	now := time.Now().UTC()
	if existing, ok := r.jobs[key]; ok {
		// Keep the run bookkeeping of the existing row.
		job.LastRunAtUTC = existing.LastRunAtUTC
		job.CreatedAt = existing.CreatedAt
	} else {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	r.jobs[key] = job
	return nil
}

func (r *MemoryRepo) MarkRun(ctx context.Context, workspaceID string, jobType JobType, expectedLastRun *time.Time, ranAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := jobKey(workspaceID, jobType)
	job, ok := r.jobs[key]
	if !ok {
		return 0, nil
	}
	if !sameInstant(job.LastRunAtUTC, expectedLastRun) {
		return 0, nil
	}
	t := ranAt.UTC()
	job.LastRunAtUTC = &t
	job.UpdatedAt = time.Now().UTC()
	r.jobs[key] = job
	return 1, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
