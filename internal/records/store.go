package records

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("records: not found")

// Store is the persistence contract for processing records.
//
// UpdateWhereStatus is the serialization mechanism for concurrent workers:
// it writes the record's processing fields only where the stored row still has
// the expected status, and reports rows affected. Zero rows means another
// worker won the claim; callers must treat that as a no-op, not an error.
// No in-process lock is assumed sufficient because multiple processes may
// share the store.
type Store interface {
	GetByID(ctx context.Context, workspaceID, id string) (Record, error)

	// FindBySource looks up a record by its upstream composite key.
	FindBySource(ctx context.Context, workspaceID, sourceType, externalID string) (Record, bool, error)

	Insert(ctx context.Context, r Record) error

	UpdateWhereStatus(ctx context.Context, r Record, expected Status) (int64, error)

	// ListCompletedDurations returns the known durations (seconds) of completed
	// records created in [from, to) for the workspace.
	ListCompletedDurations(ctx context.Context, workspaceID string, from, to time.Time) ([]int, error)
}
