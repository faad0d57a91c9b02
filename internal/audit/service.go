package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogManualRetry records an operator-triggered retry of a processing record.
func (s *Service) LogManualRetry(ctx context.Context, workspaceID, actorUserID, actorRole, recordID string) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeManualRetry,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		RecordID:    recordID,
		Message:     "manual retry requested",
	})
}

// LogBillingFinalized records the finalization of a monthly billing snapshot.
func (s *Service) LogBillingFinalized(ctx context.Context, workspaceID, actorUserID, actorRole, month string) error {
	return s.Append(ctx, Event{
		WorkspaceID:  workspaceID,
		Type:         EventTypeBillingFinalized,
		ActorUserID:  actorUserID,
		ActorRole:    actorRole,
		BillingMonth: month,
		Message:      "billing month finalized",
	})
}

// LogJobDispatched records a scheduler tick dispatching a recurring job.
func (s *Service) LogJobDispatched(ctx context.Context, workspaceID, jobType string) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeJobDispatched,
		JobType:     jobType,
		Message:     "recurring job dispatched",
	})
}
