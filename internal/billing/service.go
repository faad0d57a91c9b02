package billing

import (
	"context"
	"errors"
	"time"

	"voicedesk-platform/internal/audit"
	"voicedesk-platform/internal/auth"
	"voicedesk-platform/pkg/logger"
)

var (
	ErrAlreadyFinalized = errors.New("billing: month already finalized")
	ErrNotFound         = errors.New("billing: month not found")
	ErrInvalidRequest   = errors.New("billing: invalid request")
)

const monthLayout = "2006-01"

// Repository is the persistence contract for billing months.
//
// SetFinalized must be conditional on is_finalized = FALSE so Finalize is the
// single writer of that flag even under concurrent calls.
type Repository interface {
	Get(ctx context.Context, workspaceID, month string) (BillingMonth, bool, error)
	Upsert(ctx context.Context, bm BillingMonth) error
	SetFinalized(ctx context.Context, workspaceID, month string, at time.Time) (int64, error)
}

// DurationSource provides the raw completed-record durations a recompute
// aggregates. Satisfied by records.Store.
type DurationSource interface {
	ListCompletedDurations(ctx context.Context, workspaceID string, from, to time.Time) ([]int, error)
}

// Service rolls per-workspace audio usage up into monthly snapshots.
//
// Recompute always derives the full aggregate from source records instead of
// incrementing, so repeated recomputes (one per newly completed record is
// fine) cannot drift from double-counting or missed corrections.
type Service struct {
	repo      Repository
	durations DurationSource
	audit     *audit.Service // best-effort, may be nil

	clock func() time.Time
}

func NewService(repo Repository, durations DurationSource) *Service {
	return &Service{repo: repo, durations: durations, clock: time.Now}
}

// planLocation resolves the zone month bounds are evaluated in, so bounds
// line up with the month keys the rollup derives. UTC when the plan carries
// no zone or the zone does not resolve.
func planLocation(plan Plan) *time.Location {
	if plan.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(plan.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WithAudit wires best-effort audit logging for finalization.
func (s *Service) WithAudit(a *audit.Service) *Service {
	s.audit = a
	return s
}

// Charges is the pure pricing computation, kept separate from persistence.
func Charges(plan Plan, audioSeconds int64) BillingMonth {
	includedSeconds := int64(plan.IncludedAudioHours) * 3600
	overageSeconds := audioSeconds - includedSeconds
	if overageSeconds < 0 {
		overageSeconds = 0
	}

	// Minutes round up: a started minute bills as a whole one.
	audioMinutes := (audioSeconds + 59) / 60
	overageMinutes := (overageSeconds + 59) / 60
	overageCharge := overageMinutes * plan.OverageRatePerMinuteMinor

	return BillingMonth{
		AudioSeconds:               audioSeconds,
		AudioMinutes:               audioMinutes,
		OverageSeconds:             overageSeconds,
		OverageMinutes:             overageMinutes,
		OverageChargeMinor:         overageCharge,
		TotalChargeMinor:           plan.BaseMonthlyChargeMinor + overageCharge,
		Currency:                   plan.Currency,
		BasePlanMonthlyChargeMinor: plan.BaseMonthlyChargeMinor,
		BasePlanIncludedAudioHours: plan.IncludedAudioHours,
	}
}

// Recompute re-derives the month's aggregate and writes the snapshot.
// Rejected without a write when the month is already finalized.
func (s *Service) Recompute(ctx context.Context, workspaceID, month string, plan Plan) (BillingMonth, error) {
	if workspaceID == "" {
		return BillingMonth{}, ErrInvalidRequest
	}
	from, to, err := MonthBounds(month, planLocation(plan))
	if err != nil {
		return BillingMonth{}, err
	}

	if existing, ok, err := s.repo.Get(ctx, workspaceID, month); err != nil {
		return BillingMonth{}, err
	} else if ok && existing.IsFinalized {
		return BillingMonth{}, ErrAlreadyFinalized
	}

	durations, err := s.durations.ListCompletedDurations(ctx, workspaceID, from, to)
	if err != nil {
		return BillingMonth{}, err
	}
	var audioSeconds int64
	for _, d := range durations {
		audioSeconds += int64(d)
	}

	bm := Charges(plan, audioSeconds)
	bm.WorkspaceID = workspaceID
	bm.Month = month
	bm.CalculatedAt = s.clock().UTC()

	if err := s.repo.Upsert(ctx, bm); err != nil {
		return BillingMonth{}, err
	}
	return bm, nil
}

// Finalize locks the month. Requires an existing, computed row. A second call
// on an already-finalized month is a no-op, not an error.
func (s *Service) Finalize(ctx context.Context, workspaceID, month string) (BillingMonth, error) {
	if workspaceID == "" {
		return BillingMonth{}, ErrInvalidRequest
	}
	// Format check only; the zone never shifts what "YYYY-MM" parses to.
	if _, _, err := MonthBounds(month, time.UTC); err != nil {
		return BillingMonth{}, err
	}

	existing, ok, err := s.repo.Get(ctx, workspaceID, month)
	if err != nil {
		return BillingMonth{}, err
	}
	if !ok {
		return BillingMonth{}, ErrNotFound
	}
	if existing.IsFinalized {
		return existing, nil
	}

	now := s.clock().UTC()
	if _, err := s.repo.SetFinalized(ctx, workspaceID, month, now); err != nil {
		return BillingMonth{}, err
	}
	// A lost race here means someone else finalized; re-read either way.
	final, _, err := s.repo.Get(ctx, workspaceID, month)
	if err != nil {
		return BillingMonth{}, err
	}

	if s.audit != nil {
		_ = s.audit.LogBillingFinalized(ctx, workspaceID, actorUser(ctx), actorRole(ctx), month)
	}
	logger.From(ctx).Info("billing month finalized",
		"workspace_id", workspaceID,
		"month", month,
		"total_charge_minor", final.TotalChargeMinor,
	)
	return final, nil
}

// Get returns the stored snapshot for the month.
func (s *Service) Get(ctx context.Context, workspaceID, month string) (BillingMonth, error) {
	if workspaceID == "" {
		return BillingMonth{}, ErrInvalidRequest
	}
	bm, ok, err := s.repo.Get(ctx, workspaceID, month)
	if err != nil {
		return BillingMonth{}, err
	}
	if !ok {
		return BillingMonth{}, ErrNotFound
	}
	return bm, nil
}

func actorUser(ctx context.Context) string {
	u, _ := auth.UserID(ctx)
	return u
}

func actorRole(ctx context.Context) string {
	r, _ := auth.Role(ctx)
	return r
}

// MonthBounds returns the [from, to) instants covering the "YYYY-MM" month in
// the given timezone.
func MonthBounds(month string, loc *time.Location) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(monthLayout, month, loc)
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidRequest
	}
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0), nil
}

// MonthOf returns the "YYYY-MM" key for an instant in the given timezone.
func MonthOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(monthLayout)
}
