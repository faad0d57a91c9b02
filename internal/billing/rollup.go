package billing

import (
	"context"
	"errors"
	"time"

	"voicedesk-platform/internal/schedule"
	"voicedesk-platform/pkg/logger"
)

// PlanSource resolves the workspace's current plan for rollup runs.
type PlanSource interface {
	PlanFor(ctx context.Context, workspaceID string) (Plan, error)
}

// graceDays is how far into a month the previous month still gets recomputed,
// picking up records that completed after midnight on the 1st.
const graceDays = 3

// RollupDispatcher recomputes monthly usage when the nightly billing job
// fires. It implements schedule.Dispatcher.
//
// Recompute derives everything from source records, so re-running a rollup is
// harmless, and finalized months are skipped.
type RollupDispatcher struct {
	svc   *Service
	plans PlanSource
	clock func() time.Time
}

func NewRollupDispatcher(svc *Service, plans PlanSource) *RollupDispatcher {
	return &RollupDispatcher{svc: svc, plans: plans, clock: time.Now}
}

func (d *RollupDispatcher) Dispatch(ctx context.Context, job schedule.JobDefinition) error {
	log := logger.From(ctx)

	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		loc = time.UTC
	}
	localNow := d.clock().In(loc)

	plan, err := d.plans.PlanFor(ctx, job.WorkspaceID)
	if err != nil {
		return err
	}

	months := []string{MonthOf(localNow, loc)}
	if localNow.Day() <= graceDays {
		months = append(months, MonthOf(localNow.AddDate(0, -1, 0), loc))
	}

	for _, month := range months {
		_, err := d.svc.Recompute(ctx, job.WorkspaceID, month, plan)
		if errors.Is(err, ErrAlreadyFinalized) {
			continue
		}
		if err != nil {
			return err
		}
		log.Info("billing rollup recomputed",
			"workspace_id", job.WorkspaceID, "month", month)
	}
	return nil
}
