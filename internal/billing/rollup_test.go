package billing

import (
	"context"
	"testing"
	"time"

	"voicedesk-platform/internal/schedule"
)

type staticPlans struct{ plan Plan }

func (s staticPlans) PlanFor(_ context.Context, _ string) (Plan, error) { return s.plan, nil }

type staticDurations struct{ seconds []int }

func (s staticDurations) ListCompletedDurations(_ context.Context, _ string, _, _ time.Time) ([]int, error) {
	return s.seconds, nil
}

func rollupPlan() Plan {
	return Plan{BaseMonthlyChargeMinor: 2000, IncludedAudioHours: 8, OverageRatePerMinuteMinor: 10, Currency: "USD"}
}

func TestRollupRecomputesCurrentMonth(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, staticDurations{seconds: []int{600}})
	d := NewRollupDispatcher(svc, staticPlans{plan: rollupPlan()})
	d.clock = func() time.Time { return time.Date(2024, 6, 15, 3, 0, 0, 0, time.UTC) }

	job := schedule.JobDefinition{WorkspaceID: "ws1", Type: schedule.JobTypeBillingRollup, Timezone: "UTC"}
	if err := d.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	bm, ok, err := repo.Get(context.Background(), "ws1", "2024-06")
	if err != nil || !ok {
		t.Fatalf("month not written: ok=%v err=%v", ok, err)
	}
	if bm.AudioSeconds != 600 {
		t.Fatalf("audio seconds = %d, want 600", bm.AudioSeconds)
	}
	if _, ok, _ := repo.Get(context.Background(), "ws1", "2024-05"); ok {
		t.Fatalf("previous month must not be touched mid-month")
	}
}

func TestRollupGracePeriodCoversPreviousMonth(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, staticDurations{seconds: []int{60}})
	d := NewRollupDispatcher(svc, staticPlans{plan: rollupPlan()})
	d.clock = func() time.Time { return time.Date(2024, 6, 2, 3, 0, 0, 0, time.UTC) }

	job := schedule.JobDefinition{WorkspaceID: "ws1", Type: schedule.JobTypeBillingRollup, Timezone: "UTC"}
	if err := d.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	for _, month := range []string{"2024-06", "2024-05"} {
		if _, ok, _ := repo.Get(context.Background(), "ws1", month); !ok {
			t.Fatalf("month %s not recomputed", month)
		}
	}
}

func TestRollupSkipsFinalizedMonth(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, staticDurations{seconds: []int{60}})
	now := time.Date(2024, 6, 15, 3, 0, 0, 0, time.UTC)

	if _, err := svc.Recompute(context.Background(), "ws1", "2024-06", rollupPlan()); err != nil {
		t.Fatalf("seed recompute: %v", err)
	}
	if _, err := svc.Finalize(context.Background(), "ws1", "2024-06"); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	d := NewRollupDispatcher(svc, staticPlans{plan: rollupPlan()})
	d.clock = func() time.Time { return now }

	job := schedule.JobDefinition{WorkspaceID: "ws1", Type: schedule.JobTypeBillingRollup, Timezone: "UTC"}
	if err := d.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("finalized month must be skipped, got %v", err)
	}
}

func TestRollupUsesJobTimezoneForMonthKey(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, staticDurations{seconds: []int{60}})
	d := NewRollupDispatcher(svc, staticPlans{plan: rollupPlan()})
	// 03:00 UTC on July 1 is still June 30 in Los Angeles.
	d.clock = func() time.Time { return time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC) }

	job := schedule.JobDefinition{WorkspaceID: "ws1", Type: schedule.JobTypeBillingRollup, Timezone: "America/Los_Angeles"}
	if err := d.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, ok, _ := repo.Get(context.Background(), "ws1", "2024-06"); !ok {
		t.Fatalf("expected tenant-local month 2024-06 to be recomputed")
	}
}
