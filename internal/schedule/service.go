package schedule

import (
	"context"
	"errors"
	"time"

	"voicedesk-platform/internal/audit"
	"voicedesk-platform/pkg/logger"
	"voicedesk-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

var (
	ErrNotFound       = errors.New("schedule: job not found")
	ErrInvalidRequest = errors.New("schedule: invalid request")
)

// Repository is the persistence contract for job definitions.
//
// MarkRun must be conditional on the previously observed last_run_at_utc so
// two concurrent tickers cannot both advance it (the loser sees zero rows).
type Repository interface {
	GetJob(ctx context.Context, workspaceID string, jobType JobType) (JobDefinition, error)
	ListEnabled(ctx context.Context, jobType JobType) ([]JobDefinition, error)
	UpsertJob(ctx context.Context, job JobDefinition) error
	MarkRun(ctx context.Context, workspaceID string, jobType JobType, expectedLastRun *time.Time, ranAt time.Time) (int64, error)
}

// Dispatcher performs the actual work of a due job (e.g. voicemail sync).
// Dispatch targets must themselves be idempotent: the scheduler guarantees
// at-most-once-per-day dispatch, not exactly-once execution downstream.
type Dispatcher interface {
	Dispatch(ctx context.Context, job JobDefinition) error
}

// Service decides when recurring per-workspace jobs fire.
//
// Evaluation (NextRunUTC/DueNow) is pure and side-effect free; Tick is the
// only mutating path and persists last_run_at_utc before dispatching, so a
// second concurrent tick cannot double-fire.
type Service struct {
	repo  Repository
	rdb   *redis.Client  // optional dispatch lease
	audit *audit.Service // best-effort, may be nil
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithDispatchLease adds a Redis lease taken around each job dispatch. The
// conditional MarkRun alone is correct; the lease just keeps concurrent
// tickers from hammering the store.
func (s *Service) WithDispatchLease(rdb *redis.Client) *Service {
	s.rdb = rdb
	return s
}

// WithAudit wires best-effort audit logging for job dispatches.
func (s *Service) WithAudit(a *audit.Service) *Service {
	s.audit = a
	return s
}

// UpsertJob creates or replaces a job definition. Run bookkeeping
// (last_run_at_utc) is preserved across upserts so re-saving a schedule
// cannot re-arm a job that already ran today.
func (s *Service) UpsertJob(ctx context.Context, job JobDefinition) error {
	if job.WorkspaceID == "" || job.Type == "" {
		return ErrInvalidRequest
	}
	return s.repo.UpsertJob(ctx, job)
}

// NextRunUTC computes when the job should next fire.
func (s *Service) NextRunUTC(ctx context.Context, workspaceID string, jobType JobType) (time.Time, error) {
	if workspaceID == "" || jobType == "" {
		return time.Time{}, ErrInvalidRequest
	}
	job, err := s.repo.GetJob(ctx, workspaceID, jobType)
	if err != nil {
		return time.Time{}, err
	}
	return s.nextRun(job, s.clock().UTC()), nil
}

// DueNow reports whether the job should fire at now. For daily jobs this is
// "today's scheduled wall-clock time has passed and the job has not yet run
// on the tenant-local calendar date".
func (s *Service) DueNow(ctx context.Context, workspaceID string, jobType JobType, now time.Time) (bool, error) {
	if workspaceID == "" || jobType == "" {
		return false, ErrInvalidRequest
	}
	job, err := s.repo.GetJob(ctx, workspaceID, jobType)
	if err != nil {
		return false, err
	}
	return s.due(job, now), nil
}

// Tick evaluates every enabled job of the given type and dispatches the due
// ones. Safe to call from any number of processes on any cadence.
func (s *Service) Tick(ctx context.Context, jobType JobType, dispatcher Dispatcher, now time.Time) error {
	if dispatcher == nil {
		return errors.New("schedule: dispatcher not configured")
	}
	jobs, err := s.repo.ListEnabled(ctx, jobType)
	if err != nil {
		return err
	}
	log := logger.From(ctx)

	for _, job := range jobs {
		if !s.due(job, now) {
			continue
		}

		release, ok := s.acquireLease(ctx, job)
		if !ok {
			continue
		}

		// Claim the run before dispatching. A concurrent tick that raced us
		// here loses the conditional update and skips silently.
		n, err := s.repo.MarkRun(ctx, job.WorkspaceID, job.Type, job.LastRunAtUTC, now.UTC())
		if err != nil {
			if release != nil {
				release()
			}
			return err
		}
		if n == 0 {
			if release != nil {
				release()
			}
			continue
		}

		if s.audit != nil {
			_ = s.audit.LogJobDispatched(ctx, job.WorkspaceID, string(job.Type))
		}

		if err := dispatcher.Dispatch(ctx, job); err != nil {
			// The run is already claimed for today; failed work is retried by
			// the job's own idempotent next invocation, not by re-firing.
			log.Error("job dispatch failed",
				"workspace_id", job.WorkspaceID,
				"job_type", job.Type,
				"err", err,
			)
		}
		if release != nil {
			release()
		}
	}
	return nil
}

func (s *Service) nextRun(job JobDefinition, now time.Time) time.Time {
	if job.CronExpr != "" {
		if sched := parseCron(job.CronExpr, job.Timezone); sched != nil {
			return sched.Next(now).UTC()
		}
	}
	return ComputeNextRunUTC(job.Timezone, job.DailyTimeOfDay, now)
}

func (s *Service) due(job JobDefinition, now time.Time) bool {
	if !job.Enabled {
		return false
	}

	if job.CronExpr != "" {
		if sched := parseCron(job.CronExpr, job.Timezone); sched != nil {
			last := now.Add(-24 * time.Hour)
			if job.LastRunAtUTC != nil {
				last = *job.LastRunAtUTC
			}
			return !sched.Next(last).After(now)
		}
		// fall through to the daily schedule on a bad expression
	}

	if HasRunToday(job.LastRunAtUTC, job.Timezone, now) {
		return false
	}
	// Due once today's scheduled wall-clock time is behind us: the next
	// occurrence computed from now is already on a later calendar date.
	next := ComputeNextRunUTC(job.Timezone, job.DailyTimeOfDay, now)
	loc := loadLocation(job.Timezone)
	ny, nm, nd := now.In(loc).Date()
	ry, rm, rd := next.In(loc).Date()
	return !(ny == ry && nm == rm && nd == rd)
}

func parseCron(expr, timezone string) cron.Schedule {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil
	}
	return timezoneSchedule{inner: sched, loc: loadLocation(timezone)}
}

// timezoneSchedule evaluates a cron schedule in the job's timezone.
type timezoneSchedule struct {
	inner cron.Schedule
	loc   *time.Location
}

func (t timezoneSchedule) Next(from time.Time) time.Time {
	return t.inner.Next(from.In(t.loc))
}

func (s *Service) acquireLease(ctx context.Context, job JobDefinition) (func(), bool) {
	if s.rdb == nil {
		return nil, true
	}
	key := "job_lease:" + job.WorkspaceID + ":" + string(job.Type)
	ok, err := utils.AcquireLease(ctx, s.rdb, key, time.Minute)
	if err != nil {
		// Lease is an optimization; MarkRun is the correctness guard.
		logger.From(ctx).Warn("job lease unavailable", "err", err)
		return nil, true
	}
	if !ok {
		return nil, false
	}
	return func() { _ = utils.ReleaseLease(context.Background(), s.rdb, key) }, true
}
