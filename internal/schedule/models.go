package schedule

import "time"

// JobDefinition is one recurring per-workspace job.
//
// Multi-tenant invariant: WorkspaceID is required; (workspace_id, job_type)
// is unique.
//
// Scheduling fields are tenant-authored and therefore untrusted: a bad
// timezone or time-of-day must never break scheduling, only degrade it
// (see clock.go fallbacks).
type JobDefinition struct {
	WorkspaceID string  `json:"workspace_id" db:"workspace_id"`
	Type        JobType `json:"job_type" db:"job_type"`

	// Timezone is an IANA zone name, e.g. "America/New_York".
	Timezone string `json:"timezone" db:"timezone"`
	// DailyTimeOfDay is local wall-clock "HH:MM" (24h).
	DailyTimeOfDay string `json:"daily_time_of_day" db:"daily_time_of_day"`

	// CronExpr, when set, takes precedence over the daily schedule.
	// Standard 5-field cron, evaluated in Timezone.
	CronExpr string `json:"cron_expr,omitempty" db:"cron_expr"`

	Enabled bool `json:"enabled" db:"enabled"`

	// LastRunAtUTC is the at-most-once-per-day bookkeeping field. It is only
	// advanced through the conditional MarkRun update.
	LastRunAtUTC *time.Time `json:"last_run_at_utc,omitempty" db:"last_run_at_utc"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type JobType string

const (
	JobTypeVoicemailSync JobType = "voicemail_sync"
	JobTypeBillingRollup JobType = "billing_rollup"
)
