package schedule

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLRepo implements Repository on Postgres via database/sql.
//
// Assumed table schedule_jobs with PRIMARY KEY (workspace_id, job_type).
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const jobColumns = `
workspace_id, job_type, timezone, daily_time_of_day, cron_expr, enabled,
last_run_at_utc, created_at, updated_at`

func scanJob(scan func(dest ...any) error) (JobDefinition, error) {
	var j JobDefinition
	err := scan(
		&j.WorkspaceID,
		&j.Type,
		&j.Timezone,
		&j.DailyTimeOfDay,
		&j.CronExpr,
		&j.Enabled,
		&j.LastRunAtUTC,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	return j, err
}

func (r *SQLRepo) GetJob(ctx context.Context, workspaceID string, jobType JobType) (JobDefinition, error) {
	const q = `
SELECT ` + jobColumns + `
FROM schedule_jobs
WHERE workspace_id = $1 AND job_type = $2
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, workspaceID, jobType).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return JobDefinition{}, ErrNotFound
	}
	return j, err
}

func (r *SQLRepo) ListEnabled(ctx context.Context, jobType JobType) ([]JobDefinition, error) {
	const q = `
SELECT ` + jobColumns + `
FROM schedule_jobs
WHERE job_type = $1 AND enabled = TRUE
`
	rows, err := r.db.QueryContext(ctx, q, jobType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobDefinition
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpsertJob writes the definition fields only; last_run_at_utc is owned by
// MarkRun and survives re-saves of the schedule.
func (r *SQLRepo) UpsertJob(ctx context.Context, job JobDefinition) error {
	const q = `
INSERT INTO schedule_jobs (workspace_id, job_type, timezone, daily_time_of_day, cron_expr, enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (workspace_id, job_type) DO UPDATE SET
  timezone = EXCLUDED.timezone,
  daily_time_of_day = EXCLUDED.daily_time_of_day,
  cron_expr = EXCLUDED.cron_expr,
  enabled = EXCLUDED.enabled,
  updated_at = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q,
		job.WorkspaceID, job.Type, job.Timezone, job.DailyTimeOfDay, job.CronExpr, job.Enabled,
		time.Now().UTC(),
	)
	return err
}

// MarkRun advances last_run_at_utc only when it still matches the value the
// ticker observed, so concurrent tickers cannot both claim the run.
func (r *SQLRepo) MarkRun(ctx context.Context, workspaceID string, jobType JobType, expectedLastRun *time.Time, ranAt time.Time) (int64, error) {
	const q = `
UPDATE schedule_jobs
SET last_run_at_utc = $3, updated_at = $4
WHERE workspace_id = $1 AND job_type = $2
  AND last_run_at_utc IS NOT DISTINCT FROM $5
`
	res, err := r.db.ExecContext(ctx, q, workspaceID, jobType, ranAt.UTC(), time.Now().UTC(), expectedLastRun)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
