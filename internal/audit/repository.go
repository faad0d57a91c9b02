package audit

import (
	"context"
	"database/sql"
)

// SQLRepo implements Repository on Postgres via database/sql.
//
// Assumed table audit_events with an INSERT-only policy.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, workspace_id, type, actor_user_id, actor_role,
			 record_id, billing_month, job_type, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.WorkspaceID, e.Type, e.ActorUserID, e.ActorRole,
		e.RecordID, e.BillingMonth, e.JobType, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
