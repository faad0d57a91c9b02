package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLRepo implements Repository on Postgres via database/sql.
//
// Assumed table billing_months with PRIMARY KEY (workspace_id, month).
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

const billingColumns = `
workspace_id, month, audio_seconds, audio_minutes,
overage_seconds, overage_minutes, overage_charge_minor, total_charge_minor,
currency, base_plan_monthly_charge_minor, base_plan_included_audio_hours,
is_finalized, calculated_at, finalized_at`

func (r *SQLRepo) Get(ctx context.Context, workspaceID, month string) (BillingMonth, bool, error) {
	const q = `
SELECT ` + billingColumns + `
FROM billing_months
WHERE workspace_id = $1 AND month = $2
`
	var bm BillingMonth
	err := r.db.QueryRowContext(ctx, q, workspaceID, month).Scan(
		&bm.WorkspaceID,
		&bm.Month,
		&bm.AudioSeconds,
		&bm.AudioMinutes,
		&bm.OverageSeconds,
		&bm.OverageMinutes,
		&bm.OverageChargeMinor,
		&bm.TotalChargeMinor,
		&bm.Currency,
		&bm.BasePlanMonthlyChargeMinor,
		&bm.BasePlanIncludedAudioHours,
		&bm.IsFinalized,
		&bm.CalculatedAt,
		&bm.FinalizedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return BillingMonth{}, false, nil
	}
	if err != nil {
		return BillingMonth{}, false, err
	}
	return bm, true, nil
}

// Upsert writes the snapshot. The WHERE guard on the update arm is the
// storage-level backstop for finalized immutability.
func (r *SQLRepo) Upsert(ctx context.Context, bm BillingMonth) error {
	const q = `
INSERT INTO billing_months (` + billingColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (workspace_id, month)
DO UPDATE SET audio_seconds = EXCLUDED.audio_seconds,
              audio_minutes = EXCLUDED.audio_minutes,
              overage_seconds = EXCLUDED.overage_seconds,
              overage_minutes = EXCLUDED.overage_minutes,
              overage_charge_minor = EXCLUDED.overage_charge_minor,
              total_charge_minor = EXCLUDED.total_charge_minor,
              currency = EXCLUDED.currency,
              base_plan_monthly_charge_minor = EXCLUDED.base_plan_monthly_charge_minor,
              base_plan_included_audio_hours = EXCLUDED.base_plan_included_audio_hours,
              calculated_at = EXCLUDED.calculated_at
WHERE billing_months.is_finalized = FALSE
`
	_, err := r.db.ExecContext(ctx, q,
		bm.WorkspaceID, bm.Month, bm.AudioSeconds, bm.AudioMinutes,
		bm.OverageSeconds, bm.OverageMinutes, bm.OverageChargeMinor, bm.TotalChargeMinor,
		bm.Currency, bm.BasePlanMonthlyChargeMinor, bm.BasePlanIncludedAudioHours,
		bm.IsFinalized, bm.CalculatedAt, bm.FinalizedAt,
	)
	return err
}

// SetFinalized flips the flag only when it is still unset, making Finalize
// the single writer of is_finalized.
func (r *SQLRepo) SetFinalized(ctx context.Context, workspaceID, month string, at time.Time) (int64, error) {
	const q = `
UPDATE billing_months
SET is_finalized = TRUE, finalized_at = $3
WHERE workspace_id = $1 AND month = $2 AND is_finalized = FALSE
`
	res, err := r.db.ExecContext(ctx, q, workspaceID, month, at.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
