package billing

import "time"

// BillingMonth is one tenant-month usage snapshot.
//
// Multi-tenant invariant: WorkspaceID is required; (workspace_id, month)
// is unique.
//
// Money invariants (amounts in minor units, USD cents):
//   - TotalChargeMinor = BasePlanMonthlyChargeMinor + OverageChargeMinor
//   - OverageSeconds = max(0, AudioSeconds - BasePlanIncludedAudioHours*3600)
//   - Plan fields are snapshot at calculation time; later plan changes never
//     rewrite historical months.
//   - IsFinalized == true makes the row immutable. Recompute on a finalized
//     row is rejected, never silently applied.
type BillingMonth struct {
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// Month is the calendar month key, "YYYY-MM", in the tenant's billing
	// timezone.
	Month string `json:"month" db:"month"`

	AudioSeconds int64 `json:"audio_seconds" db:"audio_seconds"`
	AudioMinutes int64 `json:"audio_minutes" db:"audio_minutes"`

	OverageSeconds int64 `json:"overage_seconds" db:"overage_seconds"`
	OverageMinutes int64 `json:"overage_minutes" db:"overage_minutes"`

	OverageChargeMinor int64  `json:"overage_charge_minor" db:"overage_charge_minor"`
	TotalChargeMinor   int64  `json:"total_charge_minor" db:"total_charge_minor"`
	Currency           string `json:"currency" db:"currency"`

	// Plan snapshot captured at calculation time.
	BasePlanMonthlyChargeMinor int64 `json:"base_plan_monthly_charge_minor" db:"base_plan_monthly_charge_minor"`
	BasePlanIncludedAudioHours int   `json:"base_plan_included_audio_hours" db:"base_plan_included_audio_hours"`

	IsFinalized  bool       `json:"is_finalized" db:"is_finalized"`
	CalculatedAt time.Time  `json:"calculated_at" db:"calculated_at"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty" db:"finalized_at"`
}

// Plan is the pricing input to a recompute. Amounts in minor units.
type Plan struct {
	BaseMonthlyChargeMinor    int64  `json:"base_monthly_charge_minor"`
	IncludedAudioHours        int    `json:"included_audio_hours"`
	OverageRatePerMinuteMinor int64  `json:"overage_rate_per_minute_minor"`
	Currency                  string `json:"currency"`

	// Timezone is the IANA zone month boundaries are evaluated in, matching
	// the zone the rollup keys months with. Empty falls back to the service
	// default.
	Timezone string `json:"timezone,omitempty"`
}
