package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"voicedesk-platform/internal/billing"
	"voicedesk-platform/internal/schedule"
)

// Settings are the per-workspace configuration domains, stored as one JSONB
// document per workspace.
//
// They are explicit structs with named optional fields, validated here at the
// read boundary; nothing downstream handles free-form maps.
type Settings struct {
	Telephony TelephonySettings `json:"telephony"`
	Analysis  AnalysisSettings  `json:"analysis"`
	Billing   BillingSettings   `json:"billing"`
}

// TelephonySettings configure event sources and the recurring sync job.
type TelephonySettings struct {
	Provider string `json:"provider,omitempty"`

	VoicemailSyncEnabled bool `json:"voicemail_sync_enabled"`
	// SyncTimezone is an IANA zone; the scheduler falls back to UTC when it
	// does not resolve, so a bad value degrades rather than breaks.
	SyncTimezone string `json:"sync_timezone,omitempty"`
	// SyncTimeOfDay is local wall-clock "HH:MM".
	SyncTimeOfDay string `json:"sync_time_of_day,omitempty"`
}

// AnalysisSettings configure transcription analysis and redaction.
type AnalysisSettings struct {
	RedactionEnabled bool `json:"redaction_enabled"`
	// ExtraRedactionPatterns are additional regex patterns scanned alongside
	// the built-in rules. Keyed by the reason stored on the segment.
	ExtraRedactionPatterns map[string]string `json:"extra_redaction_patterns,omitempty"`
}

// BillingSettings are the workspace's plan terms. Amounts in minor units.
type BillingSettings struct {
	BaseMonthlyChargeMinor    int64  `json:"base_monthly_charge_minor"`
	IncludedAudioHours        int    `json:"included_audio_hours"`
	OverageRatePerMinuteMinor int64  `json:"overage_rate_per_minute_minor"`
	Currency                  string `json:"currency,omitempty"`
	// Timezone is the zone month boundaries are evaluated in.
	Timezone string `json:"timezone,omitempty"`
}

// Plan snapshots the settings into the pricing input for a recompute.
func (b BillingSettings) Plan() billing.Plan {
	currency := b.Currency
	if currency == "" {
		currency = "USD"
	}
	return billing.Plan{
		BaseMonthlyChargeMinor:    b.BaseMonthlyChargeMinor,
		IncludedAudioHours:        b.IncludedAudioHours,
		OverageRatePerMinuteMinor: b.OverageRatePerMinuteMinor,
		Currency:                  currency,
		Timezone:                  b.Timezone,
	}
}

// rollupTimeOfDay is shortly after local midnight so the nightly rollup sees
// the finished day and the month-boundary grace window.
const rollupTimeOfDay = "00:30"

// SyncJob derives the voicemail sync job definition these settings describe.
func (s Settings) SyncJob(workspaceID string) schedule.JobDefinition {
	return schedule.JobDefinition{
		WorkspaceID:    workspaceID,
		Type:           schedule.JobTypeVoicemailSync,
		Timezone:       s.Telephony.SyncTimezone,
		DailyTimeOfDay: s.Telephony.SyncTimeOfDay,
		Enabled:        s.Telephony.VoicemailSyncEnabled,
	}
}

// RollupJob derives the nightly billing rollup job. Always enabled: a
// recompute of an already-correct month is a no-op.
func (s Settings) RollupJob(workspaceID string) schedule.JobDefinition {
	return schedule.JobDefinition{
		WorkspaceID:    workspaceID,
		Type:           schedule.JobTypeBillingRollup,
		Timezone:       s.Billing.Timezone,
		DailyTimeOfDay: rollupTimeOfDay,
		Enabled:        true,
	}
}

// ParseSettings decodes and validates a stored settings document.
// Empty input yields zero-value settings (everything optional defaults off).
func ParseSettings(raw []byte) (Settings, error) {
	var s Settings
	if len(raw) == 0 {
		return s, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("workspace settings decode failed: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	var errs []error

	if tz := s.Telephony.SyncTimezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("telephony.sync_timezone %q does not resolve", tz))
		}
	}
	if tod := s.Telephony.SyncTimeOfDay; tod != "" && !validTimeOfDay(tod) {
		errs = append(errs, fmt.Errorf("telephony.sync_time_of_day %q is not HH:MM", tod))
	}

	if s.Billing.BaseMonthlyChargeMinor < 0 {
		errs = append(errs, errors.New("billing.base_monthly_charge_minor must be >= 0"))
	}
	if s.Billing.IncludedAudioHours < 0 {
		errs = append(errs, errors.New("billing.included_audio_hours must be >= 0"))
	}
	if s.Billing.OverageRatePerMinuteMinor < 0 {
		errs = append(errs, errors.New("billing.overage_rate_per_minute_minor must be >= 0"))
	}
	for reason, src := range s.Analysis.ExtraRedactionPatterns {
		if _, err := regexp.Compile(src); err != nil {
			errs = append(errs, fmt.Errorf("analysis.extra_redaction_patterns[%s] does not compile: %v", reason, err))
		}
	}

	if tz := s.Billing.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("billing.timezone %q does not resolve", tz))
		}
	}

	return errors.Join(errs...)
}

func validTimeOfDay(s string) bool {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	return err1 == nil && err2 == nil && h >= 0 && h <= 23 && m >= 0 && m <= 59
}
