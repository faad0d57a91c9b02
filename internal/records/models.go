package records

import "time"

// Record is a tenant-scoped processing record for a telephony event:
// an inbound call or a voicemail drop.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
//
// Dedup invariant: (SourceType, ExternalID) is unique when present, so the same
// upstream event ingested twice yields one row.
//
// Processing invariant: Status == completed implies Transcript, Analysis and
// ProcessedAt are all set. Status == failed implies at least one attempt
// (RetryCount >= 1 or LastAttemptAt set).
type Record struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	Kind        Kind   `json:"kind" db:"kind"`

	// ProviderCallID is the provider's correlation id (call/recording sid).
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// SourceType + ExternalID form the upstream composite key.
	SourceType string `json:"source_type" db:"source_type"`
	ExternalID string `json:"external_id" db:"external_id"`

	FromNumber string `json:"from_number,omitempty" db:"from_number"`
	CallerName string `json:"caller_name,omitempty" db:"caller_name"`

	// RecordingURL is empty until the media is available upstream.
	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`
	// DurationSeconds is nil until the duration is known.
	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	Status Status `json:"status" db:"status"`

	Transcript   *string `json:"transcript,omitempty" db:"transcript"`
	Analysis     *string `json:"analysis,omitempty" db:"analysis"`
	Model        string  `json:"model,omitempty" db:"model"`
	InputTokens  int     `json:"input_tokens" db:"input_tokens"`
	OutputTokens int     `json:"output_tokens" db:"output_tokens"`

	RetryCount    int        `json:"retry_count" db:"retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	FailureReason string     `json:"failure_reason,omitempty" db:"failure_reason"`

	RedactionStatus  RedactionStatus   `json:"redaction_status" db:"redaction_status"`
	Redacted         bool              `json:"redacted" db:"redacted"`
	RedactedSegments []RedactedSegment `json:"redacted_segments,omitempty" db:"redacted_segments"`
	RedactedAt       *time.Time        `json:"redacted_at,omitempty" db:"redacted_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Kind string

const (
	KindCall      Kind = "call"
	KindVoicemail Kind = "voicemail"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type RedactionStatus string

const (
	RedactionNotNeeded RedactionStatus = "not_needed"
	RedactionPending   RedactionStatus = "pending"
	RedactionCompleted RedactionStatus = "completed"
	RedactionFailed    RedactionStatus = "failed"
)

// RedactedSegment marks a sensitive span of the recording, in seconds from
// the start of the audio. Stored as ordered JSON on the record.
type RedactedSegment struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Reason   string  `json:"reason"`
}

// CompletionResult is what the transcription/analysis capability returns for
// a successful run.
type CompletionResult struct {
	Transcript   string `json:"transcript"`
	Analysis     string `json:"analysis"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}
