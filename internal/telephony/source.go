package telephony

import (
	"context"
	"time"

	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/records"
)

// EventSource defines the provider-agnostic interface used by ingestion and
// the voicemail sync job.
//
// Rules:
//   - No provider SDK calls outside telephony adapters.
//   - All requests must be workspace-scoped (workspace_id required).
//   - Keep request/response types provider-agnostic; the provider's raw payload
//     stays inside the adapter.
type EventSource interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// ListVoicemails returns voicemails left at the provider in the given
	// window. Callers dedupe by (source_type, external_id), so returning an
	// already-seen voicemail is harmless.
	ListVoicemails(ctx context.Context, req ListVoicemailsRequest) (ListVoicemailsResult, error)
}

type ListVoicemailsRequest struct {
	WorkspaceID string `json:"workspace_id"`

	// Since and Until bound the provider-side query window.
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

type ListVoicemailsResult struct {
	WorkspaceID string           `json:"workspace_id"`
	Voicemails  []VoicemailEvent `json:"voicemails"`
}

// VoicemailEvent is a provider-agnostic voicemail notification.
type VoicemailEvent struct {
	// ProviderID is the provider's unique identifier for the voicemail.
	ProviderID string `json:"provider_id"`
	// ProviderCallID identifies the call that produced it, when known.
	ProviderCallID string `json:"provider_call_id,omitempty"`

	// From is E.164 where possible.
	From       string `json:"from"`
	CallerName string `json:"caller_name,omitempty"`

	RecordingURL    string `json:"recording_url"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`

	LeftAt time.Time `json:"left_at"`
}

// IngestRequest maps the voicemail onto the processing pipeline's intake
// shape. sourceName becomes the dedupe source_type.
func (v VoicemailEvent) IngestRequest(workspaceID, sourceName string) pipeline.IngestRequest {
	return pipeline.IngestRequest{
		WorkspaceID:     workspaceID,
		Kind:            records.KindVoicemail,
		SourceType:      sourceName,
		ExternalID:      v.ProviderID,
		ProviderCallID:  v.ProviderCallID,
		FromNumber:      v.From,
		CallerName:      v.CallerName,
		RecordingURL:    v.RecordingURL,
		DurationSeconds: v.DurationSeconds,
	}
}
