package telephony

import (
	"context"
	"sync"
	"testing"
	"time"

	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/records"
	"voicedesk-platform/internal/schedule"
)

type fakeSource struct {
	voicemails []VoicemailEvent

	mu      sync.Mutex
	lastReq ListVoicemailsRequest
}

func (f *fakeSource) Name() string                        { return "fake" }
func (f *fakeSource) HealthCheck(_ context.Context) error { return nil }

func (f *fakeSource) ListVoicemails(_ context.Context, req ListVoicemailsRequest) (ListVoicemailsResult, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return ListVoicemailsResult{WorkspaceID: req.WorkspaceID, Voicemails: f.voicemails}, nil
}

type fakePipe struct {
	mu        sync.Mutex
	ingested  []pipeline.IngestRequest
	processed []string

	existing map[string]records.Record
}

func (f *fakePipe) Ingest(_ context.Context, req pipeline.IngestRequest) (records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, req)
	if rec, ok := f.existing[req.ExternalID]; ok {
		return rec, nil
	}
	return records.Record{
		ID:          "rec-" + req.ExternalID,
		WorkspaceID: req.WorkspaceID,
		Status:      records.StatusPending,
	}, nil
}

func (f *fakePipe) Process(_ context.Context, workspaceID, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, recordID)
	return nil
}

func intp(n int) *int { return &n }

func TestVoicemailSyncIngestsAndProcesses(t *testing.T) {
	src := &fakeSource{voicemails: []VoicemailEvent{
		{ProviderID: "vm1", From: "+15550001111", RecordingURL: "https://p/vm1", DurationSeconds: intp(30)},
		{ProviderID: "vm2", From: "+15550002222", RecordingURL: "https://p/vm2"},
	}}
	pipe := &fakePipe{}
	vs := NewVoicemailSync(src, pipe)

	job := schedule.JobDefinition{WorkspaceID: "ws1", Type: schedule.JobTypeVoicemailSync}
	if err := vs.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(pipe.ingested) != 2 {
		t.Fatalf("expected 2 ingests, got %d", len(pipe.ingested))
	}
	first := pipe.ingested[0]
	if first.WorkspaceID != "ws1" || first.SourceType != "fake" || first.ExternalID != "vm1" {
		t.Fatalf("ingest mapping wrong: %+v", first)
	}
	if first.Kind != records.KindVoicemail {
		t.Fatalf("kind = %q, want voicemail", first.Kind)
	}
	if len(pipe.processed) != 2 {
		t.Fatalf("expected 2 process calls, got %d", len(pipe.processed))
	}
}

func TestVoicemailSyncSkipsAlreadyHandled(t *testing.T) {
	src := &fakeSource{voicemails: []VoicemailEvent{
		{ProviderID: "vm1", RecordingURL: "https://p/vm1"},
	}}
	pipe := &fakePipe{existing: map[string]records.Record{
		"vm1": {ID: "rec-vm1", WorkspaceID: "ws1", Status: records.StatusCompleted},
	}}
	vs := NewVoicemailSync(src, pipe)

	job := schedule.JobDefinition{WorkspaceID: "ws1", Type: schedule.JobTypeVoicemailSync}
	if err := vs.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(pipe.processed) != 0 {
		t.Fatalf("completed record must not be reprocessed, got %v", pipe.processed)
	}
}

func TestVoicemailSyncWindow(t *testing.T) {
	src := &fakeSource{}
	pipe := &fakePipe{}
	vs := NewVoicemailSync(src, pipe)
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	vs.clock = func() time.Time { return now }

	lastRun := now.Add(-25 * time.Hour)
	job := schedule.JobDefinition{WorkspaceID: "ws1", Type: schedule.JobTypeVoicemailSync, LastRunAtUTC: &lastRun}
	if err := vs.Dispatch(context.Background(), job); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	want := lastRun.Add(-time.Hour)
	if !src.lastReq.Since.Equal(want) {
		t.Fatalf("since = %v, want last run minus overlap %v", src.lastReq.Since, want)
	}
	if !src.lastReq.Until.Equal(now) {
		t.Fatalf("until = %v, want %v", src.lastReq.Until, now)
	}
}
