package telephony

import (
	"context"
	"errors"
	"time"

	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/records"
	"voicedesk-platform/internal/schedule"
	"voicedesk-platform/pkg/logger"
)

// Ingester is the slice of the processing pipeline the sync job needs.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (records.Record, error)
	Process(ctx context.Context, workspaceID, recordID string) error
}

// VoicemailSync pulls voicemails from the telephony source and feeds them
// into the processing pipeline. It implements schedule.Dispatcher for the
// daily voicemail sync job.
//
// Safe to re-run: ingestion dedupes on (source_type, external_id), so a sync
// that overlaps a previous window only creates records for unseen voicemails.
type VoicemailSync struct {
	source EventSource
	pipe   Ingester
	clock  func() time.Time

	// Overlap widens the query window behind the last run to absorb
	// provider-side indexing lag.
	Overlap time.Duration
}

func NewVoicemailSync(source EventSource, pipe Ingester) *VoicemailSync {
	return &VoicemailSync{
		source:  source,
		pipe:    pipe,
		clock:   time.Now,
		Overlap: time.Hour,
	}
}

func (v *VoicemailSync) Dispatch(ctx context.Context, job schedule.JobDefinition) error {
	log := logger.From(ctx)
	now := v.clock().UTC()

	since := now.Add(-24 * time.Hour)
	if job.LastRunAtUTC != nil {
		since = job.LastRunAtUTC.Add(-v.Overlap)
	}

	listed, err := v.source.ListVoicemails(ctx, ListVoicemailsRequest{
		WorkspaceID: job.WorkspaceID,
		Since:       since,
		Until:       now,
	})
	if err != nil {
		return err
	}

	var errs []error
	ingested := 0
	for _, vm := range listed.Voicemails {
		rec, err := v.pipe.Ingest(ctx, vm.IngestRequest(job.WorkspaceID, v.source.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ingested++
		if rec.Status != records.StatusPending {
			continue
		}
		if err := v.pipe.Process(ctx, rec.WorkspaceID, rec.ID); err != nil {
			// Processing failures are retried through the pipeline's own
			// retry budget, not by re-running the sync.
			log.Warn("voicemail sync: process failed",
				"workspace_id", rec.WorkspaceID, "record_id", rec.ID, "error", err)
		}
	}

	log.Info("voicemail sync complete",
		"workspace_id", job.WorkspaceID,
		"listed", len(listed.Voicemails),
		"ingested", ingested,
		"failed", len(errs))
	return errors.Join(errs...)
}
