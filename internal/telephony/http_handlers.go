package telephony

import (
	"context"
	"net/http"

	"voicedesk-platform/internal/records"
	"voicedesk-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler adapts Twilio recording-status callbacks onto the
// processing pipeline.
//
// NOTE: This endpoint should be protected by Twilio signature validation in
// production.
type TwilioWebhookHandler struct {
	Pipeline Ingester

	// WorkspaceIDResolver maps the provider account to a workspace. Kept as a
	// function injection to avoid persistence assumptions here.
	WorkspaceIDResolver func(c *gin.Context, accountSID string) (string, error)
}

// HandleRecordingStatus ingests the recording and kicks off processing in the
// background. Twilio retries on non-2xx, and ingestion dedupes on
// RecordingSid, so replays are harmless.
func (h TwilioWebhookHandler) HandleRecordingStatus(c *gin.Context) {
	form, err := ParseTwilioRecording(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}
	if form.RecordingStatus != "" && form.RecordingStatus != "completed" {
		// In-progress and failed callbacks carry no media to process.
		c.Status(http.StatusNoContent)
		return
	}

	workspaceID, err := h.WorkspaceIDResolver(c, form.AccountSid)
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown account"})
		return
	}

	kind := records.KindVoicemail
	if c.Query("kind") == string(records.KindCall) {
		kind = records.KindCall
	}

	rec, err := h.Pipeline.Ingest(c.Request.Context(), form.IngestRequest(workspaceID, kind))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}

	if rec.Status == records.StatusPending {
		// Transcription is slow; answer the webhook before it finishes.
		bg := logger.With(context.WithoutCancel(c.Request.Context()), logger.FromGin(c))
		go func() {
			if err := h.Pipeline.Process(bg, rec.WorkspaceID, rec.ID); err != nil {
				logger.From(bg).Warn("webhook-triggered processing failed",
					"workspace_id", rec.WorkspaceID, "record_id", rec.ID, "error", err)
			}
		}()
	}

	c.JSON(http.StatusOK, gin.H{"record_id": rec.ID})
}
