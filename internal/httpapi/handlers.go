package httpapi

import (
	"errors"
	"net/http"
	"time"

	"voicedesk-platform/internal/auth"
	"voicedesk-platform/internal/billing"
	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/records"
	"voicedesk-platform/internal/schedule"
	"voicedesk-platform/internal/workspace"
	"voicedesk-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Pipeline *pipeline.Service
	Records  records.Store
	Billing  *billing.Service
	Schedule *schedule.Service
	Settings workspace.Store
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Records ---

// IngestRecord accepts a manual record intake (e.g. backfill or testing).
// Dedupe is by (source_type, external_id); resubmitting returns the existing
// record.
func (h Handlers) IngestRecord(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}

	var req pipeline.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.WorkspaceID = workspaceID

	rec, err := h.Pipeline.Ingest(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) GetRecord(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	rec, err := h.Records.GetByID(c.Request.Context(), workspaceID, c.Param("record_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ProcessRecord kicks off processing for a pending or ingested record.
// Safe to call repeatedly; ineligible records are left untouched.
func (h Handlers) ProcessRecord(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	if err := h.Pipeline.Process(c.Request.Context(), workspaceID, c.Param("record_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// RetryRecord re-runs a failed record. Counts against the record's retry
// budget; exhausted records return 409.
func (h Handlers) RetryRecord(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	if err := h.Pipeline.Retry(c.Request.Context(), workspaceID, c.Param("record_id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// --- Billing ---

func (h Handlers) GetBillingMonth(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	bm, err := h.Billing.Get(c.Request.Context(), workspaceID, c.Param("month"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bm)
}

// RecomputeBillingMonth re-derives the month's usage and charges from
// completed records. Rejected once the month is finalized.
func (h Handlers) RecomputeBillingMonth(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	set, err := h.Settings.GetSettings(c.Request.Context(), workspaceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	bm, err := h.Billing.Recompute(c.Request.Context(), workspaceID, c.Param("month"), set.Billing.Plan())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bm)
}

func (h Handlers) FinalizeBillingMonth(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	bm, err := h.Billing.Finalize(c.Request.Context(), workspaceID, c.Param("month"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bm)
}

// --- Settings ---

func (h Handlers) GetSettings(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	set, err := h.Settings.GetSettings(c.Request.Context(), workspaceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// PutSettings replaces the workspace settings document and re-derives the
// recurring job definitions it controls (voicemail sync, billing rollup).
func (h Handlers) PutSettings(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	var set workspace.Settings
	if err := c.ShouldBindJSON(&set); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload"})
		return
	}
	if err := set.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.Settings.UpdateSettings(ctx, workspaceID, set); err != nil {
		h.writeError(c, err)
		return
	}
	for _, job := range []schedule.JobDefinition{set.SyncJob(workspaceID), set.RollupJob(workspaceID)} {
		if err := h.Schedule.UpsertJob(ctx, job); err != nil {
			h.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, set)
}

// --- Schedule ---

func (h Handlers) NextRun(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	jobType := schedule.JobType(c.Param("job_type"))
	next, err := h.Schedule.NextRunUTC(c.Request.Context(), workspaceID, jobType)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_type": jobType, "next_run_at_utc": next})
}

func (h Handlers) DueNow(c *gin.Context) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return
	}
	jobType := schedule.JobType(c.Param("job_type"))
	due, err := h.Schedule.DueNow(c.Request.Context(), workspaceID, jobType, time.Now().UTC())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_type": jobType, "due": due})
}

// writeError maps service sentinel errors onto HTTP statuses. Unknown errors
// become opaque 500s; the detail stays in the logs.
func (h Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, records.ErrNotFound),
		errors.Is(err, billing.ErrNotFound),
		errors.Is(err, schedule.ErrNotFound),
		errors.Is(err, workspace.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, billing.ErrInvalidRequest),
		errors.Is(err, schedule.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pipeline.ErrRetryExhausted):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "retry budget exhausted"})
	case errors.Is(err, billing.ErrAlreadyFinalized):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "billing month is finalized"})
	case errors.Is(err, pipeline.ErrUpstreamUnavailable):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "transcription upstream unavailable"})
	default:
		logger.FromGin(c).Error("request failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
