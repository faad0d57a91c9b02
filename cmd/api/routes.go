package main

import (
	"database/sql"
	"errors"

	"voicedesk-platform/internal/httpapi"
	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/rbac"
	"voicedesk-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

type webhookDeps struct {
	pipeline *pipeline.Service
	db       *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, wh webhookDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: This endpoint should be protected by Twilio signature validation in production.
	{
		handler := telephony.TwilioWebhookHandler{
			Pipeline: wh.pipeline,
			WorkspaceIDResolver: func(c *gin.Context, accountSID string) (string, error) {
				return resolveWorkspaceByAccount(c, wh.db, accountSID)
			},
		}
		r.POST("/webhooks/twilio/recording", handler.HandleRecordingStatus)
	}

	// auth (public token issuance)
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireWorkspace())
	{
		recs := v1.Group("/records")
		recs.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleSuperAdmin))
		{
			recs.POST("", h.IngestRecord)
			recs.GET("/:record_id", h.GetRecord)
			recs.POST("/:record_id/process", h.ProcessRecord)
			recs.POST("/:record_id/retry", h.RetryRecord)
		}

		bill := v1.Group("/billing")
		bill.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleBillingAdmin, rbac.RoleSuperAdmin))
		{
			bill.GET("/months/:month", h.GetBillingMonth)
			bill.POST("/months/:month/recompute", h.RecomputeBillingMonth)
			bill.POST("/months/:month/finalize", h.FinalizeBillingMonth)
		}

		settings := v1.Group("/settings")
		settings.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			settings.GET("", h.GetSettings)
			settings.PUT("", h.PutSettings)
		}

		sched := v1.Group("/schedule")
		sched.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleOperator, rbac.RoleSuperAdmin))
		{
			sched.GET("/jobs/:job_type/next-run", h.NextRun)
			sched.GET("/jobs/:job_type/due", h.DueNow)
		}
	}
}

// resolveWorkspaceByAccount maps a Twilio account SID onto a workspace.
func resolveWorkspaceByAccount(c *gin.Context, db *sql.DB, accountSID string) (string, error) {
	if accountSID == "" {
		return "", errors.New("account sid missing")
	}
	var workspaceID string
	err := db.QueryRowContext(c.Request.Context(),
		`SELECT workspace_id FROM telephony_accounts WHERE provider = 'twilio' AND account_sid = $1`,
		accountSID,
	).Scan(&workspaceID)
	if err != nil {
		return "", err
	}
	return workspaceID, nil
}
