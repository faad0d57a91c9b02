package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicedesk-platform/internal/audit"
	"voicedesk-platform/internal/auth"
	"voicedesk-platform/internal/billing"
	"voicedesk-platform/internal/config"
	"voicedesk-platform/internal/httpapi"
	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/records"
	"voicedesk-platform/internal/schedule"
	"voicedesk-platform/internal/telephony"
	"voicedesk-platform/internal/workspace"
	"voicedesk-platform/pkg/logger"
	"voicedesk-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	recordStore := records.NewSQLStore(db)
	billingRepo := billing.NewSQLRepo(db)
	scheduleRepo := schedule.NewSQLRepo(db)
	settingsStore := workspace.NewSQLStore(db)
	auditSvc := audit.NewService(audit.NewSQLRepo(db))

	// Services
	transcriber := &pipeline.HTTPTranscriber{
		BaseURL: cfg.Transcriber.BaseURL,
		APIKey:  cfg.Transcriber.APIKey,
		Timeout: cfg.Transcriber.Timeout,
	}
	pipelineSvc := pipeline.NewService(recordStore, transcriber, pipeline.NewRegexPolicy(),
		pipeline.WithMaxRetries(cfg.Processing.MaxRetries),
		pipeline.WithAudit(auditSvc),
		pipeline.WithConcurrencyCap(rdb, cfg.Processing.MaxConcurrent),
		pipeline.WithWorkspaceSettings(settingsStore),
	)
	billingSvc := billing.NewService(billingRepo, recordStore).WithAudit(auditSvc)
	scheduleSvc := schedule.NewService(scheduleRepo).WithDispatchLease(rdb).WithAudit(auditSvc)

	twilioSource := telephony.NewTwilioSource(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:     authManager,
		Pipeline: pipelineSvc,
		Records:  recordStore,
		Billing:  billingSvc,
		Schedule: scheduleSvc,
		Settings: settingsStore,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), webhookDeps{
		pipeline: pipelineSvc,
		db:       db,
	})

	// Recurring jobs run in-process; the Redis lease plus conditional MarkRun
	// keep multiple replicas from double-dispatching.
	go runScheduler(logger.With(rootCtx, log), scheduleSvc, cfg.Schedule.TickInterval, map[schedule.JobType]schedule.Dispatcher{
		schedule.JobTypeVoicemailSync: telephony.NewVoicemailSync(twilioSource, pipelineSvc),
		schedule.JobTypeBillingRollup: billing.NewRollupDispatcher(billingSvc, planSource{settingsStore}),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func runScheduler(ctx context.Context, svc *schedule.Service, interval time.Duration, dispatchers map[schedule.JobType]schedule.Dispatcher) {
	log := logger.From(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for jobType, d := range dispatchers {
				if err := svc.Tick(ctx, jobType, d, now.UTC()); err != nil {
					log.Error("scheduler tick failed", "job_type", jobType, "err", err)
				}
			}
		}
	}
}

// planSource adapts workspace settings to the billing rollup's plan lookup.
type planSource struct {
	settings workspace.Store
}

func (p planSource) PlanFor(ctx context.Context, workspaceID string) (billing.Plan, error) {
	set, err := p.settings.GetSettings(ctx, workspaceID)
	if err != nil {
		return billing.Plan{}, err
	}
	return set.Billing.Plan(), nil
}
