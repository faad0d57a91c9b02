package pipeline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"voicedesk-platform/internal/audit"
	"voicedesk-platform/internal/auth"
	"voicedesk-platform/internal/records"
	"voicedesk-platform/internal/workspace"
	"voicedesk-platform/pkg/logger"
	"voicedesk-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxRetries caps total attempts per record, automatic or manual.
// RetryCount is intentionally never reset, so repeated manual retries also
// stop at this budget.
const DefaultMaxRetries = 3

var (
	ErrRetryExhausted      = errors.New("pipeline: retry budget exhausted")
	ErrUpstreamUnavailable = errors.New("pipeline: transcription upstream unavailable")
	ErrInvalidRequest      = errors.New("pipeline: invalid request")
)

// Service drives processing records through transcribe + analyze + redact.
//
// Concurrency: any number of workers (in any number of processes) may call
// Process on the same backlog. The status guard in records.Begin plus the
// conditional UpdateWhereStatus is the sole serialization mechanism; a lost
// claim race is a silent no-op. Retries are driven by explicit re-invocation,
// never by internal timers.
type Service struct {
	store       records.Store
	transcriber Transcriber
	redaction   RedactionPolicy
	settings    SettingsSource // optional per-workspace redaction config
	audit       *audit.Service // best-effort, may be nil

	// rdb enables the optional per-workspace transcription concurrency cap.
	rdb     *redis.Client
	maxConc int

	maxRetries int
	clock      func() time.Time
}

type Option func(*Service)

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithAudit wires best-effort audit logging for operator retries.
func WithAudit(a *audit.Service) Option {
	return func(s *Service) { s.audit = a }
}

// SettingsSource resolves per-workspace analysis settings. Only the analysis
// section is consulted here.
type SettingsSource interface {
	GetSettings(ctx context.Context, workspaceID string) (workspace.Settings, error)
}

// WithWorkspaceSettings makes redaction honor per-workspace configuration:
// the enabled flag and any extra patterns layered over the default rules. A
// workspace with no stored settings keeps the service-wide policy.
func WithWorkspaceSettings(src SettingsSource) Option {
	return func(s *Service) { s.settings = src }
}

// WithConcurrencyCap caps in-flight transcriptions per workspace via Redis.
func WithConcurrencyCap(rdb *redis.Client, max int) Option {
	return func(s *Service) {
		s.rdb = rdb
		s.maxConc = max
	}
}

func NewService(store records.Store, transcriber Transcriber, redaction RedactionPolicy, opts ...Option) *Service {
	s := &Service{
		store:       store,
		transcriber: transcriber,
		redaction:   redaction,
		maxRetries:  DefaultMaxRetries,
		clock:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// IngestRequest describes one upstream telephony event.
type IngestRequest struct {
	WorkspaceID string       `json:"workspace_id"`
	Kind        records.Kind `json:"kind"`

	// SourceType + ExternalID dedupe the upstream event.
	SourceType string `json:"source_type"`
	ExternalID string `json:"external_id"`

	ProviderCallID  string `json:"provider_call_id,omitempty"`
	FromNumber      string `json:"from_number,omitempty"`
	CallerName      string `json:"caller_name,omitempty"`
	RecordingURL    string `json:"recording_url,omitempty"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
}

// Ingest creates a pending record for the event, or returns the existing
// record when the composite key was seen before. Idempotent.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (records.Record, error) {
	if req.WorkspaceID == "" || req.SourceType == "" || req.ExternalID == "" {
		return records.Record{}, ErrInvalidRequest
	}
	if req.Kind == "" {
		req.Kind = records.KindCall
	}

	if existing, ok, err := s.store.FindBySource(ctx, req.WorkspaceID, req.SourceType, req.ExternalID); err != nil {
		return records.Record{}, err
	} else if ok {
		return existing, nil
	}

	now := s.clock().UTC()
	rec := records.Record{
		ID:              uuid.NewString(),
		WorkspaceID:     req.WorkspaceID,
		Kind:            req.Kind,
		ProviderCallID:  req.ProviderCallID,
		SourceType:      req.SourceType,
		ExternalID:      req.ExternalID,
		FromNumber:      req.FromNumber,
		CallerName:      req.CallerName,
		RecordingURL:    req.RecordingURL,
		DurationSeconds: req.DurationSeconds,
		Status:          records.StatusPending,
		RedactionStatus: records.RedactionPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		// An insert race with another ingester means the row now exists;
		// fall back to the dedupe read.
		if existing, ok, ferr := s.store.FindBySource(ctx, req.WorkspaceID, req.SourceType, req.ExternalID); ferr == nil && ok {
			return existing, nil
		}
		return records.Record{}, err
	}
	return rec, nil
}

// Process drives one record through the pipeline. It is a safe no-op when the
// record is not eligible: already processing or completed, terminally failed,
// or still waiting for its recording media.
func (s *Service) Process(ctx context.Context, workspaceID, recordID string) error {
	if workspaceID == "" || recordID == "" {
		return ErrInvalidRequest
	}
	rec, err := s.store.GetByID(ctx, workspaceID, recordID)
	if err != nil {
		return err
	}

	switch rec.Status {
	case records.StatusPending:
		// eligible
	case records.StatusFailed:
		if rec.RetryCount >= s.maxRetries {
			return nil
		}
	default:
		return nil
	}
	if rec.RecordingURL == "" {
		logger.From(ctx).Debug("record has no media yet, skipping", "record_id", rec.ID)
		return nil
	}

	return s.run(ctx, rec)
}

// Retry is the explicit operator entry point. Unlike Process it surfaces an
// exhausted retry budget to the caller.
func (s *Service) Retry(ctx context.Context, workspaceID, recordID string) error {
	if workspaceID == "" || recordID == "" {
		return ErrInvalidRequest
	}
	rec, err := s.store.GetByID(ctx, workspaceID, recordID)
	if err != nil {
		return err
	}
	if rec.RetryCount >= s.maxRetries {
		return ErrRetryExhausted
	}
	if s.audit != nil {
		_ = s.audit.LogManualRetry(ctx, workspaceID, actorUser(ctx), actorRole(ctx), recordID)
	}
	return s.Process(ctx, workspaceID, recordID)
}

func (s *Service) run(ctx context.Context, rec records.Record) error {
	log := logger.From(ctx)

	release, ok := s.acquireCap(ctx, rec.WorkspaceID)
	if !ok {
		// Workspace is at its transcription cap. Leave the record untouched;
		// the caller's next invocation picks it up.
		log.Debug("workspace at transcription cap", "workspace_id", rec.WorkspaceID)
		return nil
	}
	if release != nil {
		defer release()
	}

	prior, err := records.Begin(&rec, s.clock())
	if err != nil {
		// Raced with another caller between read and claim; expected, no-op.
		if errors.Is(err, records.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	n, err := s.store.UpdateWhereStatus(ctx, rec, prior)
	if err != nil {
		return err
	}
	if n == 0 {
		// Another worker claimed the record first.
		log.Debug("record already claimed", "record_id", rec.ID)
		return nil
	}

	result, upErr := s.transcriber.TranscribeAndAnalyze(ctx, rec.RecordingURL)
	now := s.clock()

	if upErr != nil {
		if ferr := records.Fail(&rec, upErr.Error()); ferr != nil {
			return ferr
		}
		if _, uerr := s.store.UpdateWhereStatus(ctx, rec, records.StatusProcessing); uerr != nil {
			return uerr
		}
		log.Warn("transcription failed",
			"record_id", rec.ID,
			"retry_count", rec.RetryCount,
			"err", upErr,
		)
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, upErr)
	}

	s.applyRedaction(ctx, &rec, result.Transcript, now)

	if cerr := records.Complete(&rec, result, now); cerr != nil {
		return cerr
	}
	if _, uerr := s.store.UpdateWhereStatus(ctx, rec, records.StatusProcessing); uerr != nil {
		return uerr
	}
	log.Info("record processed",
		"record_id", rec.ID,
		"model", result.Model,
		"redacted", rec.Redacted,
	)
	return nil
}

func (s *Service) applyRedaction(ctx context.Context, rec *records.Record, transcript string, now time.Time) {
	policy := s.policyFor(ctx, rec.WorkspaceID)
	if policy == nil {
		rec.RedactionStatus = records.RedactionNotNeeded
		return
	}
	if rec.DurationSeconds == nil || *rec.DurationSeconds <= 0 {
		// Segment offsets are audio seconds, so without a duration the scan
		// cannot place them. Left pending rather than passing as clean.
		rec.RedactionStatus = records.RedactionPending
		rec.Redacted = false
		rec.RedactedSegments = nil
		logger.From(ctx).Warn("redaction deferred, record has no duration",
			"record_id", rec.ID,
			"workspace_id", rec.WorkspaceID,
		)
		return
	}
	segs := policy.Scan(transcript, *rec.DurationSeconds)
	if len(segs) == 0 {
		rec.RedactionStatus = records.RedactionNotNeeded
		rec.Redacted = false
		rec.RedactedSegments = nil
		return
	}
	rec.RedactionStatus = records.RedactionCompleted
	rec.Redacted = true
	rec.RedactedSegments = segs
	t := now.UTC()
	rec.RedactedAt = &t
}

// policyFor picks the redaction policy for one workspace. Without a settings
// source (or without stored settings) the service-wide policy applies; stored
// settings can turn redaction off entirely or layer extra patterns over the
// defaults.
func (s *Service) policyFor(ctx context.Context, workspaceID string) RedactionPolicy {
	if s.settings == nil {
		return s.redaction
	}
	set, err := s.settings.GetSettings(ctx, workspaceID)
	if err != nil {
		if !errors.Is(err, workspace.ErrNotFound) {
			logger.From(ctx).Warn("workspace settings unavailable, using default redaction",
				"workspace_id", workspaceID,
				"err", err,
			)
		}
		return s.redaction
	}
	if !set.Analysis.RedactionEnabled {
		return nil
	}
	if len(set.Analysis.ExtraRedactionPatterns) == 0 {
		return s.redaction
	}

	extra := make([]PatternRule, 0, len(set.Analysis.ExtraRedactionPatterns))
	for reason, src := range set.Analysis.ExtraRedactionPatterns {
		re, cerr := regexp.Compile(src)
		if cerr != nil {
			// Settings are validated on write; a stored bad pattern is
			// skipped rather than blocking the whole scan.
			logger.From(ctx).Warn("skipping redaction pattern",
				"workspace_id", workspaceID,
				"reason", reason,
				"err", cerr,
			)
			continue
		}
		extra = append(extra, PatternRule{Reason: reason, Pattern: re})
	}
	return NewRegexPolicy(extra...)
}

// acquireCap takes a per-workspace transcription slot when a cap is
// configured. A Redis outage degrades to uncapped processing rather than
// blocking the pipeline.
func (s *Service) acquireCap(ctx context.Context, workspaceID string) (release func(), ok bool) {
	if s.rdb == nil || s.maxConc <= 0 {
		return nil, true
	}
	key := "transcribe_cap:" + workspaceID
	acquired, err := utils.AcquireConcurrencyCap(ctx, s.rdb, key, s.maxConc, 5*time.Minute)
	if err != nil {
		logger.From(ctx).Warn("transcription cap unavailable", "err", err)
		return nil, true
	}
	if !acquired {
		return nil, false
	}
	return func() { _ = utils.ReleaseConcurrencyCap(context.Background(), s.rdb, key) }, true
}

func actorUser(ctx context.Context) string {
	u, _ := auth.UserID(ctx)
	return u
}

func actorRole(ctx context.Context) string {
	r, _ := auth.Role(ctx)
	return r
}
