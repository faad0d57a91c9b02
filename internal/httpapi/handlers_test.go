package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicedesk-platform/internal/auth"
	"voicedesk-platform/internal/billing"
	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/records"
	"voicedesk-platform/internal/schedule"
	"voicedesk-platform/internal/workspace"

	"github.com/gin-gonic/gin"
)

type stubTranscriber struct {
	err error
}

func (s stubTranscriber) TranscribeAndAnalyze(_ context.Context, _ string) (records.CompletionResult, error) {
	if s.err != nil {
		return records.CompletionResult{}, s.err
	}
	return records.CompletionResult{Transcript: "hello", Analysis: "{}", Model: "test"}, nil
}

func testRouter(t *testing.T, h Handlers, workspaceID string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "user-1", workspaceID, "operator")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/records", h.IngestRecord)
	r.GET("/records/:record_id", h.GetRecord)
	r.POST("/records/:record_id/retry", h.RetryRecord)
	r.GET("/billing/months/:month", h.GetBillingMonth)
	r.POST("/billing/months/:month/recompute", h.RecomputeBillingMonth)
	r.POST("/billing/months/:month/finalize", h.FinalizeBillingMonth)
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.PutSettings)
	r.GET("/schedule/jobs/:job_type/next-run", h.NextRun)
	return r
}

func testHandlers(store *records.MemoryStore, tr pipeline.Transcriber) Handlers {
	billingRepo := billing.NewMemoryRepo()
	settings := workspace.NewMemoryStore()
	settings.Put("ws1", workspace.Settings{
		Billing: workspace.BillingSettings{
			BaseMonthlyChargeMinor:    2000,
			IncludedAudioHours:        8,
			OverageRatePerMinuteMinor: 10,
		},
	})
	return Handlers{
		Pipeline: pipeline.NewService(store, tr, pipeline.NewRegexPolicy()),
		Records:  store,
		Billing:  billing.NewService(billingRepo, store),
		Schedule: schedule.NewService(schedule.NewMemoryRepo()),
		Settings: settings,
	}
}

func TestIngestAndGetRecord(t *testing.T) {
	store := records.NewMemoryStore()
	h := testHandlers(store, stubTranscriber{})
	r := testRouter(t, h, "ws1")

	body := `{"kind":"voicemail","source_type":"twilio","external_id":"RE1","recording_url":"https://p/RE1","duration_seconds":30}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body %s", w.Code, w.Body.String())
	}

	// Resubmitting the same event returns the existing record.
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("repeat ingest status = %d", w2.Code)
	}

	rec, _, err := store.FindBySource(context.Background(), "ws1", "twilio", "RE1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	w3 := httptest.NewRecorder()
	req3 := httptest.NewRequest(http.MethodGet, "/records/"+rec.ID, nil)
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusOK {
		t.Fatalf("get status = %d", w3.Code)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	h := testHandlers(records.NewMemoryStore(), stubTranscriber{})
	r := testRouter(t, h, "ws1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/records/missing", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRetryExhaustedReturnsConflict(t *testing.T) {
	store := records.NewMemoryStore()
	now := time.Now().UTC()
	dur := 30
	rec := records.Record{
		ID:          "r1",
		WorkspaceID: "ws1",
		Kind:        records.KindVoicemail,
		SourceType:  "twilio", ExternalID: "RE9",
		RecordingURL:    "https://p/RE9",
		DurationSeconds: &dur,
		Status:          records.StatusFailed,
		RetryCount:      3,
		CreatedAt:       now, UpdatedAt: now,
	}
	if err := store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	h := testHandlers(store, stubTranscriber{})
	r := testRouter(t, h, "ws1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/records/r1/retry", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for exhausted retry budget, got %d", w.Code)
	}
}

func TestBillingRecomputeAndFinalizeFlow(t *testing.T) {
	store := records.NewMemoryStore()
	h := testHandlers(store, stubTranscriber{})
	r := testRouter(t, h, "ws1")

	month := time.Now().UTC().Format("2006-01")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/billing/months/"+month+"/recompute", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("recompute status = %d, body %s", w.Code, w.Body.String())
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/billing/months/"+month+"/finalize", nil)
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("finalize status = %d", w2.Code)
	}

	// A finalized month rejects further recomputes.
	w3 := httptest.NewRecorder()
	req3 := httptest.NewRequest(http.MethodPost, "/billing/months/"+month+"/recompute", nil)
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusConflict {
		t.Fatalf("expected 409 recomputing finalized month, got %d", w3.Code)
	}
}

func TestBillingMonthNotFound(t *testing.T) {
	h := testHandlers(records.NewMemoryStore(), stubTranscriber{})
	r := testRouter(t, h, "ws1")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/billing/months/2024-01", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPutSettings_UpsertsSyncJob(t *testing.T) {
	h := testHandlers(records.NewMemoryStore(), stubTranscriber{})
	r := testRouter(t, h, "ws1")

	// Before any settings are saved the sync job does not exist.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule/jobs/voicemail_sync/next-run", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before settings saved, got %d", w.Code)
	}

	body := `{
		"telephony": {"voicemail_sync_enabled": true, "sync_timezone": "America/New_York", "sync_time_of_day": "06:30"},
		"billing": {"base_monthly_charge_minor": 2000, "included_audio_hours": 8, "overage_rate_per_minute_minor": 10}
	}`
	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("put settings status = %d, body %s", w2.Code, w2.Body.String())
	}

	// The save re-derived the voicemail sync job definition.
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/schedule/jobs/voicemail_sync/next-run", nil))
	if w3.Code != http.StatusOK {
		t.Fatalf("next-run after settings save = %d, body %s", w3.Code, w3.Body.String())
	}

	w4 := httptest.NewRecorder()
	r.ServeHTTP(w4, httptest.NewRequest(http.MethodGet, "/settings", nil))
	if w4.Code != http.StatusOK || !strings.Contains(w4.Body.String(), "America/New_York") {
		t.Fatalf("get settings = %d, body %s", w4.Code, w4.Body.String())
	}
}

func TestPutSettings_RejectsBadPattern(t *testing.T) {
	h := testHandlers(records.NewMemoryStore(), stubTranscriber{})
	r := testRouter(t, h, "ws1")

	body := `{"analysis": {"redaction_enabled": true, "extra_redaction_patterns": {"broken": "["}}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad pattern, got %d, body %s", w.Code, w.Body.String())
	}
}
