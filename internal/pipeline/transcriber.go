package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"voicedesk-platform/internal/records"
)

// Transcriber is the external transcription+analysis capability.
//
// Rules:
//   - No vendor SDK calls outside this adapter file.
//   - The capability is opaque: it returns text plus token usage, or fails.
//   - Calls may block for seconds; callers must not hold exclusive resources
//     across the call beyond the record's own committed status claim.
type Transcriber interface {
	TranscribeAndAnalyze(ctx context.Context, audioURL string) (records.CompletionResult, error)
}

// HTTPTranscriber calls an HTTP transcription/analysis service.
type HTTPTranscriber struct {
	BaseURL string
	APIKey  string

	// Client defaults to a client with Timeout if nil.
	Client  *http.Client
	Timeout time.Duration
}

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcribeResponse struct {
	Transcript   string `json:"transcript"`
	Analysis     string `json:"analysis"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

func (t *HTTPTranscriber) httpClient() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func (t *HTTPTranscriber) TranscribeAndAnalyze(ctx context.Context, audioURL string) (records.CompletionResult, error) {
	if t.BaseURL == "" {
		return records.CompletionResult{}, errors.New("pipeline: transcriber base url not configured")
	}
	if audioURL == "" {
		return records.CompletionResult{}, errors.New("pipeline: audio url required")
	}

	body, err := json.Marshal(transcribeRequest{AudioURL: audioURL})
	if err != nil {
		return records.CompletionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/v1/transcribe-analyze", bytes.NewReader(body))
	if err != nil {
		return records.CompletionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return records.CompletionResult{}, fmt.Errorf("transcriber request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return records.CompletionResult{}, fmt.Errorf("transcriber returned status %d", resp.StatusCode)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return records.CompletionResult{}, fmt.Errorf("transcriber response decode failed: %w", err)
	}
	if out.Transcript == "" {
		return records.CompletionResult{}, errors.New("transcriber returned empty transcript")
	}

	return records.CompletionResult{
		Transcript:   out.Transcript,
		Analysis:     out.Analysis,
		Model:        out.Model,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
	}, nil
}
