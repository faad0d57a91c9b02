package telephony

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"voicedesk-platform/internal/records"
)

func TestParseTwilioRecording(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("RecordingSid", "RE456")
	form.Set("From", " +15550001111 ")
	form.Set("CallerName", "Dana")
	form.Set("RecordingUrl", "https://api.twilio.com/rec/RE456")
	form.Set("RecordingDuration", "42")
	form.Set("RecordingStatus", "completed")

	req := httptest.NewRequest("POST", "/webhooks/twilio/recording", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	f, err := ParseTwilioRecording(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.CallSid != "CA123" || f.RecordingSid != "RE456" {
		t.Fatalf("unexpected ids: %+v", f)
	}
	if f.From != "+15550001111" {
		t.Fatalf("From not trimmed: %q", f.From)
	}

	ing := f.IngestRequest("ws1", records.KindVoicemail)
	if ing.SourceType != "twilio" || ing.ExternalID != "RE456" {
		t.Fatalf("dedupe key wrong: %+v", ing)
	}
	if ing.ProviderCallID != "CA123" || ing.RecordingURL != "https://api.twilio.com/rec/RE456" {
		t.Fatalf("mapping wrong: %+v", ing)
	}
	if ing.DurationSeconds == nil || *ing.DurationSeconds != 42 {
		t.Fatalf("duration not mapped: %+v", ing.DurationSeconds)
	}
}

func TestParseTwilioRecordingMissingIDs(t *testing.T) {
	form := url.Values{}
	form.Set("From", "+15550001111")

	req := httptest.NewRequest("POST", "/webhooks/twilio/recording", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := ParseTwilioRecording(req); err != ErrIncompleteWebhook {
		t.Fatalf("expected ErrIncompleteWebhook, got %v", err)
	}
}

func TestIngestRequestSkipsBadDuration(t *testing.T) {
	f := TwilioRecordingForm{CallSid: "CA1", RecordingSid: "RE1", RecordingDuration: "abc"}
	if ing := f.IngestRequest("ws1", records.KindCall); ing.DurationSeconds != nil {
		t.Fatalf("expected nil duration, got %v", *ing.DurationSeconds)
	}
}
