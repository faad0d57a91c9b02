package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"voicedesk-platform/internal/pipeline"
	"voicedesk-platform/internal/records"
)

// TwilioRecordingForm captures the subset of recording-status webhook fields
// we care about. Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/api/recording
//
// Keep it minimal and provider-adapter-only.
// Business logic (processing decisions) is not made here.

type TwilioRecordingForm struct {
	CallSid           string
	RecordingSid      string
	AccountSid        string
	From              string
	CallerName        string
	RecordingURL      string
	RecordingDuration string
	RecordingStatus   string
}

var ErrIncompleteWebhook = errors.New("telephony: webhook payload missing required fields")

func ParseTwilioRecording(r *http.Request) (TwilioRecordingForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioRecordingForm{}, err
	}
	f := TwilioRecordingForm{
		CallSid:           r.PostFormValue("CallSid"),
		RecordingSid:      r.PostFormValue("RecordingSid"),
		AccountSid:        r.PostFormValue("AccountSid"),
		From:              normalizePhone(r.PostFormValue("From")),
		CallerName:        r.PostFormValue("CallerName"),
		RecordingURL:      r.PostFormValue("RecordingUrl"),
		RecordingDuration: r.PostFormValue("RecordingDuration"),
		RecordingStatus:   r.PostFormValue("RecordingStatus"),
	}
	if f.CallSid == "" || f.RecordingSid == "" {
		return TwilioRecordingForm{}, ErrIncompleteWebhook
	}
	return f, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

// IngestRequest maps the webhook onto the pipeline's intake shape. The
// RecordingSid is the dedupe key: Twilio retries webhooks on non-2xx, and
// retried deliveries must collapse onto the same record.
func (f TwilioRecordingForm) IngestRequest(workspaceID string, kind records.Kind) pipeline.IngestRequest {
	req := pipeline.IngestRequest{
		WorkspaceID:    workspaceID,
		Kind:           kind,
		SourceType:     "twilio",
		ExternalID:     f.RecordingSid,
		ProviderCallID: f.CallSid,
		FromNumber:     f.From,
		CallerName:     f.CallerName,
		RecordingURL:   f.RecordingURL,
	}
	if secs, err := strconv.Atoi(f.RecordingDuration); err == nil && secs >= 0 {
		req.DurationSeconds = &secs
	}
	return req
}
