package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TwilioSource lists voicemail recordings through the Twilio REST API.
type TwilioSource struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
}

func NewTwilioSource(accountSID, authToken string) *TwilioSource {
	return &TwilioSource{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    "https://api.twilio.com",
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL points the adapter at a different API host. Used in tests.
func (s *TwilioSource) WithBaseURL(base string) *TwilioSource {
	s.baseURL = base
	return s
}

func (s *TwilioSource) Name() string { return "twilio" }

func (s *TwilioSource) HealthCheck(ctx context.Context) error {
	u := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telephony: twilio health check returned %d", resp.StatusCode)
	}
	return nil
}

type twilioRecording struct {
	Sid         string `json:"sid"`
	CallSid     string `json:"call_sid"`
	Duration    string `json:"duration"`
	Status      string `json:"status"`
	URI         string `json:"uri"`
	DateCreated string `json:"date_created"`
}

type twilioRecordingPage struct {
	Recordings  []twilioRecording `json:"recordings"`
	NextPageURI string            `json:"next_page_uri"`
}

func (s *TwilioSource) ListVoicemails(ctx context.Context, req ListVoicemailsRequest) (ListVoicemailsResult, error) {
	res := ListVoicemailsResult{WorkspaceID: req.WorkspaceID}

	q := url.Values{}
	if !req.Since.IsZero() {
		q.Set("DateCreated>", req.Since.UTC().Format("2006-01-02"))
	}
	if !req.Until.IsZero() {
		q.Set("DateCreated<", req.Until.UTC().Format("2006-01-02"))
	}
	page := fmt.Sprintf("/2010-04-01/Accounts/%s/Recordings.json?%s", s.accountSID, q.Encode())

	for page != "" {
		var body twilioRecordingPage
		if err := s.get(ctx, page, &body); err != nil {
			return ListVoicemailsResult{}, err
		}
		for _, rec := range body.Recordings {
			if rec.Status != "completed" {
				continue
			}
			ev := VoicemailEvent{
				ProviderID:     rec.Sid,
				ProviderCallID: rec.CallSid,
				RecordingURL:   s.baseURL + rec.URI,
			}
			if secs, err := strconv.Atoi(rec.Duration); err == nil {
				ev.DurationSeconds = &secs
			}
			if t, err := time.Parse(time.RFC1123Z, rec.DateCreated); err == nil {
				ev.LeftAt = t.UTC()
			}
			res.Voicemails = append(res.Voicemails, ev)
		}
		page = body.NextPageURI
	}
	return res, nil
}

func (s *TwilioSource) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telephony: twilio returned %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
