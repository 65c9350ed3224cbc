package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type TwilioSender struct {
	client     *http.Client
	baseURL    string
	accountSID string
	authToken  string
	from       string
}

func NewTwilioSender(baseURL, accountSID, authToken, from string, timeout time.Duration) *TwilioSender {
	return &TwilioSender{
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

func (s *TwilioSender) Name() string     { return "twilio" }
func (s *TwilioSender) Configured() bool { return true }

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *TwilioSender) SendSMS(ctx context.Context, msg SMSMessage) Result {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, url.PathEscape(s.accountSID))
	form := url.Values{
		"To":   {msg.To},
		"From": {s.from},
		"Body": {msg.Body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failure(fmt.Sprintf("twilio request: %v", err))
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("twilio send failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return failure(fmt.Sprintf("twilio response: %v", err))
	}

	var out twilioResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("twilio returned status %d", resp.StatusCode)
		if out.Message != "" {
			msg = fmt.Sprintf("twilio error %d: %s", out.Code, out.Message)
		}
		if recipientStatus(resp.StatusCode) {
			return rejected(msg)
		}
		return failure(msg)
	}
	return success(out.SID)
}

// recipientStatus reports whether Twilio refused this message rather than the account or
// the service failing. Auth errors, an unknown account and throttling concern every message.
func recipientStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}
