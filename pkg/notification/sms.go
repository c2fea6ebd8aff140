package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSConfig targets a Twilio-compatible Messages endpoint
// (form POST with basic auth, fields To, From, Body).
type SMSConfig struct {
	Endpoint   string
	AccountSID string
	AuthToken  string
	From       string
	Timeout    time.Duration
}

func (c SMSConfig) Enabled() bool {
	return c.Endpoint != "" && c.From != ""
}

// SMSClient delivers one message through a gateway.
type SMSClient interface {
	Send(ctx context.Context, to, from, body string) error
}

type SMS struct {
	cfg SMSConfig
	cli SMSClient
}

// NewSMS uses cli when given, otherwise the HTTP client for cfg.Endpoint.
func NewSMS(cfg SMSConfig, cli SMSClient) *SMS {
	if cli == nil && cfg.Enabled() {
		cli = newHTTPSMSClient(cfg)
	}
	return &SMS{cfg: cfg, cli: cli}
}

func (s *SMS) Send(ctx context.Context, to, body string) error {
	if s.cli == nil {
		return fmt.Errorf("SMSClient not configured")
	}
	if to == "" {
		return fmt.Errorf("sms recipient is empty")
	}
	return s.cli.Send(ctx, to, s.cfg.From, body)
}

type httpSMSClient struct {
	cfg  SMSConfig
	http *http.Client
}

func newHTTPSMSClient(cfg SMSConfig) *httpSMSClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpSMSClient{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

func (h *httpSMSClient) Send(ctx context.Context, to, from, body string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if h.cfg.AccountSID != "" {
		req.SetBasicAuth(h.cfg.AccountSID, h.cfg.AuthToken)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
