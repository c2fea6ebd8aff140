// Package apiclient talks to the alert service over HTTP.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"SOSBeacon/internal/models"
	constants "SOSBeacon/pkg/constant"
)

const (
	DefaultBaseURL   = "http://127.0.0.1:5000"
	DefaultAPIPrefix = "/api/v1"
)

type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithRetries sets how often a request is retried after a transport
// failure, 429 or 5xx. Zero disables retries.
func WithRetries(n int, base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.baseDelay = base
		c.maxDelay = maxDelay
	}
}

func WithAPIPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = "/" + strings.Trim(prefix, "/") }
}

func New(baseURL, token string, httpClient *http.Client, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{
		baseURL:    baseURL,
		prefix:     DefaultAPIPrefix,
		httpClient: httpClient,
		maxRetries: 2,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   2 * time.Second,
		token:      strings.TrimSpace(token),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Submission is the wire body of a new alert.
type Submission struct {
	Message   string          `json:"message"`
	Location  models.Location `json:"location"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// SubmitAlert posts an alert. key, when set, is sent as Idempotency-Key so a
// repeated submission returns the alert created the first time.
func (c *Client) SubmitAlert(ctx context.Context, sub Submission, key string) (*models.Alert, error) {
	headers := map[string]string{}
	if key != "" {
		headers[constants.IdempotencyHeader] = key
	}
	var env struct {
		Data models.Alert `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.prefix+"/alerts", headers, sub, &env, c.maxRetries); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

func (c *Client) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var env struct {
		Count  int            `json:"count"`
		Alerts []models.Alert `json:"alerts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.prefix+"/alerts", nil, nil, &env, c.maxRetries); err != nil {
		return nil, err
	}
	return env.Alerts, nil
}

func (c *Client) ResolveAlert(ctx context.Context, id string) (*models.Alert, error) {
	var env struct {
		Data models.Alert `json:"data"`
	}
	path := c.prefix + "/alerts/" + url.PathEscape(id)
	if err := c.doJSON(ctx, http.MethodPut, path, nil, nil, &env, c.maxRetries); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var env struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, c.prefix+"/auth/login", nil, body, &env, 0); err != nil {
		return "", err
	}
	c.SetToken(env.Token)
	return env.Token, nil
}

// Health is a single probe without retries.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, c.prefix+"/system/health", nil, nil, nil, 0)
}

// WebSocketURL is the relay endpoint carrying the token as a query parameter.
func (c *Client) WebSocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if tok := c.Token(); tok != "" {
		return u + "/ws?token=" + url.QueryEscape(tok)
	}
	return u + "/ws"
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, headers map[string]string, body, out any, maxRetries int) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if tok := c.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return fmt.Errorf("%w: %w", ErrTransport, waitErr)
				}
				continue
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("%w: %w", ErrTransport, readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("%w: decode response: %w", ErrTransport, err)
			}
			return nil
		}

		retryAfter := resp.Header.Get("Retry-After")
		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, retryAfter)); waitErr != nil {
				return fmt.Errorf("%w: %w", ErrTransport, waitErr)
			}
			continue
		}

		var errPayload struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &RejectedError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
			RetryAfter: parseRetryAfter(retryAfter),
		}
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
