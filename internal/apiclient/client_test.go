package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"SOSBeacon/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient(url string) *Client {
	return New(url, "tok", &http.Client{Timeout: time.Second}, WithRetries(2, time.Millisecond, 5*time.Millisecond))
}

func TestSubmitAlertSendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/alerts", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body Submission
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Help", body.Message)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": models.Alert{ID: "abc123", Status: "pending", Message: body.Message}})
	}))
	defer srv.Close()

	alert, err := fastClient(srv.URL).SubmitAlert(context.Background(), Submission{Message: "Help", Location: models.Location{Latitude: 20.5, Longitude: 78.9}}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", alert.ID)
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "count": 0, "alerts": []any{}})
	}))
	defer srv.Close()

	alerts, err := fastClient(srv.URL).ListAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestValidationRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"An alert message is required","code":40001}`))
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).SubmitAlert(context.Background(), Submission{}, "")
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.True(t, rej.Validation())
	assert.False(t, rej.Retriable())
	assert.Equal(t, 40001, rej.Code)
	assert.Equal(t, "An alert message is required", rej.Message)
	assert.True(t, IsValidation(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := fastClient(url).Health(context.Background())
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestTimeoutIsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", &http.Client{Timeout: 50 * time.Millisecond}, WithRetries(0, 0, 0))
	_, err := c.SubmitAlert(context.Background(), Submission{Message: "x"}, "k")
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestRejectedErrorClasses(t *testing.T) {
	for status, want := range map[int][3]bool{
		400: {true, false, false},
		413: {true, false, false},
		422: {true, false, false},
		401: {false, true, false},
		403: {false, true, false},
		408: {false, false, true},
		409: {false, false, true},
		425: {false, false, true},
		429: {false, false, true},
		503: {false, false, true},
	} {
		e := &RejectedError{StatusCode: status}
		assert.Equal(t, want, [3]bool{e.Validation(), e.Auth(), e.Retriable()}, "status %d", status)
	}
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"token":"fresh"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", nil)
	tok, err := c.Login(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, "fresh", c.Token())
	assert.Contains(t, c.WebSocketURL(), "ws://")
	assert.Contains(t, c.WebSocketURL(), "/ws?token=fresh")
}
