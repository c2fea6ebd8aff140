package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTransport means no usable response arrived: connection failure,
// timeout, or an unreadable body.
var ErrTransport = errors.New("transport failure")

// RejectedError is a response the server sent but refused to act on.
type RejectedError struct {
	StatusCode int
	Code       int
	Message    string
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server rejected request: http %d", e.StatusCode)
	}
	if e.Code != 0 {
		return fmt.Sprintf("server rejected request: http %d (%d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server rejected request: http %d: %s", e.StatusCode, e.Message)
}

// Validation reports a payload the server will never accept as-is.
func (e *RejectedError) Validation() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// Auth reports a missing or refused credential.
func (e *RejectedError) Auth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Retriable reports a refusal that may succeed later without changes.
func (e *RejectedError) Retriable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsValidation reports whether err is a validation-class rejection.
func IsValidation(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.Validation()
}
