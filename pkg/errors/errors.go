package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error codes. The first three digits are the HTTP status the code maps to.
const (
	CodeValidation   = 40001
	CodeUnauthorized = 40101
	CodeForbidden    = 40301
	CodeNotFound     = 40401
	CodeConflict     = 40901
	CodeInternal     = 50001
)

// Domain sentinels. Any *Error carrying the same code matches them under errors.Is.
var (
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "not authorized"}
	ErrForbidden    = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal     = &Error{Code: CodeInternal, Message: "internal error"}
)

// Error is a coded error. Message is safe to show API callers; Err and
// Stack are for logs only.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
	Stack   string `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return http.StatusText(HTTPStatus(e))
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same non-zero code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code != 0 && e.Code == t.Code
}

func newError(code int, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err, Stack: captureStack(3)}
}

// WithCode creates a coded error with a caller-facing message.
func WithCode(code int, message string) *Error {
	return newError(code, nil, message)
}

// Validation builds a validation error with a field-specific message.
func Validation(format string, args ...any) *Error {
	return newError(CodeValidation, nil, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return newError(CodeNotFound, nil, fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected failure (database, encoding). The message is
// what callers see; err only reaches the logs.
func Internal(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return newError(CodeInternal, err, message)
}

func captureStack(skip int) string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(skip+1, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

// GetCode returns the first non-zero code in the chain.
func GetCode(err error) int {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return 0
		}
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return 0
}

func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func GetStack(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stack
	}
	return ""
}

// Is and As are re-exported so callers need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }

// HTTPStatus maps an error to the status code the API answers with.
// Uncoded errors are 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	status := GetCode(err) / 100
	if status == 0 || http.StatusText(status) == "" {
		return http.StatusInternalServerError
	}
	return status
}

// Format prints the cause and stack under %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprint(s, e.Error())
			if e.Err != nil && e.Err.Error() != e.Message {
				fmt.Fprintf(s, ": %v", e.Err)
			}
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
