package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated marks a 401 response.
	ErrUnauthenticated = errors.New("authentication failure")
	// ErrForbidden marks a 403 response.
	ErrForbidden = errors.New("authorization failure")
	// ErrNetwork marks a request that produced no response.
	ErrNetwork = errors.New("network failure")
	// ErrUnexpectedStatus marks any other non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// StatusError carries the HTTP status and server message of a failed call.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.Code)
}

func (e *StatusError) Unwrap() error {
	return e.kind
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
