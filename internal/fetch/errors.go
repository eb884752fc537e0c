package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetworkFailure is returned when a fetch does not succeed within its
	// attempt budget, or fails permanently (a 4xx other than 429).
	// The candidate is recorded as failed.
	ErrNetworkFailure = errors.New("network failure")

	// ErrOversize is returned when the content exceeds the size ceiling,
	// whether announced by Content-Length or discovered while reading.
	// The candidate is rejected as oversize, not failed.
	ErrOversize = errors.New("content exceeds size ceiling")
)

// StatusError is an unexpected HTTP status.
type StatusError struct {
	Code int
	URL  string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s for %s", e.Code, http.StatusText(e.Code), e.URL)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}
