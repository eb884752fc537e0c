package source

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSourceUnavailable is returned when a source cannot answer: missing
	// or rejected credentials, an unreachable host, or server errors that
	// outlived the adapter's retries.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited matches every *RateLimitedError.
	ErrRateLimited = errors.New("source rate limited")
)

// RateLimitedError is returned when a source asks the client to back off.
type RateLimitedError struct {
	Source string

	// RetryAfter is the wait the source asked for. Zero means unspecified.
	RetryAfter time.Duration
}

// Error implements error.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Source, e.RetryAfter)
	}
	return e.Source + ": rate limited"
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

func unavailable(source, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrSourceUnavailable, source, fmt.Sprintf(format, args...))
}
