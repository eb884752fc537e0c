package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so that callers can use
// errors.Is() while users still get a readable message.
var (
	// ErrNoDataDir is returned when the data directory is empty.
	ErrNoDataDir = errors.New("invalid data directory: must not be empty")

	// ErrInvalidDimensions is returned when a minimum dimension is negative.
	ErrInvalidDimensions = errors.New("invalid minimum dimensions: must be non-negative")

	// ErrNoAllowedFormats is returned when the format allow-list is empty.
	// Every candidate would be rejected.
	ErrNoAllowedFormats = errors.New("invalid allowed formats: at least one format is required")

	// ErrInvalidMaxFileSize is returned when the file size ceiling is not positive.
	ErrInvalidMaxFileSize = errors.New("invalid max file size: must be positive")

	// ErrInvalidMaxPixels is returned when the pixel-count ceiling is not positive.
	ErrInvalidMaxPixels = errors.New("invalid max pixels: must be positive")

	// ErrInvalidThreshold is returned when the duplicate threshold is outside 0..64.
	// A 64-bit fingerprint cannot differ in more than 64 bits.
	ErrInvalidThreshold = errors.New("invalid duplicate threshold: must be between 0 and 64")

	// ErrInvalidHashAlgorithm is returned for an unknown perceptual hash name.
	ErrInvalidHashAlgorithm = errors.New("invalid hash algorithm: must be phash, dhash or ahash")

	// ErrInvalidLimit is returned when the per-source image limit is not positive.
	ErrInvalidLimit = errors.New("invalid max images per source: must be positive")

	// ErrInvalidConcurrency is returned when the per-source concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRequestDelay is returned when the request delay is negative.
	ErrInvalidRequestDelay = errors.New("invalid request delay: must be non-negative")

	// ErrInvalidMaxAttempts is returned when the fetch attempt budget is not positive.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidSiteLimits is returned when a website spider bound is out of range.
	ErrInvalidSiteLimits = errors.New("invalid website limits: depth must be non-negative, image and page limits positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown are given.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
