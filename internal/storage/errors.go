package storage

import "errors"

var (
	// ErrStorage wraps every disk failure: permission denied, disk full,
	// a ledger that cannot be opened. It is fatal to the current run.
	ErrStorage = errors.New("storage failure")

	// ErrInvalidDomain is returned for a domain name that cannot be a
	// single directory name.
	ErrInvalidDomain = errors.New("invalid storage domain")

	// ErrUnknownExportFormat is returned by Export for an unsupported format.
	ErrUnknownExportFormat = errors.New("unknown export format")
)
