package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of a candidate as written to the ledger.
type Status string

const (
	// StatusDownloaded means the image passed every filter and its bytes are on disk.
	StatusDownloaded Status = "downloaded"

	// StatusFailed means the fetch exhausted its retry budget.
	// It is the only outcome an operator may reset with resume --retry-failed.
	StatusFailed Status = "failed"

	// StatusDuplicate means the image is a near-duplicate of an accepted image.
	StatusDuplicate Status = "duplicate"

	// StatusRejected means the image failed a quality check.
	StatusRejected Status = "rejected"
)

// ErrInvalidStatus is returned when a ledger status column holds an unknown value.
var ErrInvalidStatus = errors.New("invalid record status")

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusDownloaded, StatusDuplicate, StatusRejected, StatusFailed}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDownloaded, StatusFailed, StatusDuplicate, StatusRejected:
		return true
	default:
		return false
	}
}

// Retryable reports whether an explicit operator reset may reopen a candidate
// that ended with this status.
func (s Status) Retryable() bool {
	return s == StatusFailed
}

// ParseStatus converts a ledger column into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// RejectReason explains why the quality filter rejected a candidate.
type RejectReason string

const (
	// RejectBelowMinDimensions means width or height is under the configured minimum.
	RejectBelowMinDimensions RejectReason = "below-min-dimensions"

	// RejectDisallowedFormat means the image format is not in the allow-list.
	RejectDisallowedFormat RejectReason = "disallowed-format"

	// RejectOversizeFile means the content exceeds the configured file size ceiling.
	RejectOversizeFile RejectReason = "oversize-file"

	// RejectCorruptImage means the content could not be decoded or hashed.
	RejectCorruptImage RejectReason = "corrupt-image"
)

// Fingerprint is a 64-bit perceptual hash.
type Fingerprint uint64

// String renders the fingerprint as 16 lower-case hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ParseFingerprint parses the 16 hex digit form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("invalid fingerprint %q: want 16 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// ImageRecord is one row of a storage domain's ledger.
//
// Records are append-only. A correction is a new row with a new id; the latest
// row for a candidate is its current outcome.
type ImageRecord struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename,omitempty"`
	URL            string    `json:"url"`
	SourceID       string    `json:"source"`
	Title          string    `json:"title,omitempty"`
	Width          int       `json:"width,omitempty"`
	Height         int       `json:"height,omitempty"`
	FileSize       int64     `json:"file_size,omitempty"`
	PerceptualHash string    `json:"perceptual_hash,omitempty"`
	DownloadedAt   time.Time `json:"download_time,omitzero"`
	RecordedAt     time.Time `json:"created_at"`
	Status         Status    `json:"status"`
}

// CandidateID returns the id of the candidate this record is an outcome for.
func (r ImageRecord) CandidateID() string {
	return CandidateID(r.SourceID, r.URL)
}

// Fingerprint parses the record's perceptual hash.
// It returns false when the record carries no hash.
func (r ImageRecord) Fingerprint() (Fingerprint, bool) {
	if r.PerceptualHash == "" {
		return 0, false
	}
	fp, err := ParseFingerprint(r.PerceptualHash)
	if err != nil {
		return 0, false
	}
	return fp, true
}

// NewRecordID returns a fresh, time-ordered record id.
func NewRecordID() string {
	return uuid.Must(uuid.NewV7()).String()
}
