package model

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// ImageCandidate is an image reference discovered from a source that has not
// been downloaded or judged yet.
//
// Candidates are immutable. They are persisted only inside a pair checkpoint
// so that a resumed run does not have to ask a non-idempotent source again.
type ImageCandidate struct {
	// SourceID identifies the source adapter that produced the candidate.
	SourceID string `json:"source"`

	// URL is the location of the full image content.
	URL string `json:"url"`

	// Title is the human readable description given by the source.
	Title string `json:"title,omitempty"`

	// Width and Height are the dimensions declared by the source.
	// Zero means unknown.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// DiscoveredAt is when the source returned this candidate.
	DiscoveredAt time.Time `json:"discovered_at"`
}

// ID returns the deterministic candidate id.
// The same source and URL always produce the same id, which is what makes
// ledger rows joinable with checkpointed candidates across runs.
func (c ImageCandidate) ID() string {
	return CandidateID(c.SourceID, c.URL)
}

// HasDeclaredDimensions reports whether the source declared both dimensions.
func (c ImageCandidate) HasDeclaredDimensions() bool {
	return c.Width > 0 && c.Height > 0
}

// CandidateID derives the candidate id from a source id and an image URL:
// the first 16 bytes of SHA3-256(source + "\n" + url), hex encoded.
func CandidateID(sourceID, url string) string {
	sum := sha3.Sum256([]byte(sourceID + "\n" + url))
	return hex.EncodeToString(sum[:16])
}
