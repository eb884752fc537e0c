package model

import (
	"slices"
	"time"
)

// PairStatus is the lifecycle state of a (keyword, source) pair.
type PairStatus string

const (
	// PairPending means the pair has not been dispatched yet, or its search
	// could not be completed and the pair is waiting for a later run.
	PairPending PairStatus = "pending"

	// PairInProgress means candidates have been dispatched but not all of
	// them have a terminal ledger row.
	PairInProgress PairStatus = "in_progress"

	// PairCompleted means every candidate has a terminal ledger row.
	PairCompleted PairStatus = "completed"
)

// PairKey identifies a (keyword, source) pair.
type PairKey struct {
	Keyword  string
	SourceID string
}

// CrawlState is the checkpoint of one (keyword, source) pair.
type CrawlState struct {
	Keyword  string `json:"keyword"`
	SourceID string `json:"source"`
	Domain   string `json:"domain"`

	// Searched is true once the candidate list below came back from the source.
	Searched bool `json:"searched"`

	// Cursor is opaque to everything but the adapter.
	Cursor string `json:"cursor,omitempty"`

	Status      PairStatus `json:"status"`
	HasFailures bool       `json:"has_failures"`

	Candidates []ImageCandidate `json:"candidates,omitempty"`

	// Attempted holds the ids of candidates that have been dispatched at
	// least once, sorted.
	Attempted []string `json:"attempted,omitempty"`

	// RetryFailedAfter is set by an operator reset. Failed rows recorded
	// before this instant no longer count as terminal.
	RetryFailedAfter time.Time `json:"retry_failed_after,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCrawlState creates a pending checkpoint for a pair.
func NewCrawlState(keyword, sourceID, domain string, now time.Time) *CrawlState {
	return &CrawlState{
		Keyword:   keyword,
		SourceID:  sourceID,
		Domain:    domain,
		Status:    PairPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Key returns the pair key of the state.
func (s *CrawlState) Key() PairKey {
	return PairKey{Keyword: s.Keyword, SourceID: s.SourceID}
}

// Completed reports whether the pair reached its final state.
func (s *CrawlState) Completed() bool {
	return s.Status == PairCompleted
}

// ExhaustedWithFailures reports whether the pair completed with at least one
// failed candidate.
func (s *CrawlState) ExhaustedWithFailures() bool {
	return s.Status == PairCompleted && s.HasFailures
}

// MarkAttempted records that the candidate was dispatched.
func (s *CrawlState) MarkAttempted(candidateID string) {
	i, found := slices.BinarySearch(s.Attempted, candidateID)
	if found {
		return
	}
	s.Attempted = slices.Insert(s.Attempted, i, candidateID)
}

// WasAttempted reports whether the candidate was dispatched before.
func (s *CrawlState) WasAttempted(candidateID string) bool {
	_, found := slices.BinarySearch(s.Attempted, candidateID)
	return found
}

// IsTerminal decides whether a ledger record still ends its candidate for
// this pair, taking an operator reset into account.
func (s *CrawlState) IsTerminal(r ImageRecord) bool {
	if r.Status.Retryable() && !s.RetryFailedAfter.IsZero() && r.RecordedAt.Before(s.RetryFailedAfter) {
		return false
	}
	return true
}
