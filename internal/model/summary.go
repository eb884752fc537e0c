package model

import (
	"maps"
	"slices"
	"time"
)

// RunMode names the operation that produced a run summary.
type RunMode string

const (
	RunModeCrawl     RunMode = "crawl"
	RunModeResume    RunMode = "resume"
	RunModeCrawlSite RunMode = "crawl-site"
)

// SourceSummary counts the outcomes of one source during a run.
type SourceSummary struct {
	SourceID   string `json:"source"`
	Candidates int    `json:"candidates"`

	Downloaded int `json:"downloaded"`
	Duplicate  int `json:"duplicate"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`

	// Skipped counts candidates that already had a terminal row.
	Skipped int `json:"skipped"`

	RejectReasons map[RejectReason]int `json:"reject_reasons,omitempty"`

	// Bytes is the total size of the images accepted during the run.
	Bytes int64 `json:"bytes"`
}

// Add counts one terminal outcome.
func (s *SourceSummary) Add(status Status) {
	switch status {
	case StatusDownloaded:
		s.Downloaded++
	case StatusDuplicate:
		s.Duplicate++
	case StatusRejected:
		s.Rejected++
	case StatusFailed:
		s.Failed++
	}
}

// AddRejection counts one quality rejection with its reason.
func (s *SourceSummary) AddRejection(reason RejectReason) {
	s.Add(StatusRejected)
	if s.RejectReasons == nil {
		s.RejectReasons = make(map[RejectReason]int)
	}
	s.RejectReasons[reason]++
}

// Count returns the number of outcomes with the given status.
func (s *SourceSummary) Count(status Status) int {
	switch status {
	case StatusDownloaded:
		return s.Downloaded
	case StatusDuplicate:
		return s.Duplicate
	case StatusRejected:
		return s.Rejected
	case StatusFailed:
		return s.Failed
	default:
		return 0
	}
}

// Processed returns the number of outcomes recorded during the run.
func (s *SourceSummary) Processed() int {
	return s.Downloaded + s.Duplicate + s.Rejected + s.Failed
}

// PairSummary is the end-of-run state of one (keyword, source) pair.
type PairSummary struct {
	Keyword     string     `json:"keyword"`
	SourceID    string     `json:"source"`
	Domain      string     `json:"domain"`
	Status      PairStatus `json:"status"`
	HasFailures bool       `json:"has_failures"`
	Candidates  int        `json:"candidates"`
	Processed   int        `json:"processed"`
	Warning     string     `json:"warning,omitempty"`
}

// ExhaustedWithFailures reports whether the pair completed with failed candidates.
func (p PairSummary) ExhaustedWithFailures() bool {
	return p.Status == PairCompleted && p.HasFailures
}

// RunSummary is the user-visible result of a crawl, resume or crawl-site run.
type RunSummary struct {
	RunID      string                    `json:"run_id"`
	Mode       RunMode                   `json:"mode"`
	Keywords   []string                  `json:"keywords"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at,omitzero"`
	Sources    map[string]*SourceSummary `json:"sources"`
	Pairs      []PairSummary             `json:"pairs"`
	Warnings   []string                  `json:"warnings,omitempty"`

	// IndexSize is the number of fingerprints in the deduplication index at
	// the end of the run.
	IndexSize int `json:"index_size"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

// NewRunSummary creates an empty summary for a run.
func NewRunSummary(runID string, mode RunMode, keywords []string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Mode:      mode,
		Keywords:  keywords,
		StartedAt: startedAt,
		Sources:   make(map[string]*SourceSummary),
	}
}

// Source returns the summary of a source, creating it on first use.
func (r *RunSummary) Source(sourceID string) *SourceSummary {
	s, ok := r.Sources[sourceID]
	if !ok {
		s = &SourceSummary{SourceID: sourceID}
		r.Sources[sourceID] = s
	}
	return s
}

// SortedSources returns the source summaries ordered by source id.
func (r *RunSummary) SortedSources() []*SourceSummary {
	ids := slices.Sorted(maps.Keys(r.Sources))
	out := make([]*SourceSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Sources[id])
	}
	return out
}

// Totals sums every source summary.
func (r *RunSummary) Totals() SourceSummary {
	total := SourceSummary{SourceID: "total"}
	for _, s := range r.Sources {
		total.Candidates += s.Candidates
		total.Downloaded += s.Downloaded
		total.Duplicate += s.Duplicate
		total.Rejected += s.Rejected
		total.Failed += s.Failed
		total.Skipped += s.Skipped
		total.Bytes += s.Bytes
		for reason, n := range s.RejectReasons {
			if total.RejectReasons == nil {
				total.RejectReasons = make(map[RejectReason]int)
			}
			total.RejectReasons[reason] += n
		}
	}
	return total
}

// ExhaustedWithFailures lists the pairs that completed with failed candidates.
func (r *RunSummary) ExhaustedWithFailures() []PairSummary {
	var out []PairSummary
	for _, p := range r.Pairs {
		if p.ExhaustedWithFailures() {
			out = append(out, p)
		}
	}
	return out
}

// Unfinished lists the pairs that did not complete and can be resumed.
func (r *RunSummary) Unfinished() []PairSummary {
	var out []PairSummary
	for _, p := range r.Pairs {
		if p.Status != PairCompleted {
			out = append(out, p)
		}
	}
	return out
}

// Duration returns how long the run took.
func (r *RunSummary) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
