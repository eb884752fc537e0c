package pipeline

import (
	"time"

	"github.com/nao1215/boxhunt/internal/dedup"
	"github.com/nao1215/boxhunt/internal/fetch"
	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/quality"
)

// Job carries one candidate through the pipeline. Steps fill it in as
// they go; the first step that decides the candidate's outcome settles it.
type Job struct {
	// Domain is the storage domain the outcome is written to.
	Domain    string
	Candidate model.ImageCandidate

	// Content is set once the fetch succeeded.
	Content      *fetch.Result
	DownloadedAt time.Time

	// Inspection is what the content check learned about the image.
	Inspection quality.Inspection

	Fingerprint model.Fingerprint
	Hashed      bool

	// Status is the terminal outcome; empty while the job is open.
	Status model.Status
	Reason model.RejectReason
	Detail string

	// Match is the accepted image a duplicate collided with.
	Match *dedup.Match

	// Record is the ledger row written for the outcome.
	Record *model.ImageRecord

	// Steps lists the steps that ran, in order.
	Steps []string
}

// NewJob creates an open job for a candidate.
func NewJob(domain string, c model.ImageCandidate) *Job {
	return &Job{Domain: domain, Candidate: c}
}

// Settled reports whether the job has a terminal outcome.
func (j *Job) Settled() bool {
	return j.Status != ""
}

// Recorded reports whether the outcome reached the ledger.
func (j *Job) Recorded() bool {
	return j.Record != nil
}

// Settle fixes the outcome of the job.
func (j *Job) Settle(status model.Status, detail string) {
	j.Status = status
	j.Detail = detail
}

// Reject settles the job as rejected with a quality reason.
func (j *Job) Reject(v quality.Verdict) {
	j.Settle(model.StatusRejected, v.Detail)
	j.Reason = v.Reason
}
