package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/boxhunt/internal/fetch"
	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/quality"
	"github.com/nao1215/boxhunt/internal/storage"
)

// Downloader fetches candidate content. *fetch.Fetcher implements it.
type Downloader interface {
	Fetch(ctx context.Context, sourceID, url string) (*fetch.Result, error)
}

// Hasher fingerprints encoded image content. *phash.Hasher implements it.
type Hasher interface {
	HashBytes(data []byte) (model.Fingerprint, error)
}

// OutcomeWriter appends non-accept outcomes. *storage.Manager implements it.
type OutcomeWriter interface {
	RecordOutcome(domain string, c model.ImageCandidate, status model.Status, f storage.OutcomeFields) (*model.ImageRecord, error)
}

// DeclaredQualityStep rejects candidates whose declared metadata already
// fails the quality policy, before any byte is downloaded.
type DeclaredQualityStep struct {
	filter *quality.Filter
}

// NewDeclaredQualityStep creates the declared-metadata check.
func NewDeclaredQualityStep(filter *quality.Filter) *DeclaredQualityStep {
	return &DeclaredQualityStep{filter: filter}
}

// Name returns the step name.
func (s *DeclaredQualityStep) Name() string {
	return "declared_quality"
}

// Do executes the declared quality check.
func (s *DeclaredQualityStep) Do(_ context.Context, job *Job) error {
	if v := s.filter.EvaluateDeclared(job.Candidate); !v.Accepted {
		job.Reject(v)
	}
	return nil
}

// FetchStep downloads the candidate content.
type FetchStep struct {
	downloader Downloader
	now        func() time.Time
	logger     *slog.Logger
}

// FetchStepOption configures a FetchStep.
type FetchStepOption func(*FetchStep)

// WithFetchLogger sets a custom logger for the fetch step.
func WithFetchLogger(logger *slog.Logger) FetchStepOption {
	return func(s *FetchStep) {
		s.logger = logger
	}
}

// WithFetchClock sets the clock used for download times.
func WithFetchClock(now func() time.Time) FetchStepOption {
	return func(s *FetchStep) {
		s.now = now
	}
}

// NewFetchStep creates a new fetch step.
func NewFetchStep(downloader Downloader, opts ...FetchStepOption) *FetchStep {
	s := &FetchStep{
		downloader: downloader,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return "fetch"
}

// Do executes the fetch. Content over the size ceiling is a quality
// rejection; any other exhausted fetch is a failure.
func (s *FetchStep) Do(ctx context.Context, job *Job) error {
	c := job.Candidate
	res, err := s.downloader.Fetch(ctx, c.SourceID, c.URL)
	switch {
	case err == nil:
		job.Content = res
		job.DownloadedAt = s.now()
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, fetch.ErrOversize):
		job.Reject(quality.Verdict{Reason: model.RejectOversizeFile, Detail: err.Error()})
	default:
		s.logger.Info("fetch failed", "source", c.SourceID, "url", c.URL, "error", err)
		job.Settle(model.StatusFailed, err.Error())
	}
	return nil
}

// ContentQualityStep judges the downloaded bytes.
type ContentQualityStep struct {
	filter *quality.Filter
}

// NewContentQualityStep creates the content check.
func NewContentQualityStep(filter *quality.Filter) *ContentQualityStep {
	return &ContentQualityStep{filter: filter}
}

// Name returns the step name.
func (s *ContentQualityStep) Name() string {
	return "content_quality"
}

// Do executes the content quality check.
func (s *ContentQualityStep) Do(_ context.Context, job *Job) error {
	if job.Content == nil {
		return fmt.Errorf("content quality: %s has no content", job.Candidate.URL)
	}
	insp, v := s.filter.EvaluateContent(job.Content.Body, job.Content.ContentType)
	job.Inspection = insp
	if !v.Accepted {
		job.Reject(v)
	}
	return nil
}

// FingerprintStep computes the perceptual hash of the content.
type FingerprintStep struct {
	hasher Hasher
}

// NewFingerprintStep creates the fingerprint step.
func NewFingerprintStep(hasher Hasher) *FingerprintStep {
	return &FingerprintStep{hasher: hasher}
}

// Name returns the step name.
func (s *FingerprintStep) Name() string {
	return "fingerprint"
}

// Do executes the fingerprint step. Content that cannot be hashed is
// rejected as corrupt.
func (s *FingerprintStep) Do(_ context.Context, job *Job) error {
	if job.Content == nil {
		return fmt.Errorf("fingerprint: %s has no content", job.Candidate.URL)
	}
	fp, err := s.hasher.HashBytes(job.Content.Body)
	if err != nil {
		job.Reject(quality.Verdict{Reason: model.RejectCorruptImage, Detail: err.Error()})
		return nil
	}
	job.Fingerprint = fp
	job.Hashed = true
	return nil
}

// CommitStep decides between duplicate and accept through the run's
// Committer.
type CommitStep struct {
	committer *Committer
}

// NewCommitStep creates the commit step.
func NewCommitStep(committer *Committer) *CommitStep {
	return &CommitStep{committer: committer}
}

// Name returns the step name.
func (s *CommitStep) Name() string {
	return "commit"
}

// Do executes the commit step.
func (s *CommitStep) Do(_ context.Context, job *Job) error {
	return s.committer.Commit(job)
}

// RecordStep appends the ledger row of a settled job that is not yet
// recorded. Accepted images are recorded by the commit step.
type RecordStep struct {
	store OutcomeWriter
}

// NewRecordStep creates the record step.
func NewRecordStep(store OutcomeWriter) *RecordStep {
	return &RecordStep{store: store}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Finalizes implements Finalizer.
func (s *RecordStep) Finalizes() bool {
	return true
}

// Do executes the record step.
func (s *RecordStep) Do(_ context.Context, job *Job) error {
	if job.Recorded() {
		return nil
	}
	if !job.Settled() {
		return fmt.Errorf("record: %s reached the end of the pipeline without an outcome", job.Candidate.URL)
	}

	f := storage.OutcomeFields{
		Width:    job.Inspection.Width,
		Height:   job.Inspection.Height,
		FileSize: job.Inspection.Size,
	}
	if job.Hashed {
		fp := job.Fingerprint
		f.Fingerprint = &fp
	}
	rec, err := s.store.RecordOutcome(job.Domain, job.Candidate, job.Status, f)
	if err != nil {
		return err
	}
	job.Record = rec
	return nil
}
