package pipeline

import (
	"fmt"
	"sync"

	"github.com/nao1215/boxhunt/internal/dedup"
	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/quality"
	"github.com/nao1215/boxhunt/internal/storage"
)

// Acceptor persists accepted images. *storage.Manager implements it.
type Acceptor interface {
	Accept(domain string, c model.ImageCandidate, data []byte, f storage.AcceptFields) (*model.ImageRecord, error)
}

// Committer owns the deduplication index of a run. Lookup, accept and
// insert happen under one lock, so two near-identical images processed at
// the same time can never both be accepted.
type Committer struct {
	mu    sync.Mutex
	store Acceptor
	index *dedup.Index
}

// NewCommitter creates a Committer over an index that already holds every
// accepted image.
func NewCommitter(store Acceptor, index *dedup.Index) *Committer {
	return &Committer{store: store, index: index}
}

// Commit settles a fingerprinted job as duplicate, or stores it and adds it
// to the index. Only a storage failure is returned as an error.
func (c *Committer) Commit(job *Job) error {
	if !job.Hashed || job.Content == nil {
		return fmt.Errorf("commit: %s has no fingerprint", job.Candidate.URL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.index.Lookup(job.Fingerprint); ok {
		job.Match = &m
		job.Settle(model.StatusDuplicate, fmt.Sprintf("distance %d to %s", m.Distance, m.ID))
		return nil
	}

	rec, err := c.store.Accept(job.Domain, job.Candidate, job.Content.Body, storage.AcceptFields{
		Extension:    job.Inspection.Extension(),
		Width:        job.Inspection.Width,
		Height:       job.Inspection.Height,
		Fingerprint:  job.Fingerprint,
		DownloadedAt: job.DownloadedAt,
	})
	if err != nil {
		return err
	}
	c.index.Insert(dedup.Entry{ID: rec.ID, Fingerprint: job.Fingerprint, DownloadedAt: rec.DownloadedAt})
	job.Record = rec
	job.Settle(model.StatusDownloaded, "")
	return nil
}

// IndexSize returns the number of fingerprints in the index.
func (c *Committer) IndexSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Len()
}

// NewCandidatePipeline assembles the standard candidate pipeline:
// declared quality, fetch, content quality, fingerprint, commit, record.
func NewCandidatePipeline(
	filter *quality.Filter,
	downloader Downloader,
	hasher Hasher,
	committer *Committer,
	store OutcomeWriter,
	opts ...Option,
) *Pipeline {
	p := New(opts...)
	p.AddSteps(
		NewDeclaredQualityStep(filter),
		NewFetchStep(downloader, WithFetchLogger(p.logger)),
		NewContentQualityStep(filter),
		NewFingerprintStep(hasher),
		NewCommitStep(committer),
		NewRecordStep(store),
	)
	return p
}
