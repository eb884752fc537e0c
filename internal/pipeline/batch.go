package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/boxhunt/internal/model"
)

// DefaultConcurrency is the number of candidates processed at once when
// WithConcurrency is not given.
const DefaultConcurrency = 3

// BatchProcessor runs the candidates of one source through pipelines with a
// bounded number of goroutines. The bound is the backpressure between a
// source's search results and its downloads.
type BatchProcessor struct {
	// pipelineFactory creates the pipeline of each candidate.
	pipelineFactory func() *Pipeline

	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of candidates in flight.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch processes candidates and returns their jobs in input order.
// A job that was not reached because the batch stopped early is nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, domain string, candidates []model.ImageCandidate) ([]*Job, error) {
	jobs := make([]*Job, len(candidates))
	err := bp.ProcessBatchWithCallback(ctx, domain, candidates, func(job *Job, index int) {
		jobs[index] = job
	})
	return jobs, err
}

// ProcessBatchWithCallback processes candidates and calls callback for
// every job whose pipeline finished. The callback runs on the worker
// goroutine and must be safe for concurrent use.
//
// The first error stops the batch: jobs in flight see a cancelled context
// and no new job starts. The error is returned after every worker exited.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	domain string,
	candidates []model.ImageCandidate,
	callback func(job *Job, index int),
) error {
	if len(candidates) == 0 {
		return nil
	}

	bp.logger.Debug("starting batch",
		"domain", domain,
		"candidates", len(candidates),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			job := NewJob(domain, c)
			if err := bp.pipelineFactory().Execute(gctx, job); err != nil {
				return err
			}
			callback(job, i)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	bp.logger.Debug("batch finished",
		"domain", domain,
		"candidates", len(candidates),
		"elapsed", time.Since(startTime),
		"error", err,
	)
	return err
}
