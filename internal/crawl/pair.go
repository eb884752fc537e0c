package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/pipeline"
	"github.com/nao1215/boxhunt/internal/source"
)

// processPair drives one (keyword, source) pair through its state machine.
// Only cancellation and storage failures are returned; everything else ends
// up in the summary.
func (c *Crawler) processPair(ctx context.Context, r *run, p pair) error {
	state, err := c.loadState(p)
	if err != nil {
		return err
	}

	ps := model.PairSummary{Keyword: p.keyword, SourceID: p.sourceID, Domain: p.domain}
	defer func() {
		ps.Status = state.Status
		ps.HasFailures = state.HasFailures
		ps.Candidates = len(state.Candidates)
		r.addPair(ps)
	}()

	if p.retryFailed {
		state.RetryFailedAfter = c.now()
		if state.Completed() && state.HasFailures {
			state.Status = model.PairInProgress
		}
	}
	if state.Completed() {
		c.logger.Debug("pair already completed", "keyword", p.keyword, "source", p.sourceID)
		return nil
	}

	if !state.Searched {
		if p.adapter == nil {
			ps.Warning = fmt.Sprintf("source %s is not configured; pair left %s", p.sourceID, state.Status)
			r.warn(fmt.Sprintf("%s/%s: %s", p.sourceID, p.keyword, ps.Warning))
			return c.saveState(state)
		}
		candidates, err := c.search(ctx, p)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			ps.Warning = err.Error()
			r.warn(fmt.Sprintf("%s/%s: search failed, pair left %s: %v", p.sourceID, p.keyword, state.Status, err))
			c.logger.Warn("search failed", "keyword", p.keyword, "source", p.sourceID, "error", err)
			return c.saveState(state)
		}
		state.Candidates = candidates
		state.Searched = true
		if err := c.saveState(state); err != nil {
			return err
		}
	}

	pending, skipped, err := c.pendingCandidates(state)
	if err != nil {
		return err
	}
	r.update(p.sourceID, func(s *model.SourceSummary) {
		s.Candidates += len(state.Candidates)
		s.Skipped += skipped
	})

	if len(pending) > 0 {
		state.Status = model.PairInProgress
		for _, cand := range pending {
			state.MarkAttempted(cand.ID())
		}
		if err := c.saveState(state); err != nil {
			return err
		}

		c.logger.Info("processing pair",
			"keyword", p.keyword,
			"source", p.sourceID,
			"pending", len(pending),
			"skipped", skipped,
		)
		err := c.batch().ProcessBatchWithCallback(ctx, p.domain, pending, func(job *pipeline.Job, _ int) {
			r.update(p.sourceID, func(s *model.SourceSummary) {
				ps.Processed++
				count(s, job)
			})
		})
		if err != nil {
			// The checkpoint stays in_progress; the ledger tells the next
			// run which candidates are left.
			return err
		}
	}

	return c.complete(state)
}

// count adds a finished job to a source summary.
func count(s *model.SourceSummary, job *pipeline.Job) {
	switch job.Status {
	case model.StatusRejected:
		s.AddRejection(job.Reason)
	case model.StatusDownloaded:
		s.Add(job.Status)
		if job.Record != nil {
			s.Bytes += job.Record.FileSize
		}
	default:
		s.Add(job.Status)
	}
}

// batch assembles the worker pool of one pair. The pipeline is stateless,
// so one instance serves every candidate.
func (c *Crawler) batch() *pipeline.BatchProcessor {
	p := pipeline.NewCandidatePipeline(c.filter, c.fetcher, c.hasher, c.committer, c.store,
		pipeline.WithLogger(c.logger))
	return pipeline.NewBatchProcessor(func() *pipeline.Pipeline { return p },
		pipeline.WithConcurrency(c.concurrency),
		pipeline.WithBatchLogger(c.logger),
	)
}

func (c *Crawler) loadState(p pair) (*model.CrawlState, error) {
	if p.state != nil {
		return p.state, nil
	}
	state, ok, err := c.store.LoadState(p.domain, p.keyword, p.sourceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		state = model.NewCrawlState(p.keyword, p.sourceID, p.domain, c.now())
	}
	return state, nil
}

func (c *Crawler) saveState(state *model.CrawlState) error {
	state.UpdatedAt = c.now()
	return c.store.SaveState(state)
}

// pendingCandidates splits the checkpointed candidates into those without
// a terminal ledger row and the number already settled.
func (c *Crawler) pendingCandidates(state *model.CrawlState) ([]model.ImageCandidate, int, error) {
	terminal, err := c.store.Terminal(state.Domain)
	if err != nil {
		return nil, 0, err
	}
	var pending []model.ImageCandidate
	skipped := 0
	for _, cand := range state.Candidates {
		if rec, ok := terminal[cand.ID()]; ok && state.IsTerminal(rec) {
			skipped++
			continue
		}
		pending = append(pending, cand)
	}
	return pending, skipped, nil
}

// complete marks the pair completed when every candidate has a terminal
// row, recording whether any of them failed.
func (c *Crawler) complete(state *model.CrawlState) error {
	terminal, err := c.store.Terminal(state.Domain)
	if err != nil {
		return err
	}
	done, failures := true, false
	for _, cand := range state.Candidates {
		rec, ok := terminal[cand.ID()]
		if !ok || !state.IsTerminal(rec) {
			done = false
			break
		}
		if rec.Status == model.StatusFailed {
			failures = true
		}
	}
	if done {
		state.Status = model.PairCompleted
		state.HasFailures = failures
		c.logger.Info("pair completed",
			"keyword", state.Keyword,
			"source", state.SourceID,
			"candidates", len(state.Candidates),
			"has_failures", failures,
		)
	}
	return c.saveState(state)
}

// search asks the source for candidates, retrying unavailable sources with
// backoff and honouring the wait a rate-limited source asked for.
func (c *Crawler) search(ctx context.Context, p pair) ([]model.ImageCandidate, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.searchBackoff
	eb.MaxElapsedTime = 0
	eb.Reset()

	for attempt := 1; ; attempt++ {
		candidates, err := p.adapter.Search(ctx, p.keyword, c.limit)
		if err == nil {
			c.logger.Debug("search done", "keyword", p.keyword, "source", p.sourceID, "candidates", len(candidates))
			return candidates, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if attempt >= c.searchAttempts {
			return nil, err
		}

		wait := eb.NextBackOff()
		var rl *source.RateLimitedError
		if errors.As(err, &rl) {
			if rl.RetryAfter > 0 {
				wait = rl.RetryAfter
			}
			pacing := c.fetcher.Slowdown(p.sourceID, slowdownFactor)
			c.logger.Warn("source rate limited", "source", p.sourceID, "wait", wait, "pacing", pacing)
		} else {
			c.logger.Warn("search failed, retrying",
				"source", p.sourceID,
				"keyword", p.keyword,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		}

		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
