package crawl

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/boxhunt/internal/dedup"
	"github.com/nao1215/boxhunt/internal/fetch"
	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/pipeline"
	"github.com/nao1215/boxhunt/internal/quality"
	"github.com/nao1215/boxhunt/internal/source"
	"github.com/nao1215/boxhunt/internal/storage"
)

// Defaults of a Crawler.
const (
	DefaultLimit          = 20
	DefaultSearchAttempts = 3
	DefaultSearchBackoff  = 2 * time.Second

	// slowdownFactor multiplies a source's pacing when it rate limits us.
	slowdownFactor = 2
)

// History stores run summaries. *database.DB implements it.
type History interface {
	SaveRun(ctx context.Context, summary *model.RunSummary) (int64, error)
}

// Options configures a Crawler.
type Options struct {
	Store   *storage.Manager
	Sources source.Set
	Fetcher *fetch.Fetcher
	Filter  *quality.Filter
	Hasher  pipeline.Hasher

	// Threshold is the largest Hamming distance still counted as a duplicate.
	Threshold int

	// Limit is the number of candidates asked from a source per keyword.
	Limit int

	// Concurrency bounds the candidates of one source in flight.
	// Zero uses the fetcher's per-source concurrency.
	Concurrency int

	// SearchAttempts and SearchBackoff govern retries of a failed search.
	SearchAttempts int
	SearchBackoff  time.Duration

	Logger  *slog.Logger
	History History

	// Warnings are carried into every run summary, e.g. skipped sources.
	Warnings []string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Crawler is an explicit run context.
type Crawler struct {
	store          *storage.Manager
	sources        source.Set
	fetcher        *fetch.Fetcher
	filter         *quality.Filter
	hasher         pipeline.Hasher
	limit          int
	concurrency    int
	searchAttempts int
	searchBackoff  time.Duration
	logger         *slog.Logger
	history        History
	warnings       []string
	now            func() time.Time

	committer *pipeline.Committer
}

// New creates a run context and rebuilds the deduplication index from the
// downloaded rows of every storage domain.
func New(opts Options) (*Crawler, error) {
	switch {
	case opts.Store == nil:
		return nil, fmt.Errorf("%w: storage", ErrMissingDependency)
	case opts.Fetcher == nil:
		return nil, fmt.Errorf("%w: fetcher", ErrMissingDependency)
	case opts.Filter == nil:
		return nil, fmt.Errorf("%w: quality filter", ErrMissingDependency)
	case opts.Hasher == nil:
		return nil, fmt.Errorf("%w: hasher", ErrMissingDependency)
	}

	c := &Crawler{
		store:          opts.Store,
		sources:        opts.Sources,
		fetcher:        opts.Fetcher,
		filter:         opts.Filter,
		hasher:         opts.Hasher,
		limit:          opts.Limit,
		concurrency:    opts.Concurrency,
		searchAttempts: opts.SearchAttempts,
		searchBackoff:  opts.SearchBackoff,
		logger:         opts.Logger,
		history:        opts.History,
		warnings:       slices.Clone(opts.Warnings),
		now:            opts.Clock,
	}
	if c.sources == nil {
		c.sources = make(source.Set)
	}
	if c.limit <= 0 {
		c.limit = DefaultLimit
	}
	if c.concurrency <= 0 {
		c.concurrency = c.fetcher.Concurrency()
	}
	if c.searchAttempts <= 0 {
		c.searchAttempts = DefaultSearchAttempts
	}
	if c.searchBackoff <= 0 {
		c.searchBackoff = DefaultSearchBackoff
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}

	records, err := c.store.Records()
	if err != nil {
		return nil, err
	}
	index := dedup.NewIndex(opts.Threshold)
	size := index.Rebuild(records)
	c.logger.Debug("deduplication index rebuilt", "fingerprints", size, "threshold", opts.Threshold)

	c.committer = pipeline.NewCommitter(c.store, index)
	return c, nil
}

// IndexSize returns the number of fingerprints in the deduplication index.
func (c *Crawler) IndexSize() int {
	return c.committer.IndexSize()
}

// pair is one unit of work: a keyword for a source.
type pair struct {
	keyword  string
	sourceID string
	domain   string

	// adapter is nil when a resumed pair's source is not configured; such
	// a pair can still finish its checkpointed candidates.
	adapter source.Adapter

	// retryFailed reopens failed outcomes recorded before the run.
	retryFailed bool

	// state is a checkpoint already loaded by the planner.
	state *model.CrawlState
}

// run is the mutable bookkeeping of one Crawl, Resume or CrawlSite call.
type run struct {
	mu      sync.Mutex
	summary *model.RunSummary
}

func (r *run) addPair(p model.PairSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Pairs = append(r.summary.Pairs, p)
}

func (r *run) warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary.Warnings = append(r.summary.Warnings, msg)
}

func (r *run) update(sourceID string, fn func(s *model.SourceSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.summary.Source(sourceID))
}

// Crawl runs every keyword against every configured source.
func (c *Crawler) Crawl(ctx context.Context, keywords []string) (*model.RunSummary, error) {
	if len(c.sources) == 0 {
		return nil, ErrNoSources
	}
	keywords = uniqueKeywords(keywords)
	if len(keywords) == 0 {
		return nil, ErrNoKeywords
	}

	plan := make(map[string][]pair)
	for _, id := range c.sources.IDs() {
		a := c.sources[id]
		for _, kw := range keywords {
			plan[id] = append(plan[id], pair{
				keyword:  kw,
				sourceID: id,
				domain:   source.DomainOf(a),
				adapter:  a,
			})
		}
	}
	return c.execute(ctx, model.RunModeCrawl, keywords, plan)
}

// CrawlSite crawls one website. The start URL plays the role of the
// keyword, and the site name is both the source id and the storage domain.
func (c *Crawler) CrawlSite(ctx context.Context, site *source.Website, startURL string) (*model.RunSummary, error) {
	if site == nil {
		return nil, ErrNoSources
	}
	plan := map[string][]pair{
		site.ID(): {{
			keyword:  startURL,
			sourceID: site.ID(),
			domain:   source.DomainOf(site),
			adapter:  site,
		}},
	}
	return c.execute(ctx, model.RunModeCrawlSite, []string{startURL}, plan)
}

// ResumeOptions selects what Resume re-enters.
type ResumeOptions struct {
	// Keywords restricts the run to these keywords. Empty means every
	// checkpointed pair.
	Keywords []string

	// RetryFailed is the operator's explicit reset: failed outcomes
	// recorded before this run become non-terminal again.
	RetryFailed bool
}

// Resume re-enters every checkpointed pair that did not complete. Completed
// pairs are left alone unless RetryFailed reopens their failures.
func (c *Crawler) Resume(ctx context.Context, opts ResumeOptions) (*model.RunSummary, error) {
	states, err := c.store.States()
	if err != nil {
		return nil, err
	}

	wanted := uniqueKeywords(opts.Keywords)
	plan := make(map[string][]pair)
	var keywords, notes []string
	matched := make(map[string]bool)
	for _, st := range states {
		if len(wanted) > 0 {
			i := slices.IndexFunc(wanted, func(k string) bool { return model.SameKeyword(k, st.Keyword) })
			if i < 0 {
				continue
			}
			matched[wanted[i]] = true
		}
		if st.Completed() && !(opts.RetryFailed && st.HasFailures) {
			continue
		}
		plan[st.SourceID] = append(plan[st.SourceID], pair{
			keyword:     st.Keyword,
			sourceID:    st.SourceID,
			domain:      st.Domain,
			adapter:     c.sources[st.SourceID],
			retryFailed: opts.RetryFailed,
			state:       st,
		})
		if !slices.ContainsFunc(keywords, func(k string) bool { return model.SameKeyword(k, st.Keyword) }) {
			keywords = append(keywords, st.Keyword)
		}
	}
	for _, kw := range wanted {
		if !matched[kw] {
			notes = append(notes, fmt.Sprintf("no checkpoint for keyword %q", kw))
		}
	}
	if len(plan) == 0 {
		notes = append(notes, "nothing to resume: every checkpointed pair is completed")
	}

	summary, err := c.execute(ctx, model.RunModeResume, keywords, plan, notes...)
	return summary, err
}

// execute runs a plan: sources concurrently, the pairs of one source in order.
func (c *Crawler) execute(ctx context.Context, mode model.RunMode, keywords []string, plan map[string][]pair, notes ...string) (*model.RunSummary, error) {
	r := &run{summary: model.NewRunSummary(uuid.NewString(), mode, keywords, c.now())}
	r.summary.Warnings = append(slices.Clone(c.warnings), notes...)

	c.logger.Info("run started", "run_id", r.summary.RunID, "mode", mode, "sources", len(plan), "keywords", len(keywords))

	g, gctx := errgroup.WithContext(ctx)
	for _, pairs := range plan {
		g.Go(func() error {
			for _, p := range pairs {
				if err := c.processPair(gctx, r, p); err != nil {
					return err
				}
			}
			return nil
		})
	}
	err := g.Wait()

	summary := r.summary
	summary.FinishedAt = c.now()
	summary.IndexSize = c.IndexSize()
	slices.SortFunc(summary.Pairs, func(a, b model.PairSummary) int {
		return cmp.Or(
			strings.Compare(a.SourceID, b.SourceID),
			cmp.Compare(slices.Index(keywords, a.Keyword), slices.Index(keywords, b.Keyword)),
		)
	})

	switch {
	case err == nil:
	case errors.Is(err, storage.ErrStorage):
		summary.Aborted = true
		summary.AbortReason = err.Error()
		c.logger.Error("run aborted", "run_id", summary.RunID, "error", err)
	case ctx.Err() != nil:
		summary.Aborted = true
		summary.AbortReason = "interrupted: " + ctx.Err().Error()
		c.logger.Warn("run interrupted", "run_id", summary.RunID)
	default:
		summary.Aborted = true
		summary.AbortReason = err.Error()
		c.logger.Error("run failed", "run_id", summary.RunID, "error", err)
	}

	c.saveHistory(ctx, summary)
	c.logger.Info("run finished",
		"run_id", summary.RunID,
		"duration", summary.Duration(),
		"downloaded", summary.Totals().Downloaded,
		"index_size", summary.IndexSize,
	)
	return summary, err
}

func (c *Crawler) saveHistory(ctx context.Context, summary *model.RunSummary) {
	if c.history == nil {
		return
	}
	// The summary of an interrupted run is still worth keeping.
	id, err := c.history.SaveRun(context.WithoutCancel(ctx), summary)
	if err != nil {
		c.logger.Warn("failed to save run history", "run_id", summary.RunID, "error", err)
		return
	}
	c.logger.Debug("run history saved", "run_id", summary.RunID, "id", id)
}

// uniqueKeywords normalises keywords and drops empty and repeated ones,
// keeping first-seen order.
func uniqueKeywords(keywords []string) []string {
	var out []string
	for _, kw := range keywords {
		kw = model.NormalizeKeyword(kw)
		if kw == "" {
			continue
		}
		if slices.ContainsFunc(out, func(k string) bool { return model.SameKeyword(k, kw) }) {
			continue
		}
		out = append(out, kw)
	}
	return out
}
