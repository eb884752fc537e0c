package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Default fetcher settings.
const (
	DefaultMaxAttempts    = 3
	DefaultConcurrency    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second

	// maxPacing caps how far Slowdown may widen a source's spacing.
	maxPacing = time.Minute

	// minSlowdownBase is the spacing Slowdown starts from when a source had none.
	minSlowdownBase = 250 * time.Millisecond
)

// Result is fetched image content.
type Result struct {
	URL           string
	Body          []byte
	ContentType   string
	ContentLength int64
	Attempts      int
}

// Fetcher downloads candidate content.
//
// Each source gets its own lane: a weighted semaphore bounding in-flight
// requests and a rate limiter enforcing minimum spacing. Lanes never lend
// capacity to each other.
type Fetcher struct {
	client         *http.Client
	logger         *slog.Logger
	userAgent      string
	maxAttempts    int
	maxSize        int64
	concurrency    int
	delay          time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu     sync.Mutex
	pacing time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithUserAgent sets the User-Agent header of every fetch.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxAttempts sets the total number of attempts per fetch.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithMaxSize sets the content size ceiling in bytes. Zero disables it.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) {
		f.maxSize = n
	}
}

// WithConcurrency sets the number of in-flight fetches per source.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithDelay sets the minimum spacing between two requests to one source.
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.delay = d
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(f *Fetcher) {
		f.initialBackoff = initial
		f.maxBackoff = maxInterval
	}
}

// New creates a Fetcher using client for every request.
func New(client *http.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:         client,
		logger:         slog.Default(),
		maxAttempts:    DefaultMaxAttempts,
		concurrency:    DefaultConcurrency,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		lanes:          make(map[string]*lane),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	return f
}

// Concurrency returns the per-source in-flight limit.
func (f *Fetcher) Concurrency() int {
	return f.concurrency
}

// MaxAttempts returns the per-fetch attempt budget.
func (f *Fetcher) MaxAttempts() int {
	return f.maxAttempts
}

func (f *Fetcher) lane(sourceID string) *lane {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.lanes[sourceID]
	if !ok {
		l = &lane{
			sem:     semaphore.NewWeighted(int64(f.concurrency)),
			limiter: rate.NewLimiter(limitFor(f.delay), 1),
			pacing:  f.delay,
		}
		f.lanes[sourceID] = l
	}
	return l
}

func limitFor(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Pacing returns the current minimum spacing of a source.
func (f *Fetcher) Pacing(sourceID string) time.Duration {
	l := f.lane(sourceID)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pacing
}

// Slowdown widens the spacing of a source by factor, up to one minute.
// Sources call it when they are told to back off.
func (f *Fetcher) Slowdown(sourceID string, factor float64) time.Duration {
	if factor <= 1 {
		factor = 2
	}
	l := f.lane(sourceID)
	l.mu.Lock()
	defer l.mu.Unlock()

	base := max(l.pacing, minSlowdownBase)
	l.pacing = min(time.Duration(float64(base)*factor), maxPacing)
	l.limiter.SetLimit(limitFor(l.pacing))
	return l.pacing
}

// Wait blocks until the source's pacing allows another request. Source
// adapters share the lane of the fetcher so searches and downloads to the
// same host are spaced together.
func (f *Fetcher) Wait(ctx context.Context, sourceID string) error {
	return f.lane(sourceID).limiter.Wait(ctx)
}

// Fetch downloads url on behalf of sourceID.
//
// Transient failures (transport errors, 5xx, 429) are retried with
// exponential backoff until the attempt budget is spent. A context error is
// returned as is; it never becomes ErrNetworkFailure.
func (f *Fetcher) Fetch(ctx context.Context, sourceID, url string) (*Result, error) {
	l := f.lane(sourceID)
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	var (
		result   *Result
		attempts int
	)
	operation := func() error {
		if err := l.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(contextOr(ctx, err))
		}
		attempts++
		res, err := f.get(ctx, sourceID, url)
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	err := backoff.RetryNotify(operation, f.newBackOff(ctx), func(err error, wait time.Duration) {
		f.logger.Debug("fetch retry",
			"source", sourceID,
			"url", url,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrOversize) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrNetworkFailure, url, attempts, err)
	}

	result.Attempts = attempts
	return result, nil
}

func (f *Fetcher) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.initialBackoff
	eb.MaxInterval = f.maxBackoff
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(f.maxAttempts-1)), ctx)
}

// get performs one attempt. Errors wrapped with backoff.Permanent stop the
// retry loop.
func (f *Fetcher) get(ctx context.Context, sourceID, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort
		statusErr := &StatusError{Code: resp.StatusCode, URL: url}

		if resp.StatusCode == http.StatusTooManyRequests {
			pacing := f.Slowdown(sourceID, 2)
			f.logger.Warn("source is rate limiting downloads",
				"source", sourceID,
				"pacing", pacing,
				"retry_after", ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			)
		}
		if statusErr.Temporary() {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, backoff.Permanent(fmt.Errorf("%w: content length %d, maximum %d", ErrOversize, resp.ContentLength, f.maxSize))
	}

	reader := io.Reader(resp.Body)
	if f.maxSize > 0 {
		reader = io.LimitReader(resp.Body, f.maxSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if f.maxSize > 0 && int64(len(body)) > f.maxSize {
		return nil, backoff.Permanent(fmt.Errorf("%w: body exceeds %d bytes", ErrOversize, f.maxSize))
	}

	return &Result{
		URL:           url,
		Body:          body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// ParseRetryAfter parses a Retry-After header given as seconds or as an
// HTTP date. It returns zero when the header is absent or malformed.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
