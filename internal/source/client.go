package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nao1215/boxhunt/internal/fetch"
)

// Default settings of the API adapters.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 15 * time.Second

	// maxResponseSize caps a search response body.
	maxResponseSize = 8 * 1024 * 1024
)

// apiClient is the HTTP plumbing shared by the JSON search APIs.
type apiClient struct {
	id             string
	client         *http.Client
	baseURL        string
	userAgent      string
	pacer          Pacer
	logger         *slog.Logger
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// Option configures an API adapter.
type Option func(*apiClient)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *apiClient) {
		a.client = c
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(a *apiClient) {
		if u != "" {
			a.baseURL = u
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(a *apiClient) {
		a.userAgent = ua
	}
}

// WithPacer makes every request wait for the source's pace.
func WithPacer(p Pacer) Option {
	return func(a *apiClient) {
		a.pacer = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *apiClient) {
		a.logger = logger
	}
}

// WithMaxAttempts sets the total number of attempts per search request.
func WithMaxAttempts(n int) Option {
	return func(a *apiClient) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithBackoff sets the retry backoff bounds.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(a *apiClient) {
		a.initialBackoff = initial
		a.maxBackoff = maxInterval
	}
}

func newAPIClient(id, baseURL string, opts []Option) *apiClient {
	a := &apiClient{
		id:             id,
		client:         http.DefaultClient,
		baseURL:        baseURL,
		logger:         slog.Default(),
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// getJSON performs a GET against the API and decodes the JSON answer into out.
//
// Transport errors and 5xx are retried. 429 becomes a *RateLimitedError and
// is left to the caller. Every other failure is ErrSourceUnavailable.
func (a *apiClient) getJSON(ctx context.Context, path string, query url.Values, header http.Header, out any) error {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	attempts := 0
	operation := func() error {
		if a.pacer != nil {
			if err := a.pacer.Wait(ctx, a.id); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempts++
		return a.do(ctx, endpoint, header, out)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = a.initialBackoff
	eb.MaxInterval = a.maxBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(a.maxAttempts-1)), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		a.logger.Debug("search retry", "source", a.id, "attempt", attempts, "wait", wait, "error", err)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: after %d attempt(s): %w", ErrSourceUnavailable, a.id, attempts, err)
}

func (a *apiClient) do(ctx context.Context, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return backoff.Permanent(unavailable(a.id, "build request: %v", err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return backoff.Permanent(&RateLimitedError{
			Source:     a.id,
			RetryAfter: fetch.ParseRetryAfter(resp.Header.Get("Retry-After"), a.now()),
		})
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(unavailable(a.id, "credentials rejected (HTTP %d)", resp.StatusCode))
	case resp.StatusCode >= http.StatusInternalServerError:
		return &fetch.StatusError{Code: resp.StatusCode, URL: endpoint}
	default:
		return backoff.Permanent(unavailable(a.id, "unexpected HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(unavailable(a.id, "decode response: %v", err))
	}
	return nil
}
