package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher(opts ...Option) *Fetcher {
	base := []Option{
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithDelay(0),
	}
	return New(&http.Client{Timeout: 5 * time.Second}, append(base, opts...)...)
}

// TestFetchSuccess tests a plain download.
func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	uaCh := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uaCh <- r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("pngdata"))
	}))
	defer srv.Close()

	f := newTestFetcher(WithUserAgent("BoxHunt-Test"))
	res, err := f.Fetch(t.Context(), "src", srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Body) != "pngdata" || res.ContentType != "image/png" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Attempts != 1 {
		t.Errorf("got %d attempts, expected 1", res.Attempts)
	}
	if ua := <-uaCh; ua != "BoxHunt-Test" {
		t.Errorf("got user agent %q", ua)
	}
}

// TestFetchRetries tests the retry policy.
func TestFetchRetries(t *testing.T) {
	t.Parallel()

	t.Run("transient errors are retried", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		res, err := newTestFetcher().Fetch(t.Context(), "src", srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Attempts != 3 {
			t.Errorf("got %d attempts, expected 3", res.Attempts)
		}
	})

	t.Run("budget exhaustion is a network failure", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newTestFetcher(WithMaxAttempts(3)).Fetch(t.Context(), "src", srv.URL)
		if !errors.Is(err, ErrNetworkFailure) {
			t.Fatalf("expected ErrNetworkFailure, got %v", err)
		}
		if hits.Load() != 3 {
			t.Errorf("got %d requests, expected 3", hits.Load())
		}
	})

	t.Run("4xx is permanent", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestFetcher().Fetch(t.Context(), "src", srv.URL)
		if !errors.Is(err, ErrNetworkFailure) {
			t.Fatalf("expected ErrNetworkFailure, got %v", err)
		}
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
			t.Errorf("expected StatusError 404, got %v", err)
		}
		if hits.Load() != 1 {
			t.Errorf("got %d requests, expected 1", hits.Load())
		}
	})

	t.Run("429 widens pacing and is retried", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		f := newTestFetcher()
		res, err := f.Fetch(t.Context(), "slow", srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Attempts != 2 {
			t.Errorf("got %d attempts, expected 2", res.Attempts)
		}
		if f.Pacing("slow") <= 0 {
			t.Error("expected pacing to increase")
		}
		if f.Pacing("other") != 0 {
			t.Error("pacing leaked to another source")
		}
	})
}

// TestFetchOversize tests the size ceiling.
func TestFetchOversize(t *testing.T) {
	t.Parallel()

	t.Run("announced by content length", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		}))
		defer srv.Close()

		_, err := newTestFetcher(WithMaxSize(10)).Fetch(t.Context(), "src", srv.URL)
		if !errors.Is(err, ErrOversize) {
			t.Fatalf("expected ErrOversize, got %v", err)
		}
		if errors.Is(err, ErrNetworkFailure) {
			t.Error("oversize must not be a network failure")
		}
	})

	t.Run("discovered while reading", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			flusher, _ := w.(http.Flusher)
			for range 10 {
				_, _ = w.Write([]byte(strings.Repeat("x", 10)))
				if flusher != nil {
					flusher.Flush()
				}
			}
		}))
		defer srv.Close()

		_, err := newTestFetcher(WithMaxSize(50)).Fetch(t.Context(), "src", srv.URL)
		if !errors.Is(err, ErrOversize) {
			t.Fatalf("expected ErrOversize, got %v", err)
		}
	})
}

// TestFetchCancellation tests that cancellation is never a network failure.
func TestFetchCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestFetcher().Fetch(ctx, "src", srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrNetworkFailure) {
		t.Error("cancellation must not be a network failure")
	}
}

// TestFetchConcurrencyPerSource tests the per-source pool bound and that
// sources do not borrow capacity from each other.
func TestFetchConcurrencyPerSource(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		inFlight = map[string]int{}
		peak     = map[string]int{}
	)
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		src := r.URL.Query().Get("src")
		mu.Lock()
		inFlight[src]++
		peak[src] = max(peak[src], inFlight[src])
		mu.Unlock()

		if src == "a" {
			<-block
		}

		mu.Lock()
		inFlight[src]--
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(WithConcurrency(2))

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			_, _ = f.Fetch(t.Context(), "a", srv.URL+"?src=a")
		})
	}

	// Source b completes although source a has a full pool.
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(t.Context(), "b", srv.URL+"?src=b")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("source b was blocked by source a")
	}

	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak["a"] > 2 {
		t.Errorf("source a peaked at %d in-flight requests, expected <= 2", peak["a"])
	}
}

// TestSlowdown tests pacing growth and its cap.
func TestSlowdown(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(WithDelay(time.Second))
	if got := f.Pacing("s"); got != time.Second {
		t.Fatalf("got %v, expected 1s", got)
	}
	if got := f.Slowdown("s", 2); got != 2*time.Second {
		t.Errorf("got %v, expected 2s", got)
	}
	for range 10 {
		f.Slowdown("s", 3)
	}
	if got := f.Pacing("s"); got != time.Minute {
		t.Errorf("got %v, expected cap of 1m", got)
	}
}

// TestParseRetryAfter tests both Retry-After forms.
func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	testCases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"-1", 0},
		{"soon", 0},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{now.Add(-30 * time.Second).Format(http.TimeFormat), 0},
	}

	for _, tc := range testCases {
		if got := ParseRetryAfter(tc.value, now); got != tc.want {
			t.Errorf("ParseRetryAfter(%q) = %v, expected %v", tc.value, got, tc.want)
		}
	}
}

// TestNewHTTPClient tests client construction.
func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("rejects malformed proxy", func(t *testing.T) {
		t.Parallel()
		for _, addr := range []string{"127.0.0.1", ":9050", "host:0", "host:70000", "a:b:c"} {
			if _, err := NewHTTPClient(ClientOptions{ProxyAddress: addr}); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("%q: expected ErrInvalidProxyAddress, got %v", addr, err)
			}
		}
	})

	t.Run("accepts socks proxy", func(t *testing.T) {
		t.Parallel()
		c, err := NewHTTPClient(ClientOptions{ProxyAddress: "127.0.0.1:9050", Timeout: time.Second})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Timeout != time.Second {
			t.Errorf("got timeout %v", c.Timeout)
		}
	})

	t.Run("injects headers", func(t *testing.T) {
		t.Parallel()

		headers := make(chan http.Header, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			headers <- r.Header.Clone()
		}))
		defer srv.Close()

		c, err := NewHTTPClient(ClientOptions{
			UserAgent: "BoxHunt/1.0",
			Headers:   map[string]string{"Accept-Language": "en"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp, err := c.Get(srv.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()

		h := <-headers
		if h.Get("User-Agent") != "BoxHunt/1.0" || h.Get("Accept-Language") != "en" {
			t.Errorf("got UA %q, language %q", h.Get("User-Agent"), h.Get("Accept-Language"))
		}
	})
}
