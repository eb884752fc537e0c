package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// robotsLimit caps how much of a robots.txt is read.
const robotsLimit = 512 * 1024

// robotsCache fetches robots.txt once per scheme and host.
//
// A robots.txt that is missing, unreachable or unparsable allows crawling.
type robotsCache struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	hosts map[string]*robotstxt.Group
}

func newRobotsCache(client *http.Client, userAgent string) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		hosts:     make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether the user agent may fetch pageURL.
func (r *robotsCache) Allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}

	group := r.group(ctx, u)
	if group == nil {
		return true
	}

	target := u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return group.Test(target)
}

func (r *robotsCache) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	group, ok := r.hosts[key]
	r.mu.Unlock()
	if ok {
		return group
	}

	group = r.fetch(ctx, key+"/robots.txt")

	r.mu.Lock()
	r.hosts[key] = group
	r.mu.Unlock()
	return group
}

func (r *robotsCache) fetch(ctx context.Context, robotsURL string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsLimit))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data.FindGroup(r.userAgent)
}
