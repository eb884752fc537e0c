package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Spider discovers images on one website by crawling its pages breadth first.
// It stays on the host of the start URL and respects depth, page and image limits.
type Spider struct {
	// client is the shared HTTP client.
	client *http.Client

	// maxDepth limits how deep to crawl from the starting URL.
	// 0 means only the starting page, 1 means one level of links, etc.
	maxDepth int

	// maxPages limits the total number of pages to fetch.
	maxPages int

	// maxImages stops the crawl once this many unique images were found.
	maxImages int

	// delay is the time to wait between page requests.
	delay time.Duration

	// userAgent is the User-Agent header to use.
	userAgent string

	// maxBodySize limits the size of page bodies to read.
	maxBodySize int64

	// respectRobots enables robots.txt checks for every page.
	respectRobots bool

	// ignorePatterns are URL path patterns to skip during crawling.
	// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
	ignorePatterns []string

	// followPatterns are URL path patterns to follow during crawling.
	// If set, only URLs matching these patterns are crawled.
	followPatterns []string

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxPages sets the maximum number of pages to fetch.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithMaxImages sets how many unique images end the crawl.
func WithMaxImages(maxImages int) SpiderOption {
	return func(s *Spider) {
		s.maxImages = maxImages
	}
}

// WithDelay sets the delay between requests.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithSpiderUserAgent sets a custom User-Agent header.
func WithSpiderUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		s.userAgent = ua
	}
}

// WithSpiderMaxBodySize sets the maximum page body size.
func WithSpiderMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		s.maxBodySize = size
	}
}

// WithRespectRobots enables or disables robots.txt checks.
func WithRespectRobots(respect bool) SpiderOption {
	return func(s *Spider) {
		s.respectRobots = respect
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithSpiderLogger sets the logger.
func WithSpiderLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a new Spider with the given HTTP client.
func NewSpider(client *http.Client, opts ...SpiderOption) *Spider {
	s := &Spider{
		client:        client,
		maxDepth:      2,
		maxPages:      30,
		maxImages:     50,
		delay:         1 * time.Second,
		userAgent:     "BoxHunt/1.0 (Image Scraper for Research Purposes)",
		maxBodySize:   10 * 1024 * 1024, // 10MB
		respectRobots: true,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Result is the outcome of one site crawl.
type Result struct {
	// Images are unique by URL, in discovery order, at most the image limit.
	Images []Image

	// PagesVisited counts pages fetched successfully.
	PagesVisited int

	// Blocked is true when robots.txt disallowed the start URL.
	Blocked bool
}

// queueItem represents an item in the crawl queue.
type queueItem struct {
	url   string
	depth int
}

// Crawl crawls the site of startURL and returns the images it found.
// Pages that fail to load are skipped. Crawl returns the images found so far
// together with the context error when ctx is cancelled.
func (s *Spider) Crawl(ctx context.Context, startURL string) (*Result, error) {
	start, err := ValidateStartURL(startURL)
	if err != nil {
		return nil, err
	}

	var robots *robotsCache
	if s.respectRobots {
		robots = newRobotsCache(s.client, s.userAgent)
		if !robots.Allowed(ctx, start.String()) {
			s.logger.Warn("robots.txt disallows crawling", "url", start.String())
			return &Result{Blocked: true}, nil
		}
	}

	result := &Result{}
	seenImages := make(map[string]bool)
	visited := make(map[string]bool)
	queue := []queueItem{{url: start.String(), depth: 0}}

	for len(queue) > 0 && result.PagesVisited < s.maxPages && !s.full(result) {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		item := queue[0]
		queue = queue[1:]

		key := normalizeURL(item.url)
		if visited[key] {
			continue
		}
		visited[key] = true

		if robots != nil && item.depth > 0 && !robots.Allowed(ctx, item.url) {
			s.logger.Debug("robots.txt disallows page", "url", item.url)
			continue
		}

		parsed, err := s.fetchPage(ctx, item.url)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Debug("skipping page", "url", item.url, "error", err)
			continue
		}
		result.PagesVisited++

		found := 0
		for _, img := range parsed.Images {
			if seenImages[img.URL] || s.full(result) {
				continue
			}
			seenImages[img.URL] = true
			result.Images = append(result.Images, img)
			found++
		}
		s.logger.Debug("page crawled", "url", item.url, "new_images", found, "images", len(parsed.Images))

		if item.depth < s.maxDepth && !s.full(result) {
			for _, link := range parsed.InternalLinks {
				if !visited[normalizeURL(link)] && s.shouldCrawl(link) {
					queue = append(queue, queueItem{url: link, depth: item.depth + 1})
				}
			}
		}

		// Politeness delay
		if s.delay > 0 && len(queue) > 0 && !s.full(result) {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}

	return result, nil
}

func (s *Spider) full(r *Result) bool {
	return s.maxImages > 0 && len(r.Images) >= s.maxImages
}

// fetchPage fetches a single page and parses it when it is HTML.
func (s *Spider) fetchPage(ctx context.Context, pageURL string) (*ParseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || (mediaType != "text/html" && mediaType != "application/xhtml+xml") {
			return nil, fmt.Errorf("not an HTML page: %s", ct)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, err
	}

	// Redirects may have moved the page.
	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL.String()
	}
	parser, err := NewParser(base)
	if err != nil {
		return nil, err
	}
	return parser.Parse(bytes.NewReader(body))
}

// ValidateStartURL parses a start URL. Only absolute http and https URLs are accepted.
func ValidateStartURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q: want an absolute http or https URL", rawURL)
	}
	u.Fragment = ""
	return u, nil
}

// SiteName derives a short site name from a URL: the host without "www.",
// port and top-level domain. "https://www.deprintedbox.com/x" gives "deprintedbox".
func SiteName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "website"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if name, _, ok := strings.Cut(host, "."); ok && name != "" {
		return name
	}
	return host
}

// normalizeURL normalizes a URL for deduplication.
// The fragment is dropped, scheme and host are lowercased and an empty path is "/".
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// shouldCrawl checks if a URL should be crawled based on ignore/follow patterns.
//
// Logic:
//  1. If URL matches any ignorePattern, skip it (return false)
//  2. If followPatterns is set and URL matches none, skip it (return false)
//  3. Otherwise, crawl it (return true)
func (s *Spider) shouldCrawl(targetURL string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}

	if len(s.followPatterns) > 0 {
		for _, pattern := range s.followPatterns {
			if matchPattern(pattern, path) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users"
//   - "*.pdf" matches "/docs/file.pdf"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	matched, err := filepath.Match(pattern, path)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Patterns without a slash also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
	}

	return false
}
