// Package source turns a keyword into image candidates.
//
// Each external source is an Adapter: the Pexels and Unsplash search APIs,
// a YAML manifest of curated URLs, and a website crawled by the spider of
// package crawler. Adapters return at most the requested number of
// candidates in the source's own ranking order.
//
// Failures are reported as ErrSourceUnavailable (credentials, unreachable
// host, persistent server errors) or as a *RateLimitedError, which matches
// ErrRateLimited and carries the wait the source asked for.
package source
