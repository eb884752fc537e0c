package crawl

import "errors"

var (
	// ErrNoSources is returned when a run has no usable source adapter.
	ErrNoSources = errors.New("no usable image source: configure an API key, a manifest or a website")

	// ErrNoKeywords is returned when a crawl is started without keywords.
	ErrNoKeywords = errors.New("no keywords given")

	// ErrMissingDependency is returned by New when a required component is nil.
	ErrMissingDependency = errors.New("crawl: missing dependency")
)
