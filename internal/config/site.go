package config

import (
	"maps"
	"strings"
	"time"
)

// SiteConfig holds website-specific crawl settings.
// It is used for the defaults of every website and for per-site overrides.
type SiteConfig struct {
	// Depth is the number of link hops to follow from the start page.
	// If zero, the global SiteDepth is used.
	Depth int `yaml:"depth,omitempty"`

	// MaxImages caps the images collected from the site.
	MaxImages int `yaml:"maxImages,omitempty"`

	// MaxPages caps the pages visited on the site.
	MaxPages int `yaml:"maxPages,omitempty"`

	// Delay overrides the request delay for this site.
	Delay time.Duration `yaml:"delay,omitempty"`

	// RespectRobots overrides robots.txt handling. Nil keeps the global setting.
	RespectRobots *bool `yaml:"respectRobots,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are URL path globs the spider never visits.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, limit the spider to matching URL paths.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// SourcesConfig holds the credentials and endpoints of the API sources.
type SourcesConfig struct {
	// Enabled restricts runs to the named sources.
	Enabled []string `yaml:"enabled,omitempty"`

	PexelsAPIKey      string `yaml:"pexelsApiKey,omitempty"`
	UnsplashAccessKey string `yaml:"unsplashAccessKey,omitempty"`

	// Manifest is the path to a YAML manifest of curated image URLs.
	Manifest string `yaml:"manifest,omitempty"`
}

// QualityConfig holds the quality filter settings.
type QualityConfig struct {
	MinWidth       int      `yaml:"minWidth,omitempty"`
	MinHeight      int      `yaml:"minHeight,omitempty"`
	AllowedFormats []string `yaml:"allowedFormats,omitempty"`
	MaxFileSize    int64    `yaml:"maxFileSize,omitempty"`
	MaxPixels      int64    `yaml:"maxPixels,omitempty"`
}

// DedupConfig holds the near-duplicate detection settings.
type DedupConfig struct {
	// Threshold is a pointer so that an explicit 0 (exact matches only) is
	// distinguishable from an absent value.
	Threshold *int   `yaml:"threshold,omitempty"`
	Algorithm string `yaml:"algorithm,omitempty"`
}

// FetchConfig holds the network settings shared by every source.
type FetchConfig struct {
	MaxImagesPerSource int           `yaml:"maxImagesPerSource,omitempty"`
	Concurrency        int           `yaml:"concurrency,omitempty"`
	RequestDelay       time.Duration `yaml:"requestDelay,omitempty"`
	MaxAttempts        int           `yaml:"maxAttempts,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	UserAgent          string        `yaml:"userAgent,omitempty"`
	Proxy              string        `yaml:"proxy,omitempty"`
}

// File represents the structure of the .boxhunt.yaml configuration file.
type File struct {
	DataDir    string        `yaml:"dataDir,omitempty"`
	HistoryDir string        `yaml:"historyDir,omitempty"`
	Keywords   []string      `yaml:"keywords,omitempty"`
	Sources    SourcesConfig `yaml:"sources,omitempty"`
	Quality    QualityConfig `yaml:"quality,omitempty"`
	Dedup      DedupConfig   `yaml:"dedup,omitempty"`
	Fetch      FetchConfig   `yaml:"fetch,omitempty"`

	// Defaults applies to every website unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`

	// Sites maps a host name (e.g. "example.com") to its overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`
}

// GetSiteConfig returns the configuration for a website host.
// It merges the site-specific configuration with the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if result.Headers != nil {
		result.Headers = maps.Clone(result.Headers)
	}

	siteConfig, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		siteConfig, ok = cf.Sites[strings.TrimPrefix(strings.ToLower(host), "www.")]
	}
	if !ok {
		return result
	}

	if siteConfig.Depth != 0 {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxImages != 0 {
		result.MaxImages = siteConfig.MaxImages
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if siteConfig.Delay != 0 {
		result.Delay = siteConfig.Delay
	}
	if siteConfig.RespectRobots != nil {
		result.RespectRobots = siteConfig.RespectRobots
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}

// ApplyFile overrides the configuration with every value set in the file.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.SiteConfigs = f

	if f.DataDir != "" {
		c.DataDir = f.DataDir
	}
	if f.HistoryDir != "" {
		c.HistoryDir = f.HistoryDir
	}
	if len(f.Keywords) > 0 {
		c.Keywords = f.Keywords
	}

	if len(f.Sources.Enabled) > 0 {
		c.Sources = f.Sources.Enabled
	}
	if f.Sources.PexelsAPIKey != "" {
		c.PexelsAPIKey = f.Sources.PexelsAPIKey
	}
	if f.Sources.UnsplashAccessKey != "" {
		c.UnsplashAccessKey = f.Sources.UnsplashAccessKey
	}
	if f.Sources.Manifest != "" {
		c.ManifestPath = f.Sources.Manifest
	}

	if f.Quality.MinWidth != 0 {
		c.MinWidth = f.Quality.MinWidth
	}
	if f.Quality.MinHeight != 0 {
		c.MinHeight = f.Quality.MinHeight
	}
	if len(f.Quality.AllowedFormats) > 0 {
		c.AllowedFormats = f.Quality.AllowedFormats
	}
	if f.Quality.MaxFileSize != 0 {
		c.MaxFileSize = f.Quality.MaxFileSize
	}
	if f.Quality.MaxPixels != 0 {
		c.MaxPixels = f.Quality.MaxPixels
	}

	if f.Dedup.Threshold != nil {
		c.Threshold = *f.Dedup.Threshold
	}
	if f.Dedup.Algorithm != "" {
		c.HashAlgorithm = f.Dedup.Algorithm
	}

	if f.Fetch.MaxImagesPerSource != 0 {
		c.MaxImagesPerSource = f.Fetch.MaxImagesPerSource
	}
	if f.Fetch.Concurrency != 0 {
		c.Concurrency = f.Fetch.Concurrency
	}
	if f.Fetch.RequestDelay != 0 {
		c.RequestDelay = f.Fetch.RequestDelay
	}
	if f.Fetch.MaxAttempts != 0 {
		c.MaxAttempts = f.Fetch.MaxAttempts
	}
	if f.Fetch.Timeout != 0 {
		c.Timeout = f.Fetch.Timeout
	}
	if f.Fetch.UserAgent != "" {
		c.UserAgent = f.Fetch.UserAgent
	}
	if f.Fetch.Proxy != "" {
		c.ProxyAddress = f.Fetch.Proxy
	}

	if f.Defaults.Depth != 0 {
		c.SiteDepth = f.Defaults.Depth
	}
	if f.Defaults.MaxImages != 0 {
		c.SiteMaxImages = f.Defaults.MaxImages
	}
	if f.Defaults.MaxPages != 0 {
		c.SiteMaxPages = f.Defaults.MaxPages
	}
	if f.Defaults.RespectRobots != nil {
		c.RespectRobots = *f.Defaults.RespectRobots
	}
}

// ToFile renders the effective configuration in file form.
// Credentials are replaced by a marker so the result is safe to print.
func (c *Config) ToFile() *File {
	threshold := c.Threshold
	respect := c.RespectRobots
	f := &File{
		DataDir:    c.DataDir,
		HistoryDir: c.HistoryDir,
		Keywords:   c.Keywords,
		Sources: SourcesConfig{
			Enabled:           c.Sources,
			PexelsAPIKey:      maskSecret(c.PexelsAPIKey),
			UnsplashAccessKey: maskSecret(c.UnsplashAccessKey),
			Manifest:          c.ManifestPath,
		},
		Quality: QualityConfig{
			MinWidth:       c.MinWidth,
			MinHeight:      c.MinHeight,
			AllowedFormats: c.AllowedFormats,
			MaxFileSize:    c.MaxFileSize,
			MaxPixels:      c.MaxPixels,
		},
		Dedup: DedupConfig{
			Threshold: &threshold,
			Algorithm: c.HashAlgorithm,
		},
		Fetch: FetchConfig{
			MaxImagesPerSource: c.MaxImagesPerSource,
			Concurrency:        c.Concurrency,
			RequestDelay:       c.RequestDelay,
			MaxAttempts:        c.MaxAttempts,
			Timeout:            c.Timeout,
			UserAgent:          c.UserAgent,
			Proxy:              c.ProxyAddress,
		},
		Defaults: SiteConfig{
			Depth:         c.SiteDepth,
			MaxImages:     c.SiteMaxImages,
			MaxPages:      c.SiteMaxPages,
			RespectRobots: &respect,
		},
	}
	if c.SiteConfigs != nil {
		f.Sites = c.SiteConfigs.Sites
	}
	return f
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "[SET]"
}
