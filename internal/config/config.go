package config

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// The quality, pacing and storage defaults follow the values the tool has
// always shipped with, so existing data directories keep their meaning.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "boxhunt"

	// DefaultDataDir is the root of every storage domain.
	DefaultDataDir = "data"

	// DefaultDomain is the storage domain used by API sources.
	DefaultDomain = "default"

	// DefaultMinWidth and DefaultMinHeight are the smallest accepted dimensions.
	DefaultMinWidth  = 256
	DefaultMinHeight = 256

	// DefaultMaxFileSize is the largest accepted image, in bytes.
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxPixels is the largest accepted width*height, checked before
	// any pixel is decoded.
	DefaultMaxPixels = 50_000_000 // 50MP

	// DefaultRequestDelay is the minimum spacing between two requests to the same source.
	DefaultRequestDelay = 1 * time.Second

	// DefaultConcurrency is the number of in-flight fetches allowed per source.
	DefaultConcurrency = 3

	// DefaultThreshold is the largest Hamming distance at which two
	// fingerprints are considered near-duplicates.
	DefaultThreshold = 5

	// DefaultHashAlgorithm is the perceptual hash used for fingerprints.
	DefaultHashAlgorithm = "phash"

	// DefaultMaxImagesPerSource is the search limit per (keyword, source) pair.
	DefaultMaxImagesPerSource = 20

	// DefaultMaxAttempts is the total number of fetch attempts per candidate.
	DefaultMaxAttempts = 3

	// DefaultTimeout bounds every single HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies BoxHunt in HTTP requests.
	DefaultUserAgent = "BoxHunt/1.0 (Image Scraper for Research Purposes)"

	// DefaultSiteDepth is how many link hops the website spider follows.
	DefaultSiteDepth = 2

	// DefaultSiteMaxImages caps the images collected from one website.
	DefaultSiteMaxImages = 50

	// DefaultSiteMaxPages caps the pages the website spider visits.
	DefaultSiteMaxPages = 30
)

// Environment variables that carry API credentials.
const (
	EnvPexelsAPIKey      = "PEXELS_API_KEY"
	EnvUnsplashAccessKey = "UNSPLASH_ACCESS_KEY"
)

// Source identifiers known to the configuration.
const (
	SourcePexels   = "pexels"
	SourceUnsplash = "unsplash"
	SourceManifest = "manifest"
)

// DefaultKeywords are searched when a crawl names no keywords.
var DefaultKeywords = []string{
	"cardboard box",
	"corrugated box",
	"carton",
	"shipping box",
	"moving box",
	"packaging box",
	"brown cardboard box",
	"empty cardboard box",
	"纸箱",
	"瓦楞纸箱",
	"搬家箱",
	"快递箱",
	"包装箱",
	"纸盒",
	"牛皮纸箱",
}

// DefaultAllowedFormats returns the default image format allow-list.
func DefaultAllowedFormats() []string {
	return []string{"jpg", "jpeg", "png", "webp"}
}

// Config holds all configuration options for BoxHunt.
// It is populated from defaults, then the configuration file, then the
// environment and finally CLI flags, and passed down explicitly.
type Config struct {
	// DataDir is the root directory holding one sub-directory per storage domain.
	DataDir string

	// Keywords are searched by crawl when no positional keywords are given.
	Keywords []string

	// Sources restricts a run to the named sources. Empty means every source
	// that has credentials.
	Sources []string

	// PexelsAPIKey and UnsplashAccessKey are the API credentials.
	// A source without a credential is left out of the source set.
	PexelsAPIKey      string
	UnsplashAccessKey string

	// ManifestPath points at an optional YAML manifest of curated image URLs.
	ManifestPath string

	// PexelsBaseURL and UnsplashBaseURL override the API endpoints.
	// They exist for recorded fixtures and tests.
	PexelsBaseURL   string
	UnsplashBaseURL string

	// MinWidth and MinHeight are the smallest accepted image dimensions.
	MinWidth  int
	MinHeight int

	// AllowedFormats is the lower-case image format allow-list.
	AllowedFormats []string

	// MaxFileSize is the largest accepted image, in bytes.
	MaxFileSize int64

	// MaxPixels is the largest accepted width*height of a decoded image.
	MaxPixels int64

	// Threshold is the Hamming distance at or below which two images are
	// near-duplicates.
	Threshold int

	// HashAlgorithm is one of phash, dhash or ahash.
	HashAlgorithm string

	// MaxImagesPerSource is the search limit per (keyword, source) pair.
	MaxImagesPerSource int

	// Concurrency is the number of in-flight fetches per source.
	Concurrency int

	// RequestDelay is the minimum spacing between requests to one source.
	RequestDelay time.Duration

	// MaxAttempts is the total number of fetch attempts per candidate.
	MaxAttempts int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// SiteDepth, SiteMaxImages and SiteMaxPages bound the website spider.
	SiteDepth     int
	SiteMaxImages int
	SiteMaxPages  int

	// RespectRobots makes the website spider honor robots.txt.
	RespectRobots bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path of the configuration file, if any.
	ConfigFilePath string

	// SiteConfigs holds per-website overrides loaded from the configuration file.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the run summary format.
	// They are mutually exclusive.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the run summary to a file instead of stdout.
	ReportFile string

	// HistoryDir holds the run history database.
	HistoryDir string

	// SaveHistory records every run in the history database.
	SaveHistory bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		DataDir:            DefaultDataDir,
		Keywords:           slices.Clone(DefaultKeywords),
		MinWidth:           DefaultMinWidth,
		MinHeight:          DefaultMinHeight,
		AllowedFormats:     DefaultAllowedFormats(),
		MaxFileSize:        DefaultMaxFileSize,
		MaxPixels:          DefaultMaxPixels,
		Threshold:          DefaultThreshold,
		HashAlgorithm:      DefaultHashAlgorithm,
		MaxImagesPerSource: DefaultMaxImagesPerSource,
		Concurrency:        DefaultConcurrency,
		RequestDelay:       DefaultRequestDelay,
		MaxAttempts:        DefaultMaxAttempts,
		Timeout:            DefaultTimeout,
		UserAgent:          DefaultUserAgent,
		SiteDepth:          DefaultSiteDepth,
		SiteMaxImages:      DefaultSiteMaxImages,
		SiteMaxPages:       DefaultSiteMaxPages,
		RespectRobots:      true,
		HistoryDir:         XDGDataDir(),
		SaveHistory:        true,
	}
}

// XDGDataDir returns the XDG data directory for BoxHunt.
// On Linux: ~/.local/share/boxhunt
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for BoxHunt.
// On Linux: ~/.config/boxhunt
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ApplyEnv fills empty credentials from the environment.
// Explicit values from the configuration file or flags win.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if c.PexelsAPIKey == "" {
		c.PexelsAPIKey = getenv(EnvPexelsAPIKey)
	}
	if c.UnsplashAccessKey == "" {
		c.UnsplashAccessKey = getenv(EnvUnsplashAccessKey)
	}
}

// SourceEnabled reports whether the operator allowed the named source.
func (c *Config) SourceEnabled(id string) bool {
	if len(c.Sources) == 0 {
		return true
	}
	return slices.ContainsFunc(c.Sources, func(s string) bool {
		return strings.EqualFold(s, id)
	})
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}

	if c.MinWidth < 0 || c.MinHeight < 0 {
		return ErrInvalidDimensions
	}

	if len(c.AllowedFormats) == 0 {
		return ErrNoAllowedFormats
	}

	if c.MaxFileSize <= 0 {
		return ErrInvalidMaxFileSize
	}

	if c.MaxPixels <= 0 {
		return ErrInvalidMaxPixels
	}

	if c.Threshold < 0 || c.Threshold > 64 {
		return ErrInvalidThreshold
	}

	switch c.HashAlgorithm {
	case "phash", "dhash", "ahash":
	default:
		return ErrInvalidHashAlgorithm
	}

	if c.MaxImagesPerSource <= 0 {
		return ErrInvalidLimit
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.RequestDelay < 0 {
		return ErrInvalidRequestDelay
	}

	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.SiteDepth < 0 || c.SiteMaxImages <= 0 || c.SiteMaxPages <= 0 {
		return ErrInvalidSiteLimits
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}
