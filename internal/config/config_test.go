package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changing a default should be a deliberate act, so each one is pinned here.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default minimum dimensions are 256x256", func(t *testing.T) {
		t.Parallel()
		if cfg.MinWidth != 256 || cfg.MinHeight != 256 {
			t.Errorf("expected 256x256, got %dx%d", cfg.MinWidth, cfg.MinHeight)
		}
	})

	t.Run("default formats are jpg jpeg png webp", func(t *testing.T) {
		t.Parallel()
		want := []string{"jpg", "jpeg", "png", "webp"}
		if len(cfg.AllowedFormats) != len(want) {
			t.Fatalf("expected %v, got %v", want, cfg.AllowedFormats)
		}
		for i := range want {
			if cfg.AllowedFormats[i] != want[i] {
				t.Errorf("expected %v, got %v", want, cfg.AllowedFormats)
			}
		}
	})

	t.Run("default MaxFileSize is 10MB", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxFileSize != 10*1024*1024 {
			t.Errorf("expected 10MB, got %d", cfg.MaxFileSize)
		}
	})

	t.Run("default MaxPixels is 50MP", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxPixels != 50_000_000 {
			t.Errorf("expected 50MP, got %d", cfg.MaxPixels)
		}
	})

	t.Run("default RequestDelay is 1 second", func(t *testing.T) {
		t.Parallel()
		if cfg.RequestDelay != time.Second {
			t.Errorf("expected 1s, got %v", cfg.RequestDelay)
		}
	})

	t.Run("default Concurrency is 3", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 3 {
			t.Errorf("expected 3, got %d", cfg.Concurrency)
		}
	})

	t.Run("default Threshold is 5", func(t *testing.T) {
		t.Parallel()
		if cfg.Threshold != 5 {
			t.Errorf("expected 5, got %d", cfg.Threshold)
		}
	})

	t.Run("default MaxAttempts is 3", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxAttempts != 3 {
			t.Errorf("expected 3, got %d", cfg.MaxAttempts)
		}
	})

	t.Run("default keywords include english and chinese", func(t *testing.T) {
		t.Parallel()
		if len(cfg.Keywords) != 15 {
			t.Errorf("expected 15 keywords, got %d", len(cfg.Keywords))
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected default config to be valid, got %v", err)
		}
	})
}

// TestConfigValidate tests the Validate method with various configurations.
// Each test case breaks exactly one rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }, ErrNoDataDir},
		{"negative min width", func(c *Config) { c.MinWidth = -1 }, ErrInvalidDimensions},
		{"no formats", func(c *Config) { c.AllowedFormats = nil }, ErrNoAllowedFormats},
		{"zero max file size", func(c *Config) { c.MaxFileSize = 0 }, ErrInvalidMaxFileSize},
		{"zero max pixels", func(c *Config) { c.MaxPixels = 0 }, ErrInvalidMaxPixels},
		{"threshold above 64", func(c *Config) { c.Threshold = 65 }, ErrInvalidThreshold},
		{"negative threshold", func(c *Config) { c.Threshold = -1 }, ErrInvalidThreshold},
		{"unknown hash", func(c *Config) { c.HashAlgorithm = "md5" }, ErrInvalidHashAlgorithm},
		{"zero limit", func(c *Config) { c.MaxImagesPerSource = 0 }, ErrInvalidLimit},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"negative delay", func(c *Config) { c.RequestDelay = -time.Second }, ErrInvalidRequestDelay},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"zero site pages", func(c *Config) { c.SiteMaxPages = 0 }, ErrInvalidSiteLimits},
		{"both report formats", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tc.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	t.Run("zero threshold is valid", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.Threshold = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

// TestApplyEnv tests credential lookup from the environment.
func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvPexelsAPIKey:      "env-pexels",
		EnvUnsplashAccessKey: "env-unsplash",
	}
	getenv := func(k string) string { return env[k] }

	t.Run("fills empty credentials", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.ApplyEnv(getenv)
		if cfg.PexelsAPIKey != "env-pexels" || cfg.UnsplashAccessKey != "env-unsplash" {
			t.Errorf("unexpected credentials: %q %q", cfg.PexelsAPIKey, cfg.UnsplashAccessKey)
		}
	})

	t.Run("keeps explicit credentials", func(t *testing.T) {
		t.Parallel()
		cfg := NewConfig()
		cfg.PexelsAPIKey = "file-pexels"
		cfg.ApplyEnv(getenv)
		if cfg.PexelsAPIKey != "file-pexels" {
			t.Errorf("expected file credential to win, got %q", cfg.PexelsAPIKey)
		}
	})
}

// TestSourceEnabled tests the source allow-list.
func TestSourceEnabled(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	if !cfg.SourceEnabled("pexels") {
		t.Error("every source is enabled by default")
	}

	cfg.Sources = []string{"Unsplash"}
	if cfg.SourceEnabled("pexels") {
		t.Error("pexels should be disabled")
	}
	if !cfg.SourceEnabled("unsplash") {
		t.Error("unsplash should be enabled regardless of case")
	}
}

// TestFileGetSiteConfig tests merging of website defaults and overrides.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	respect := false
	cf := &File{
		Defaults: SiteConfig{
			Depth:   2,
			Delay:   time.Second,
			Headers: map[string]string{"Accept-Language": "en"},
		},
		Sites: map[string]SiteConfig{
			"example.com": {
				Depth:          4,
				RespectRobots:  &respect,
				Headers:        map[string]string{"Cookie": "a=b"},
				FollowPatterns: []string{"/boxes/*"},
			},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()
		got := cf.GetSiteConfig("other.com")
		if got.Depth != 2 || got.RespectRobots != nil {
			t.Errorf("unexpected config: %+v", got)
		}
	})

	t.Run("www prefix matches bare host", func(t *testing.T) {
		t.Parallel()
		got := cf.GetSiteConfig("www.example.com")
		if got.Depth != 4 {
			t.Errorf("expected depth 4, got %d", got.Depth)
		}
		if got.RespectRobots == nil || *got.RespectRobots {
			t.Error("expected robots override to be false")
		}
		if got.Headers["Accept-Language"] != "en" || got.Headers["Cookie"] != "a=b" {
			t.Errorf("expected merged headers, got %v", got.Headers)
		}
		if got.Delay != time.Second {
			t.Errorf("expected inherited delay, got %v", got.Delay)
		}
		if len(got.FollowPatterns) != 1 || got.FollowPatterns[0] != "/boxes/*" {
			t.Errorf("expected follow patterns, got %v", got.FollowPatterns)
		}
	})

	t.Run("merging does not leak into defaults", func(t *testing.T) {
		t.Parallel()
		_ = cf.GetSiteConfig("example.com")
		if _, ok := cf.Defaults.Headers["Cookie"]; ok {
			t.Error("defaults were modified")
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.boxhunt.yaml")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads and applies valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := `dataDir: /tmp/boxes
keywords:
  - shipping box
sources:
  enabled: [pexels]
  pexelsApiKey: file-key
quality:
  minWidth: 512
  allowedFormats: [png]
dedup:
  threshold: 0
  algorithm: dhash
fetch:
  concurrency: 5
  requestDelay: 250ms
  timeout: 10s
defaults:
  depth: 3
sites:
  example.com:
    maxImages: 7
`
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		file, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		cfg.ApplyFile(file)

		if cfg.DataDir != "/tmp/boxes" {
			t.Errorf("expected data dir override, got %q", cfg.DataDir)
		}
		if len(cfg.Keywords) != 1 || cfg.Keywords[0] != "shipping box" {
			t.Errorf("unexpected keywords %v", cfg.Keywords)
		}
		if cfg.PexelsAPIKey != "file-key" {
			t.Errorf("expected file key, got %q", cfg.PexelsAPIKey)
		}
		if cfg.MinWidth != 512 || cfg.MinHeight != 256 {
			t.Errorf("expected 512x256, got %dx%d", cfg.MinWidth, cfg.MinHeight)
		}
		if cfg.Threshold != 0 {
			t.Errorf("expected explicit zero threshold, got %d", cfg.Threshold)
		}
		if cfg.HashAlgorithm != "dhash" {
			t.Errorf("expected dhash, got %q", cfg.HashAlgorithm)
		}
		if cfg.RequestDelay != 250*time.Millisecond {
			t.Errorf("expected 250ms, got %v", cfg.RequestDelay)
		}
		if cfg.Timeout != 10*time.Second {
			t.Errorf("expected 10s, got %v", cfg.Timeout)
		}
		if cfg.SiteDepth != 3 {
			t.Errorf("expected site depth 3, got %d", cfg.SiteDepth)
		}
		if cfg.SiteConfigs.GetSiteConfig("example.com").MaxImages != 7 {
			t.Error("expected per-site override to be kept")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected validation error: %v", err)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte("defaults:\n  depth: 1\n"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()
		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

// TestToFileMasksSecrets tests that printing the effective config hides credentials.
func TestToFileMasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.PexelsAPIKey = "secret"
	f := cfg.ToFile()

	if f.Sources.PexelsAPIKey != "[SET]" {
		t.Errorf("expected masked key, got %q", f.Sources.PexelsAPIKey)
	}
	if f.Sources.UnsplashAccessKey != "" {
		t.Errorf("expected empty key, got %q", f.Sources.UnsplashAccessKey)
	}
	if f.Dedup.Threshold == nil || *f.Dedup.Threshold != DefaultThreshold {
		t.Error("expected threshold to be rendered")
	}
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if XDGDataDir() == "" {
		t.Error("expected non-empty XDG data dir")
	}
	if XDGConfigDir() == "" {
		t.Error("expected non-empty XDG config dir")
	}
}
