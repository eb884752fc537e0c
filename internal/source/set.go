package source

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/boxhunt/internal/config"
)

// FromConfig builds the API source set of a run. Sources the operator did
// not enable are left out, and so are sources without credentials; the
// latter are reported in skipped so the run can say why they are missing.
func FromConfig(cfg *config.Config, client *http.Client, pacer Pacer, logger *slog.Logger) (set Set, skipped []string) {
	set = make(Set)
	opts := []Option{
		WithHTTPClient(client),
		WithUserAgent(cfg.UserAgent),
		WithPacer(pacer),
		WithLogger(logger),
		WithMaxAttempts(cfg.MaxAttempts),
	}

	if cfg.SourceEnabled(PexelsID) {
		if cfg.PexelsAPIKey == "" {
			skipped = append(skipped, fmt.Sprintf("%s: no API key (set %s)", PexelsID, config.EnvPexelsAPIKey))
		} else {
			set.Add(NewPexels(cfg.PexelsAPIKey, append(opts, WithBaseURL(cfg.PexelsBaseURL))...))
		}
	}

	if cfg.SourceEnabled(UnsplashID) {
		if cfg.UnsplashAccessKey == "" {
			skipped = append(skipped, fmt.Sprintf("%s: no access key (set %s)", UnsplashID, config.EnvUnsplashAccessKey))
		} else {
			set.Add(NewUnsplash(cfg.UnsplashAccessKey, append(opts, WithBaseURL(cfg.UnsplashBaseURL))...))
		}
	}

	if cfg.ManifestPath != "" {
		m, err := LoadManifest(cfg.ManifestPath)
		switch {
		case err != nil:
			skipped = append(skipped, fmt.Sprintf("%s: %v", ManifestID, err))
		case cfg.SourceEnabled(m.ID()):
			set.Add(m)
		}
	}

	for _, reason := range skipped {
		logger.Warn("source skipped", "reason", reason)
	}
	return set, skipped
}
