package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/boxhunt/internal/config"
	"github.com/nao1215/boxhunt/internal/crawl"
	"github.com/nao1215/boxhunt/internal/database"
	"github.com/nao1215/boxhunt/internal/fetch"
	"github.com/nao1215/boxhunt/internal/log"
	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/phash"
	"github.com/nao1215/boxhunt/internal/quality"
	"github.com/nao1215/boxhunt/internal/report"
	"github.com/nao1215/boxhunt/internal/source"
	"github.com/nao1215/boxhunt/internal/storage"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, _ = cmd.Root().PersistentFlags().GetString("config") //nolint:errcheck
	}
	return path
}

// loadConfig builds the configuration from defaults, the configuration
// file and the environment. Command flags are applied by the caller.
//
// A file named with -c must exist; the implicit search locations are optional.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	explicit := getConfigFlag(cmd)
	path := config.FindConfigFile(explicit)
	switch {
	case path != "":
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.ApplyFile(f)
		cfg.ConfigFilePath = path
	case explicit != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicit)
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// newLogger creates the secure logger and installs it as the default.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)
	return logger
}

// signalContext is cancelled on SIGINT or SIGTERM so a run can stop cleanly.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// openStore opens the data directory.
func openStore(cfg *config.Config, logger *slog.Logger) (*storage.Manager, error) {
	store, err := storage.NewManager(cfg.DataDir, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory %s: %w", cfg.DataDir, err)
	}
	return store, nil
}

// openHistory opens the run history database, or returns nil when history
// is disabled or unavailable. History is never required for a run.
func openHistory(cfg *config.Config, logger *slog.Logger) *database.DB {
	if !cfg.SaveHistory {
		return nil
	}
	db, err := database.Open(cfg.HistoryDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("run history disabled", "dir", cfg.HistoryDir, "error", err)
		return nil
	}
	return db
}

// session holds what every collecting command needs.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *storage.Manager
	client  *http.Client
	fetcher *fetch.Fetcher
	history *database.DB
}

// newSession wires storage, the shared HTTP client and the fetcher.
// headers are added to every request (website overrides).
func newSession(cfg *config.Config, logger *slog.Logger, headers map[string]string) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	client, fetcher, err := newFetcher(cfg, logger, headers)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		client:  client,
		fetcher: fetcher,
		history: openHistory(cfg, logger),
	}, nil
}

// newFetcher creates the shared HTTP client and the paced fetcher on top of it.
func newFetcher(cfg *config.Config, logger *slog.Logger, headers map[string]string) (*http.Client, *fetch.Fetcher, error) {
	client, err := fetch.NewHTTPClient(fetch.ClientOptions{
		Timeout:      cfg.Timeout,
		ProxyAddress: cfg.ProxyAddress,
		UserAgent:    cfg.UserAgent,
		Headers:      headers,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	fetcher := fetch.New(client,
		fetch.WithLogger(logger),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxAttempts(cfg.MaxAttempts),
		fetch.WithMaxSize(cfg.MaxFileSize),
		fetch.WithConcurrency(cfg.Concurrency),
		fetch.WithDelay(cfg.RequestDelay),
	)
	return client, fetcher, nil
}

// Close releases the store and the history database.
func (r *session) Close() {
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.logger.Warn("failed to close history database", "error", err)
		}
	}
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close data directory", "error", err)
	}
}

// sources builds the API source set; adapters share the fetcher's pacing.
func (r *session) sources() (source.Set, []string) {
	return source.FromConfig(r.cfg, r.client, r.fetcher, r.logger)
}

// crawler creates the run context. limit overrides the per-source search limit.
func (r *session) crawler(sources source.Set, warnings []string, limit int) (*crawl.Crawler, error) {
	hasher, err := phash.NewHasher(r.cfg.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	opts := crawl.Options{
		Store:       r.store,
		Sources:     sources,
		Fetcher:     r.fetcher,
		Filter:      quality.NewFilter(r.cfg.MinWidth, r.cfg.MinHeight, r.cfg.AllowedFormats, r.cfg.MaxFileSize,
			quality.WithMaxPixels(r.cfg.MaxPixels)),
		Hasher:      hasher,
		Threshold:   r.cfg.Threshold,
		Limit:       limit,
		Concurrency: r.cfg.Concurrency,
		Logger:      r.logger,
		Warnings:    warnings,
	}
	if r.history != nil {
		opts.History = r.history
	}
	return crawl.New(opts)
}

// reportFormat returns the format selected by --json or --markdown.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// addReportFlags registers the output flags shared by reporting commands.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// applyReportFlags reads the flags registered by addReportFlags.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	return nil
}

// reportOutput opens the report destination: the --output file or stdout.
func reportOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // operator-chosen path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck
}

// writeSummary renders a run summary in the configured format.
func writeSummary(cmd *cobra.Command, cfg *config.Config, summary *model.RunSummary) error {
	out, closeOut, err := reportOutput(cmd, cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOut()

	w, err := report.NewWriter(reportFormat(cfg), out, cfg.Verbose)
	if err != nil {
		return err
	}
	_, err = w.WriteSummary(summary)
	return err
}
