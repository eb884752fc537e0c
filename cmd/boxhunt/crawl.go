package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/boxhunt/internal/config"
	"github.com/nao1215/boxhunt/internal/crawl"
	"github.com/nao1215/boxhunt/internal/crawler"
	"github.com/nao1215/boxhunt/internal/model"
	"github.com/nao1215/boxhunt/internal/source"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [keyword...]",
		Short: "Search every configured source and collect box images",
		Long: `Crawl searches each keyword on every configured source, filters the
candidates by size and format, drops near-duplicates and stores the rest.

Sources are searched concurrently; the keywords of one source are handled in
order. Every decision is written to metadata.csv as it is made, so an
interrupted crawl can be continued with "boxhunt resume".

Without keywords, the keywords of the configuration file are used.

Examples:
  # Crawl the configured keywords on every source with credentials
  boxhunt crawl

  # Crawl two keywords on Pexels only
  boxhunt crawl --source pexels "cardboard box" "shipping box"

  # Stricter duplicate detection and a JSON summary
  boxhunt crawl --threshold 3 --json -o summary.json`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	addRunFlags(cmd)
	addReportFlags(cmd)
	return cmd
}

// NewCrawlSiteCmd creates the crawl-site command.
func NewCrawlSiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl-site <url>",
		Short: "Collect box images from a website",
		Long: `Crawl-site follows the links of a website from a start URL and collects
the images it finds. Images of a website are stored in their own directory
under the data directory, named after the site.

Depth, page and image limits, headers and ignored paths can be set per
host in the "sites" section of the configuration file.

Examples:
  # Crawl a shop two links deep
  boxhunt crawl-site https://shop.example.com/boxes

  # Crawl deeper, ignoring robots.txt
  boxhunt crawl-site --depth 4 --ignore-robots https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlSiteCmd,
	}

	addRunFlags(cmd)
	addReportFlags(cmd)
	cmd.Flags().IntP("depth", "d", config.DefaultSiteDepth,
		"Maximum number of link hops from the start page")
	cmd.Flags().Int("max-images", config.DefaultSiteMaxImages,
		"Maximum number of images collected from the site")
	cmd.Flags().IntP("max-pages", "p", config.DefaultSiteMaxPages,
		"Maximum number of pages visited")
	cmd.Flags().Bool("ignore-robots", false,
		"Do not honor robots.txt")
	return cmd
}

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [keyword...]",
		Short: "Continue interrupted crawls",
		Long: `Resume continues every (keyword, source) pair whose checkpoint is not
completed. Candidates that already have an outcome in metadata.csv are
skipped, so no image is downloaded twice.

Failed downloads are final unless --retry-failed is given; it re-attempts
them, including those of pairs that already completed.

Examples:
  # Continue everything that was interrupted
  boxhunt resume

  # Continue one keyword and retry its failed downloads
  boxhunt resume --retry-failed "cardboard box"`,
		Args: cobra.ArbitraryArgs,
		RunE: runResumeCmd,
	}

	addRunFlags(cmd)
	addReportFlags(cmd)
	cmd.Flags().Bool("retry-failed", false,
		"Re-attempt downloads that previously failed")
	return cmd
}

// addRunFlags registers the flags shared by the collecting commands.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", config.DefaultDataDir,
		"Root directory of the stored images and metadata")
	cmd.Flags().StringSliceP("source", "s", nil,
		"Restrict the run to these sources (pexels, unsplash, manifest)")
	cmd.Flags().IntP("limit", "l", config.DefaultMaxImagesPerSource,
		"Maximum candidates per keyword and source")
	cmd.Flags().Int("threshold", config.DefaultThreshold,
		"Hamming distance at or below which images are duplicates")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Downloads in flight per source")
	cmd.Flags().Duration("delay", config.DefaultRequestDelay,
		"Minimum delay between two requests to the same source")
	cmd.Flags().Bool("no-history", false,
		"Do not record the run in the history database")
}

// applyRunFlags overrides the configuration with the run flags the
// operator actually set, so file values survive untouched defaults.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("data-dir") {
		if cfg.DataDir, err = flags.GetString("data-dir"); err != nil {
			return err
		}
	}
	if flags.Changed("source") {
		if cfg.Sources, err = flags.GetStringSlice("source"); err != nil {
			return err
		}
	}
	if flags.Changed("limit") {
		if cfg.MaxImagesPerSource, err = flags.GetInt("limit"); err != nil {
			return err
		}
	}
	if flags.Changed("threshold") {
		if cfg.Threshold, err = flags.GetInt("threshold"); err != nil {
			return err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return err
		}
	}
	if flags.Changed("delay") {
		if cfg.RequestDelay, err = flags.GetDuration("delay"); err != nil {
			return err
		}
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return err
	}
	if noHistory {
		cfg.SaveHistory = false
	}
	return applyReportFlags(cmd, cfg)
}

// prepareRun loads the configuration and applies the run flags.
func prepareRun(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := prepareRun(cmd)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Keywords = args
	}
	logger := newLogger(cmd, cfg)

	sess, err := newSession(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	sources, skipped := sess.sources()
	if len(sources) == 0 {
		if len(skipped) == 0 {
			return crawl.ErrNoSources
		}
		return fmt.Errorf("%w (%s)", crawl.ErrNoSources, strings.Join(skipped, "; "))
	}
	c, err := sess.crawler(sources, skipped, cfg.MaxImagesPerSource)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	summary, err := c.Crawl(ctx, cfg.Keywords)
	return finishRun(cmd, cfg, summary, err)
}

func runCrawlSiteCmd(cmd *cobra.Command, args []string) error {
	cfg, err := prepareRun(cmd)
	if err != nil {
		return err
	}
	startURL := args[0]
	u, err := crawler.ValidateStartURL(startURL)
	if err != nil {
		return err
	}

	site := siteSettings(cfg, u.Hostname())
	if err := applySiteFlags(cmd, cfg, &site); err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	sess, err := newSession(cfg, logger, site.Headers)
	if err != nil {
		return err
	}
	defer sess.Close()

	spider := crawler.NewSpider(sess.client,
		crawler.WithMaxDepth(site.Depth),
		crawler.WithMaxPages(site.MaxPages),
		crawler.WithMaxImages(site.MaxImages),
		crawler.WithDelay(site.Delay),
		crawler.WithSpiderUserAgent(cfg.UserAgent),
		crawler.WithSpiderMaxBodySize(cfg.MaxFileSize),
		crawler.WithRespectRobots(*site.RespectRobots),
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithSpiderLogger(logger),
	)
	website, err := source.NewWebsite(spider, startURL)
	if err != nil {
		return err
	}

	c, err := sess.crawler(source.Set{}, nil, site.MaxImages)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	summary, err := c.CrawlSite(ctx, website, startURL)
	return finishRun(cmd, cfg, summary, err)
}

// siteSettings resolves the spider settings of a host: global settings,
// then the file's defaults, then the host's own section.
func siteSettings(cfg *config.Config, host string) config.SiteConfig {
	var site config.SiteConfig
	if cfg.SiteConfigs != nil {
		site = cfg.SiteConfigs.GetSiteConfig(host)
	}
	if site.Depth == 0 {
		site.Depth = cfg.SiteDepth
	}
	if site.MaxImages == 0 {
		site.MaxImages = cfg.SiteMaxImages
	}
	if site.MaxPages == 0 {
		site.MaxPages = cfg.SiteMaxPages
	}
	if site.Delay == 0 {
		site.Delay = cfg.RequestDelay
	}
	if site.RespectRobots == nil {
		respect := cfg.RespectRobots
		site.RespectRobots = &respect
	}
	return site
}

// applySiteFlags lets explicit spider flags win over the configuration.
func applySiteFlags(cmd *cobra.Command, cfg *config.Config, site *config.SiteConfig) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("depth") {
		if site.Depth, err = flags.GetInt("depth"); err != nil {
			return err
		}
	}
	if flags.Changed("max-images") {
		if site.MaxImages, err = flags.GetInt("max-images"); err != nil {
			return err
		}
	}
	if flags.Changed("max-pages") {
		if site.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return err
		}
	}
	if flags.Changed("delay") {
		site.Delay = cfg.RequestDelay
	}
	ignore, err := flags.GetBool("ignore-robots")
	if err != nil {
		return err
	}
	if ignore {
		respect := false
		site.RespectRobots = &respect
	}
	if site.Depth < 0 || site.MaxImages <= 0 || site.MaxPages <= 0 {
		return config.ErrInvalidSiteLimits
	}
	return nil
}

func runResumeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := prepareRun(cmd)
	if err != nil {
		return err
	}
	retry, err := cmd.Flags().GetBool("retry-failed")
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	sess, err := newSession(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Unconfigured sources are not fatal here: their pairs can still
	// finish the candidates already checkpointed.
	sources, skipped := sess.sources()
	c, err := sess.crawler(sources, skipped, cfg.MaxImagesPerSource)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	summary, err := c.Resume(ctx, crawl.ResumeOptions{Keywords: args, RetryFailed: retry})
	return finishRun(cmd, cfg, summary, err)
}

// finishRun prints the summary of a run, even an aborted one, and turns
// an abort into the command's error.
func finishRun(cmd *cobra.Command, cfg *config.Config, summary *model.RunSummary, runErr error) error {
	if summary == nil {
		return runErr
	}
	if err := writeSummary(cmd, cfg, summary); err != nil {
		return errors.Join(runErr, fmt.Errorf("failed to write summary: %w", err))
	}
	if runErr != nil {
		return fmt.Errorf("run %s aborted: %w", summary.RunID, runErr)
	}
	return nil
}
