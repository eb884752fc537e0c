package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/boxhunt/internal/config"
	"github.com/nao1215/boxhunt/internal/report"
	"github.com/nao1215/boxhunt/internal/storage"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the data directory holds",
		Long: `Stats reads the metadata of every storage domain and counts images by
status, source, format and domain, together with the state of every
checkpointed (keyword, source) pair.

Examples:
  boxhunt stats
  boxhunt stats --json`,
		Args: cobra.NoArgs,
		RunE: runStatsCmd,
	}

	addDataDirFlag(cmd)
	addReportFlags(cmd)
	return cmd
}

// NewCleanupCmd creates the cleanup command.
func NewCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove image files that no metadata row refers to",
		Long: `Cleanup removes image files without a downloaded metadata row and the
temporary files an interrupted write can leave behind.

Do not run cleanup while a crawl is using the same data directory.

Examples:
  # List what would be removed
  boxhunt cleanup --dry-run

  # Remove it
  boxhunt cleanup`,
		Args: cobra.NoArgs,
		RunE: runCleanupCmd,
	}

	addDataDirFlag(cmd)
	cmd.Flags().BoolP("dry-run", "n", false,
		"List the files without removing them")
	return cmd
}

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the metadata of every storage domain",
		Long: `Export writes every metadata row of every storage domain as one CSV
table or JSON array, with the domain as an extra column.

Examples:
  boxhunt export > metadata.csv
  boxhunt export --format json -o metadata.json`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}

	addDataDirFlag(cmd)
	cmd.Flags().StringP("format", "f", string(storage.ExportCSV),
		"Export format (csv or json)")
	cmd.Flags().StringP("output", "o", "",
		"Write to the specified file instead of stdout")
	return cmd
}

func addDataDirFlag(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", config.DefaultDataDir,
		"Root directory of the stored images and metadata")
}

// loadDataConfig loads the configuration of commands that only read the
// data directory.
func loadDataConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		if cfg.DataDir, err = cmd.Flags().GetString("data-dir"); err != nil {
			return nil, err
		}
	}
	if cfg.DataDir == "" {
		return nil, config.ErrNoDataDir
	}
	return cfg, nil
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadDataConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyReportFlags(cmd, cfg); err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }() //nolint:errcheck

	stats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}

	out, closeOut, err := reportOutput(cmd, cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOut()

	w, err := report.NewWriter(reportFormat(cfg), out, cfg.Verbose)
	if err != nil {
		return err
	}
	_, err = w.WriteStats(stats)
	return err
}

func runCleanupCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadDataConfig(cmd)
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }() //nolint:errcheck

	result, err := store.CleanupOrphans(dryRun)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if result.Count() == 0 {
		fmt.Fprintln(out, "Nothing to clean up.")
		return nil
	}
	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	for _, f := range result.Orphans {
		fmt.Fprintf(out, "  orphan  %s\n", f)
	}
	for _, f := range result.TempFiles {
		fmt.Fprintf(out, "  temp    %s\n", f)
	}
	fmt.Fprintf(out, "%s %d file(s), %s.\n", verb, result.Count(), humanize.Bytes(uint64(max(result.Bytes, 0))))
	return nil
}

func runExportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadDataConfig(cmd)
	if err != nil {
		return err
	}
	name, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := storage.ParseExportFormat(name)
	if err != nil {
		return err
	}
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }() //nolint:errcheck

	out, closeOut, err := reportOutput(cmd, path)
	if err != nil {
		return err
	}
	defer closeOut()

	n, err := store.Export(out, format)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	logger.Info("metadata exported", "rows", n, "format", format)
	if path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d row(s) to %s\n", n, path)
	}
	return nil
}
