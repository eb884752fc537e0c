package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/boxhunt/internal/database"
)

const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous runs",
		Long: `History lists the runs recorded in the history database, newest first,
followed by per-source totals over every recorded run.

With --id the full summary of one run is printed again, in any report
format.

Examples:
  boxhunt history
  boxhunt history --limit 5
  boxhunt history --id 12 --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64("id", 0, "Show the summary of the run with this history id")
	cmd.Flags().IntP("limit", "l", defaultHistoryLimit, "Number of runs to list (0 lists all)")
	addReportFlags(cmd)
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyReportFlags(cmd, cfg); err != nil {
		return err
	}
	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	newLogger(cmd, cfg)

	db, err := database.Open(cfg.HistoryDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() { _ = db.Close() }() //nolint:errcheck

	ctx := cmd.Context()
	if id > 0 {
		summary, err := db.GetRun(ctx, id)
		if err != nil {
			return err
		}
		return writeSummary(cmd, cfg, summary)
	}

	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded in %s\n", db.Path())
		return nil
	}

	fmt.Fprintf(out, "%-5s %-10s %-16s %8s %8s %8s %8s  %s\n",
		"ID", "MODE", "STARTED", "STORED", "DUPS", "REJECTED", "FAILED", "KEYWORDS")
	for _, r := range runs {
		keywords := strings.Join(r.Keywords, ", ")
		if r.Aborted {
			keywords = "[aborted] " + keywords
		}
		fmt.Fprintf(out, "%-5d %-10s %-16s %8d %8d %8d %8d  %s\n",
			r.ID, r.Mode, humanize.Time(r.StartedAt),
			r.Downloaded, r.Duplicate, r.Rejected, r.Failed, keywords)
	}

	totals, err := db.SourceTotals(ctx)
	if err != nil {
		return err
	}
	if len(totals) > 0 {
		fmt.Fprintf(out, "\n%-16s %6s %10s %8s %8s %8s %8s %10s\n",
			"SOURCE", "RUNS", "CANDIDATES", "STORED", "DUPS", "REJECTED", "FAILED", "SIZE")
		for _, st := range totals {
			fmt.Fprintf(out, "%-16s %6d %10d %8d %8d %8d %8d %10s\n",
				st.Source, st.Runs, st.Candidates, st.Downloaded, st.Duplicate,
				st.Rejected, st.Failed, humanize.Bytes(uint64(max(st.Bytes, 0))))
		}
	}
	return nil
}
