package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/boxhunt/internal/config"
	"github.com/nao1215/boxhunt/internal/source"
)

// NewProbeCmd creates the probe command.
func NewProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe [keyword]",
		Short: "Check that every configured source answers",
		Long: `Probe asks every configured source for a single candidate and reports
whether the request succeeded. Nothing is downloaded or stored.

Sources without credentials are listed with the reason they were skipped.

Examples:
  boxhunt probe
  boxhunt probe --source unsplash "moving box"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runProbeCmd,
	}

	cmd.Flags().StringSliceP("source", "s", nil,
		"Probe only these sources")
	return cmd
}

func runProbeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("source") {
		if cfg.Sources, err = cmd.Flags().GetStringSlice("source"); err != nil {
			return err
		}
	}
	keyword := config.DefaultKeywords[0]
	if len(args) > 0 {
		keyword = args[0]
	}
	logger := newLogger(cmd, cfg)

	client, fetcher, err := newFetcher(cfg, logger, nil)
	if err != nil {
		return err
	}
	sources, skipped := source.FromConfig(cfg, client, fetcher, logger)

	ctx, stop := signalContext(cmd)
	defer stop()

	out := cmd.OutOrStdout()
	failed := 0
	for _, id := range sources.IDs() {
		start := time.Now()
		candidates, err := sources[id].Search(ctx, keyword, 1)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  %-12s error  %v\n", id, err)
			continue
		}
		fmt.Fprintf(out, "  %-12s ok     %d candidate(s) in %s\n", id, len(candidates), elapsed)
	}
	for _, reason := range skipped {
		fmt.Fprintf(out, "  skipped      %s\n", reason)
	}

	switch {
	case len(sources) == 0:
		return errors.New("no source could be probed")
	case failed > 0:
		return fmt.Errorf("%d of %d sources failed", failed, len(sources))
	}
	return nil
}
