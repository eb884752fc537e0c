package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for BoxHunt.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boxhunt",
		Short: "Collect a deduplicated dataset of cardboard box images",
		Long: `BoxHunt collects cardboard box images from Pexels, Unsplash, curated
manifests and websites. Candidates are filtered by size and format, compared
with a perceptual hash so near-duplicates are stored once, and every decision
is appended to a per-domain ledger (metadata.csv).

A run can be interrupted at any time; "boxhunt resume" continues where it
stopped without downloading anything twice.

API credentials are read from the configuration file or from the
PEXELS_API_KEY and UNSPLASH_ACCESS_KEY environment variables.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .boxhunt.yaml in current or home directory)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewCrawlSiteCmd())
	cmd.AddCommand(NewResumeCmd())
	cmd.AddCommand(NewProbeCmd())
	cmd.AddCommand(NewStatsCmd())
	cmd.AddCommand(NewCleanupCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
