package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/boxhunt/internal/config"
)

//go:embed templates/boxhunt.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a BoxHunt configuration file",
		Long: `Init writes a commented .boxhunt.yaml to the current directory.

The generated file documents every option: sources and credentials, quality
limits, the duplicate threshold, network pacing and per-website overrides.

Examples:
  # Create .boxhunt.yaml in current directory
  boxhunt init

  # Create config file at a specific path
  boxhunt init -o myconfig.yaml

  # Force overwrite existing file
  boxhunt init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/boxhunt.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may hold API keys.
	if err := os.WriteFile(outputPath, content, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  - set %s and/or %s, or add the keys to the file\n", config.EnvPexelsAPIKey, config.EnvUnsplashAccessKey)
	fmt.Fprintln(out, "  - run `boxhunt probe` to check the sources")
	fmt.Fprintln(out, "  - run `boxhunt crawl` to start collecting")
	return nil
}
