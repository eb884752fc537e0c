package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config prints the configuration a run would use: the defaults, merged
with the configuration file and the environment. Credentials are masked.

Examples:
  boxhunt config
  boxhunt config -c myconfig.yaml`,
		Args: cobra.NoArgs,
		RunE: runConfigCmd,
	}
	return cmd
}

func runConfigCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.ConfigFilePath != "" {
		fmt.Fprintf(out, "# loaded from %s\n", cfg.ConfigFilePath)
	} else {
		fmt.Fprintln(out, "# no configuration file found, showing defaults")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.ToFile()); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	return nil
}
