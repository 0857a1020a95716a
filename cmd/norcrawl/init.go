package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed templates/norcrawl.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = ".norcrawl"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new norcrawl configuration file",
		Long: `Initialize creates a new .norcrawl configuration file in the current directory.

The generated file includes:
- Default settings for pacing, retries, and crawl ceilings
- Commented examples for identities, sessions, and per-domain overrides
- Documentation for all available options

Examples:
  # Create .norcrawl in current directory
  norcrawl init

  # Create config file at a specific path
  norcrawl init -o crawl.yml

  # Force overwrite existing file
  norcrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
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

	content, err := configTemplate.ReadFile("templates/norcrawl.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Config files may hold session passwords, so keep them owner-only.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nEdit this file to configure settings such as:")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Seed URLs and allowed domains")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Per-domain delays and retry budgets")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Identities, sessions, and robots.txt policy")

	return nil
}
