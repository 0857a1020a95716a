// Package main provides the entry point for the norcrawl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for norcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "norcrawl",
		Short: "Polite web crawler with scheduling and session support",
		Long: `norcrawl crawls web sites while staying polite: per-domain request
pacing, circuit breakers for failing hosts, bounded retry budgets with
exponential backoff, robots.txt exclusion, identity rotation across
user agents and proxies, and automatic re-login for authenticated areas.

Every admitted URL ends in exactly one terminal outcome, so interrupted
runs can be resumed without refetching finished pages.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
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
