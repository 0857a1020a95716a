package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/FleetingTimes/nor-crawler/internal/config"
	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// TestNewCrawlCmd tests the crawl command creation.
func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "crawl [url...]" {
			t.Errorf("expected use 'crawl [url...]', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	t.Run("has expected flags", func(t *testing.T) {
		t.Parallel()

		for _, name := range []string{
			"allowed", "concurrency", "delay", "depth", "max-pages",
			"timeout", "max-retries", "global-rate", "no-robots",
			"db-dir", "resume", "run-id", "redis", "metrics-addr",
			"config", "json", "markdown", "output",
		} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q", name)
			}
		}
	})

	t.Run("flag defaults match config defaults", func(t *testing.T) {
		t.Parallel()

		if got := cmd.Flags().Lookup("delay").DefValue; got != config.DefaultPerDomainDelay.String() {
			t.Errorf("delay default = %q, want %q", got, config.DefaultPerDomainDelay)
		}
		if got := cmd.Flags().Lookup("concurrency").DefValue; got != "8" {
			t.Errorf("concurrency default = %q, want 8", got)
		}
	})
}

// TestBuildConfig tests flag and config file handling.
func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("positional args become seeds", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		cfg, err := buildConfig(cmd, []string{"https://example.com/", "https://other.example/"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}
		if len(cfg.Seeds) != 2 || cfg.Seeds[0] != "https://example.com/" {
			t.Errorf("Seeds = %v", cfg.Seeds)
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		mustSet(t, cmd, "delay", "2s")
		mustSet(t, cmd, "concurrency", "3")
		mustSet(t, cmd, "no-robots", "true")

		cfg, err := buildConfig(cmd, []string{"https://example.com/"})
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}
		if cfg.PerDomainDelay != 2*time.Second {
			t.Errorf("PerDomainDelay = %v, want 2s", cfg.PerDomainDelay)
		}
		if cfg.MaxConcurrency != 3 {
			t.Errorf("MaxConcurrency = %d, want 3", cfg.MaxConcurrency)
		}
		if cfg.RespectRobots {
			t.Error("RespectRobots should be disabled by --no-robots")
		}
	})

	t.Run("flags override config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".norcrawl")
		content := "seeds: [https://example.com/]\nmax_concurrency: 2\nper_domain_delay_ms: 5000\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		cmd := NewCrawlCmd()
		mustSet(t, cmd, "config", path)
		mustSet(t, cmd, "concurrency", "6")

		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("buildConfig failed: %v", err)
		}
		if cfg.MaxConcurrency != 6 {
			t.Errorf("MaxConcurrency = %d, want flag value 6", cfg.MaxConcurrency)
		}
		if cfg.PerDomainDelay != 5*time.Second {
			t.Errorf("PerDomainDelay = %v, want file value 5s", cfg.PerDomainDelay)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("ConfigFilePath = %q, want %q", cfg.ConfigFilePath, path)
		}
	})

	t.Run("explicit missing config file errors", func(t *testing.T) {
		t.Parallel()

		cmd := NewCrawlCmd()
		mustSet(t, cmd, "config", filepath.Join(t.TempDir(), "missing.yml"))

		if _, err := buildConfig(cmd, []string{"https://example.com/"}); err == nil {
			t.Error("expected error for missing explicit config file")
		}
	})
}

func mustSet(t *testing.T, cmd *cobra.Command, name, value string) {
	t.Helper()
	if err := cmd.Flags().Set(name, value); err != nil {
		t.Fatalf("failed to set flag %s: %v", name, err)
	}
}

// TestOutputReport tests report destination and format selection.
func TestOutputReport(t *testing.T) {
	summary := &model.Summary{
		RunID:      "run-cli",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	summary.Record(model.Outcome{
		RunID: "run-cli", URL: "https://example.com/", Domain: "example.com",
		StatusCode: 200, Class: model.ClassNone, Attempts: 1,
	})

	t.Run("writes json report to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reports", "out.json")
		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = path

		if err := outputReport(cfg, summary); err != nil {
			t.Fatalf("outputReport failed: %v", err)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("report file not created: %v", err)
		}
		if !strings.Contains(string(content), "run-cli") {
			t.Error("report missing run id")
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("report file mode = %o, want 600", perm)
		}
	})

	t.Run("writes markdown report to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.md")
		cfg := config.NewConfig()
		cfg.MarkdownReport = true
		cfg.ReportFile = path

		if err := outputReport(cfg, summary); err != nil {
			t.Fatalf("outputReport failed: %v", err)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("report file not created: %v", err)
		}
		if !strings.Contains(string(content), "# Crawl Run Report") {
			t.Error("report missing markdown heading")
		}
	})
}
