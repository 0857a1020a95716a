package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/FleetingTimes/nor-crawler/internal/config"
	"github.com/FleetingTimes/nor-crawler/internal/database"
	"github.com/FleetingTimes/nor-crawler/internal/exclusion"
	"github.com/FleetingTimes/nor-crawler/internal/fetch"
	"github.com/FleetingTimes/nor-crawler/internal/frontier"
	"github.com/FleetingTimes/nor-crawler/internal/identity"
	"github.com/FleetingTimes/nor-crawler/internal/links"
	"github.com/FleetingTimes/nor-crawler/internal/log"
	"github.com/FleetingTimes/nor-crawler/internal/metrics"
	"github.com/FleetingTimes/nor-crawler/internal/model"
	"github.com/FleetingTimes/nor-crawler/internal/report"
	"github.com/FleetingTimes/nor-crawler/internal/retry"
	"github.com/FleetingTimes/nor-crawler/internal/scheduler"
	"github.com/FleetingTimes/nor-crawler/internal/session"
	"github.com/FleetingTimes/nor-crawler/internal/store"
	"github.com/FleetingTimes/nor-crawler/internal/throttle"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl one or more sites politely",
		Long: `Crawl fetches the seed URLs and follows discovered links, while
respecting per-domain pacing, robots.txt, retry budgets, and circuit
breakers for failing hosts.

Examples:
  # Crawl a single site
  norcrawl crawl https://example.com/

  # Restrict the crawl to specific domains
  norcrawl crawl --allowed example.com https://example.com/

  # Slow down against every domain
  norcrawl crawl --delay 2s https://example.com/

  # Resume an interrupted run, skipping already-fetched pages
  norcrawl crawl --resume https://example.com/

  # Output a JSON report to a file
  norcrawl crawl --json -o report.json https://example.com/

Configuration file (.norcrawl) example:
  seeds:
    - https://example.com/
  allowed_domains:
    - example.com
  per_domain_delay_ms: 800
  sessions:
    shop:
      login_url: https://example.com/login
      username: alice
      password: secret
      domains: [example.com]`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().StringSliceP("allowed", "a", nil,
		"Restrict the crawl to these domains and their subdomains")
	cmd.Flags().IntP("concurrency", "n", config.DefaultMaxConcurrency,
		"Maximum simultaneous fetches across all domains")
	cmd.Flags().Duration("delay", config.DefaultPerDomainDelay,
		"Minimum spacing between requests to the same domain")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link-following depth from the seeds")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPagesPerDomain,
		"Maximum pages admitted per domain")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Per-request timeout")
	cmd.Flags().Int("max-retries", config.DefaultMaxRetries,
		"Retry budget per URL after the first attempt")
	cmd.Flags().Float64("global-rate", 0,
		"Cap on total requests per second across all domains (0 = unlimited)")
	cmd.Flags().Bool("no-robots", false,
		"Skip robots.txt exclusion checks")

	// Persistence and resume
	cmd.Flags().String("db-dir", "",
		"Directory for the outcome database (default: XDG data directory)")
	cmd.Flags().BoolP("resume", "r", false,
		"Skip URLs already completed by the previous run")
	cmd.Flags().String("run-id", "",
		"Identifier stamped on this run's outcomes (default: random)")
	cmd.Flags().String("redis", "",
		"Redis address for the shared dedup store (default: in-memory)")

	// Observability
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g. 127.0.0.1:9091)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .norcrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ExpandKeywordSeeds(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, draining...")
		cancel()
	}()

	return runCrawl(ctx, cfg, logger)
}

// buildConfig creates a Config from the config file and command flags.
// Flags override file settings; positional arguments become seeds.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	configFlag, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath := config.FindConfigFile(configFlag)
	if configPath != "" {
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		f.ApplyTo(cfg)
		cfg.ConfigFilePath = configPath
	} else if configFlag != "" {
		return nil, fmt.Errorf("configuration file not found: %s", configFlag)
	}

	cfg.Seeds = append(cfg.Seeds, args...)

	flags := cmd.Flags()
	if flags.Changed("allowed") {
		cfg.AllowedDomains, err = flags.GetStringSlice("allowed")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		cfg.MaxConcurrency, err = flags.GetInt("concurrency")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("delay") {
		cfg.PerDomainDelay, err = flags.GetDuration("delay")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("depth") {
		cfg.MaxDepth, err = flags.GetInt("depth")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-pages") {
		cfg.MaxPagesPerDomain, err = flags.GetInt("max-pages")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		cfg.Timeout, err = flags.GetDuration("timeout")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries, err = flags.GetInt("max-retries")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("global-rate") {
		cfg.GlobalRate, err = flags.GetFloat64("global-rate")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("no-robots") {
		noRobots, err := flags.GetBool("no-robots")
		if err != nil {
			return nil, err
		}
		cfg.RespectRobots = !noRobots
	}
	if flags.Changed("db-dir") {
		cfg.DBDir, err = flags.GetString("db-dir")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("redis") {
		cfg.RedisAddr, err = flags.GetString("redis")
		if err != nil {
			return nil, err
		}
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, err = flags.GetString("metrics-addr")
		if err != nil {
			return nil, err
		}
	}

	cfg.Resume, err = flags.GetBool("resume")
	if err != nil {
		return nil, err
	}
	cfg.RunID, err = flags.GetString("run-id")
	if err != nil {
		return nil, err
	}
	cfg.JSONReport, err = flags.GetBool("json")
	if err != nil {
		return nil, err
	}
	cfg.MarkdownReport, err = flags.GetBool("markdown")
	if err != nil {
		return nil, err
	}
	cfg.ReportFile, err = flags.GetString("output")
	if err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// runCrawl wires the crawl components together and executes the run.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var db *database.CrawlDB
	if cfg.DBDir != "" {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	// A resumed run skips everything the previous run finished.
	var completed []string
	if cfg.Resume && db != nil {
		lastRun, err := db.LastRunID(ctx)
		if err != nil {
			return fmt.Errorf("failed to look up previous run: %w", err)
		}
		if lastRun != "" {
			completed, err = db.CompletedURLs(ctx, lastRun)
			if err != nil {
				return fmt.Errorf("failed to load completed URLs: %w", err)
			}
			logger.Info("resuming previous run",
				"run_id", lastRun, "completed", len(completed))
		}
	}

	policy := retry.New(cfg.RetryInitial, cfg.RetryMax, cfg.MaxRetries)

	throttleOpts := []throttle.Option{}
	if len(cfg.DomainDelays) > 0 {
		throttleOpts = append(throttleOpts, throttle.WithDomainDelays(cfg.DomainDelays))
	}
	th := throttle.New(cfg.PerDomainDelay, cfg.PerDomainConcurrency, cfg.FailureThreshold, policy, throttleOpts...)

	poolOpts := []identity.Option{}
	if cfg.IdentityCooldown > 0 {
		poolOpts = append(poolOpts, identity.WithCooldown(cfg.IdentityCooldown))
	}
	pool := identity.New(cfg.Identities, poolOpts...)

	sessions := session.NewManager(session.WithLogger(logger))
	for id, creds := range cfg.Sessions {
		if err := sessions.Register(id, creds); err != nil {
			return fmt.Errorf("failed to register session %q: %w", id, err)
		}
	}

	fetcher := fetch.New(th, pool, sessions,
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithLogger(logger),
	)
	if cfg.RespectRobots {
		userAgent := config.DefaultUserAgent
		if len(cfg.Identities) > 0 && cfg.Identities[0].UserAgent != "" {
			userAgent = cfg.Identities[0].UserAgent
		}
		fetcher.SetExclusions(exclusion.New(fetcher.FetchRobots, userAgent,
			exclusion.WithDefaultAllow(cfg.DefaultAllow),
			exclusion.WithTTL(cfg.RobotsTTL),
			exclusion.WithLogger(logger),
		))
	}

	frontierOpts := []frontier.Option{
		frontier.WithAllowedDomains(cfg.AllowedDomains),
		frontier.WithMaxDepth(cfg.MaxDepth),
		frontier.WithMaxPagesPerDomain(cfg.MaxPagesPerDomain),
		frontier.WithLogger(logger),
	}
	if cfg.RedisAddr != "" {
		seen := store.NewRedisSeen(cfg.RedisAddr, cfg.SeenTTL)
		defer seen.Close()
		frontierOpts = append(frontierOpts, frontier.WithSeen(seen))
		logger.Info("using Redis dedup store", "addr", cfg.RedisAddr)
	}
	front := frontier.New(frontierOpts...)

	var plugins []scheduler.Plugin
	if cfg.FollowLinks {
		plugins = append(plugins, scheduler.Plugin{
			Name:  "links",
			Match: func(page *model.Page) bool { return page.IsHTML() },
			Handle: func(_ context.Context, page *model.Page) ([]string, error) {
				result, err := links.Extract(page)
				if err != nil {
					return nil, err
				}
				return result.Links, nil
			},
		})
	}

	schedOpts := []scheduler.Option{
		scheduler.WithMaxConcurrency(cfg.MaxConcurrency),
		scheduler.WithPlugins(plugins...),
		scheduler.WithLogger(logger),
		scheduler.WithGlobalRate(cfg.GlobalRate, cfg.GlobalBurst),
		scheduler.WithCompleted(completed),
		scheduler.WithRunID(cfg.RunID),
	}
	if db != nil {
		schedOpts = append(schedOpts, scheduler.WithSink(db))
	}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		schedOpts = append(schedOpts, scheduler.WithMetrics(metrics.New(reg)))
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer srv.Close()
	}

	sched := scheduler.New(front, th, fetcher, policy, schedOpts...)

	seeds := make([]scheduler.Seed, 0, len(cfg.Seeds))
	for _, raw := range cfg.Seeds {
		seed := scheduler.Seed{URL: raw}
		if _, domain, err := frontier.Normalize(raw); err == nil {
			seed.SessionID = cfg.SessionDomains[domain]
		}
		seeds = append(seeds, seed)
	}

	fmt.Printf("Crawling %d seed(s) (run %s)...\n", len(seeds), sched.RunID())
	summary, err := sched.Run(ctx, seeds)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if db != nil {
		if err := db.SaveSummary(context.WithoutCancel(ctx), summary); err != nil {
			logger.Warn("failed to save run summary", "error", err)
		}
	}

	return outputReport(cfg, summary)
}

// serveMetrics starts the Prometheus endpoint in the background.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

// outputReport writes the run summary in the requested format.
func outputReport(cfg *config.Config, summary *model.Summary) error {
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports may list authenticated URLs, so keep them owner-readable.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	_, err := writer.Write(summary)
	return err
}
