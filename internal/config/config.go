package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/FleetingTimes/nor-crawler/internal/identity"
	"github.com/FleetingTimes/nor-crawler/internal/session"
)

// Default configuration values. These match the documented defaults of the
// crawl scheduler and are overridable via config file and CLI flags.
const (
	// AppName is used for XDG directory paths.
	AppName = "norcrawl"

	// DefaultMaxConcurrency bounds simultaneous fetches across all
	// domains. Eight workers keeps throughput reasonable without
	// hammering any single host once per-domain pacing is applied.
	DefaultMaxConcurrency = 8

	// DefaultPerDomainDelay is the minimum spacing between fetch starts
	// against the same domain.
	DefaultPerDomainDelay = 800 * time.Millisecond

	// DefaultPerDomainConcurrency is the number of simultaneous fetches
	// allowed per domain. One is the polite default.
	DefaultPerDomainConcurrency = 1

	// DefaultFailureThreshold is the consecutive-failure count that opens
	// a domain's circuit breaker.
	DefaultFailureThreshold = 5

	// DefaultRetryInitial is the base delay before the first retry.
	DefaultRetryInitial = 500 * time.Millisecond

	// DefaultRetryMax caps the exponential backoff delay.
	DefaultRetryMax = 8 * time.Second

	// DefaultMaxRetries is the retry budget per URL after the first
	// attempt.
	DefaultMaxRetries = 3

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize caps response bodies at 10MB. Larger responses
	// are truncated.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultMaxDepth limits link-following recursion from the seeds.
	DefaultMaxDepth = 5

	// DefaultMaxPagesPerDomain caps admissions per domain to stop
	// runaway crawls of large or generated sites.
	DefaultMaxPagesPerDomain = 1000

	// DefaultRobotsTTL is the cache lifetime for robots.txt policies.
	DefaultRobotsTTL = time.Hour

	// DefaultUserAgent identifies the crawler in HTTP requests when no
	// identities are configured.
	DefaultUserAgent = "norcrawl/1.0 (+https://github.com/FleetingTimes/nor-crawler)"
)

// Config holds all options for a crawl run. It is populated from the config
// file and CLI flags, then passed through the application by dependency
// injection rather than global state.
type Config struct {
	// Seeds are the starting URLs. At least one is required.
	Seeds []string

	// SeedKeywordsFile and SeedKeywordsTemplate generate extra seeds: one
	// URL per keyword-file line, substituting {kw} in the template.
	SeedKeywordsFile     string
	SeedKeywordsTemplate string

	// AllowedDomains restricts admission to the listed domains and their
	// subdomains. Empty means every domain is allowed.
	AllowedDomains []string

	// FollowLinks admits the links discovered on fetched pages. Disable
	// for targeted crawls that should stay on the seed URLs.
	FollowLinks bool

	// MaxConcurrency bounds simultaneous fetches across all domains.
	MaxConcurrency int

	// PerDomainDelay is the minimum spacing between fetch starts against
	// the same domain.
	PerDomainDelay time.Duration

	// DomainDelays overrides PerDomainDelay for specific domains.
	DomainDelays map[string]time.Duration

	// PerDomainConcurrency is the number of simultaneous fetches allowed
	// per domain.
	PerDomainConcurrency int

	// FailureThreshold is the consecutive-failure count that opens a
	// domain's circuit breaker.
	FailureThreshold int

	// RetryInitial, RetryMax, and MaxRetries shape the backoff schedule
	// for retryable failures.
	RetryInitial time.Duration
	RetryMax     time.Duration
	MaxRetries   int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxBodySize caps response bodies in bytes. Zero uses the default.
	MaxBodySize int64

	// MaxDepth limits link-following recursion from the seeds.
	MaxDepth int

	// MaxPagesPerDomain caps admissions per domain. Zero means no cap.
	MaxPagesPerDomain int

	// GlobalRate optionally throttles total fetch starts per second
	// across all domains. Zero disables the global limiter.
	GlobalRate  float64
	GlobalBurst int

	// Identities are the user-agent and proxy combinations rotated
	// across fetches. Empty means a single default identity.
	Identities []identity.Identity

	// IdentityCooldown is how long an unhealthy identity rests before a
	// probe attempt. Zero uses the pool's default.
	IdentityCooldown time.Duration

	// Sessions maps session ids to their login credentials.
	Sessions map[string]session.Credentials

	// SessionDomains maps a domain to the session id its fetches use.
	SessionDomains map[string]string

	// RespectRobots enables robots.txt exclusion checks.
	RespectRobots bool

	// DefaultAllow is the exclusion policy applied when robots.txt
	// cannot be fetched.
	DefaultAllow bool

	// RobotsTTL is the cache lifetime for robots.txt policies.
	RobotsTTL time.Duration

	// RedisAddr enables the shared Redis dedup store when set. Empty
	// uses the in-memory store.
	RedisAddr string

	// SeenTTL is the expiry for Redis dedup keys. Zero means no expiry.
	SeenTTL time.Duration

	// DBDir is the directory for the SQLite outcome database. When set,
	// terminal outcomes are persisted and runs become resumable.
	// Defaults to the XDG data directory.
	DBDir string

	// Resume skips URLs already completed by the previous run in DBDir.
	Resume bool

	// RunID overrides the generated run identifier.
	RunID string

	// MetricsAddr serves Prometheus metrics on the given address when
	// set, e.g. "127.0.0.1:9091". Empty disables the metrics endpoint.
	MetricsAddr string

	// Verbose enables debug logging.
	Verbose bool

	// JSONReport and MarkdownReport select the report format. Mutually
	// exclusive; the default is the human-readable text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// ConfigFilePath is the config file the settings were loaded from,
	// if any.
	ConfigFilePath string
}

// NewConfig creates a Config with default values. Callers override fields
// after creation from the config file and CLI flags.
func NewConfig() *Config {
	return &Config{
		FollowLinks:          true,
		MaxConcurrency:       DefaultMaxConcurrency,
		PerDomainDelay:       DefaultPerDomainDelay,
		PerDomainConcurrency: DefaultPerDomainConcurrency,
		FailureThreshold:     DefaultFailureThreshold,
		RetryInitial:         DefaultRetryInitial,
		RetryMax:             DefaultRetryMax,
		MaxRetries:           DefaultMaxRetries,
		Timeout:              DefaultTimeout,
		MaxBodySize:          DefaultMaxBodySize,
		MaxDepth:             DefaultMaxDepth,
		MaxPagesPerDomain:    DefaultMaxPagesPerDomain,
		RespectRobots:        true,
		DefaultAllow:         true,
		RobotsTTL:            DefaultRobotsTTL,
		DBDir:                XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for the crawler.
// On Linux: ~/.local/share/norcrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for the crawler.
// On Linux: ~/.config/norcrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ExpandKeywordSeeds appends generated seeds when a keyword file and URL
// template are configured: one seed per non-empty line, substituting {kw}
// in the template.
func (c *Config) ExpandKeywordSeeds() error {
	if c.SeedKeywordsFile == "" || c.SeedKeywordsTemplate == "" {
		return nil
	}
	data, err := os.ReadFile(c.SeedKeywordsFile) //nolint:gosec // User-provided keywords path is intentional
	if err != nil {
		return fmt.Errorf("failed to read keywords file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		kw := strings.TrimSpace(line)
		if kw == "" {
			continue
		}
		c.Seeds = append(c.Seeds, strings.ReplaceAll(c.SeedKeywordsTemplate, "{kw}", kw))
	}
	return nil
}

// Validate checks the configuration and returns the first error found.
// It runs once after flag parsing, before any crawling begins.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	if c.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.PerDomainConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.PerDomainDelay < 0 {
		return ErrInvalidDelay
	}
	for _, d := range c.DomainDelays {
		if d < 0 {
			return ErrInvalidDelay
		}
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetryInitial <= 0 || c.RetryMax < c.RetryInitial || c.MaxRetries < 0 {
		return ErrInvalidRetry
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.GlobalRate < 0 {
		return ErrInvalidRate
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	for id, creds := range c.Sessions {
		if id == "" {
			return ErrInvalidSession
		}
		if creds.LoginURL == "" && creds.CookiesFile == "" {
			return ErrInvalidSession
		}
	}
	return nil
}
