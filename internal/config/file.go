package config

import (
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/identity"
	"github.com/FleetingTimes/nor-crawler/internal/session"
)

// File is the YAML structure of the .norcrawl configuration file. Durations
// are expressed in milliseconds or minutes as named by each field, so the
// file stays readable without Go duration syntax.
type File struct {
	Seeds          []string `yaml:"seeds,omitempty"`
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`

	// SeedKeywords generates extra seeds from a keyword file.
	SeedKeywords *KeywordSeedsFile `yaml:"seed_keywords,omitempty"`

	FollowLinks *bool `yaml:"follow_links,omitempty"`

	MaxConcurrency       int `yaml:"max_concurrency,omitempty"`
	PerDomainDelayMS     int `yaml:"per_domain_delay_ms,omitempty"`
	PerDomainConcurrency int `yaml:"per_domain_concurrency,omitempty"`
	FailureThreshold     int `yaml:"failure_threshold,omitempty"`

	// Domains holds per-domain overrides keyed by domain name.
	Domains map[string]DomainFile `yaml:"domains,omitempty"`

	Retry *RetryFile `yaml:"retry,omitempty"`

	TimeoutMS   int   `yaml:"timeout_ms,omitempty"`
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`

	MaxDepth          int `yaml:"max_depth,omitempty"`
	MaxPagesPerDomain int `yaml:"max_pages_per_domain,omitempty"`

	GlobalRate  float64 `yaml:"global_rate,omitempty"`
	GlobalBurst int     `yaml:"global_burst,omitempty"`

	Identities          []IdentityFile `yaml:"identities,omitempty"`
	IdentityCooldownSec int            `yaml:"identity_cooldown_sec,omitempty"`

	Sessions map[string]SessionFile `yaml:"sessions,omitempty"`

	Robots *RobotsFile `yaml:"robots,omitempty"`

	RedisAddr  string `yaml:"redis_addr,omitempty"`
	SeenTTLMin int    `yaml:"seen_ttl_minutes,omitempty"`

	DBDir string `yaml:"db_dir,omitempty"`

	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// KeywordSeedsFile generates seeds from a keyword file: one URL per line,
// substituting {kw} in the template.
type KeywordSeedsFile struct {
	File     string `yaml:"file,omitempty"`
	Template string `yaml:"template,omitempty"`
}

// DomainFile holds per-domain overrides.
type DomainFile struct {
	// DelayMS overrides the global per-domain delay for this domain.
	DelayMS int `yaml:"delay_ms,omitempty"`
}

// RetryFile shapes the backoff schedule.
type RetryFile struct {
	InitialMS  int `yaml:"initial_ms,omitempty"`
	MaxMS      int `yaml:"max_ms,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// IdentityFile is one user-agent and proxy combination.
type IdentityFile struct {
	UserAgent string `yaml:"user_agent,omitempty"`
	ProxyURL  string `yaml:"proxy_url,omitempty"`
}

// SessionFile holds login credentials for one session id.
type SessionFile struct {
	// Type is "form" or "token". Defaults to "form".
	Type     string `yaml:"type,omitempty"`
	LoginURL string `yaml:"login_url,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Payload carries extra login fields such as CSRF tokens.
	Payload map[string]string `yaml:"payload,omitempty"`

	// Headers are extra request headers for the login request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// TTLMinutes estimates session lifetime. Zero means expiry is only
	// detected from responses.
	TTLMinutes int `yaml:"ttl_minutes,omitempty"`

	// CookiesFile bootstraps the session from an exported cookies file.
	CookiesFile string `yaml:"cookies_file,omitempty"`

	// Domains lists the domains whose fetches carry this session.
	Domains []string `yaml:"domains,omitempty"`
}

// RobotsFile controls robots.txt handling.
type RobotsFile struct {
	Enabled      *bool `yaml:"enabled,omitempty"`
	DefaultAllow *bool `yaml:"default_allow,omitempty"`
	TTLMinutes   int   `yaml:"ttl_minutes,omitempty"`
}

// ApplyTo merges the file's settings into cfg. Only fields present in the
// file override cfg; everything else keeps its current value.
func (f *File) ApplyTo(cfg *Config) {
	if len(f.Seeds) > 0 {
		cfg.Seeds = f.Seeds
	}
	if len(f.AllowedDomains) > 0 {
		cfg.AllowedDomains = f.AllowedDomains
	}
	if f.SeedKeywords != nil {
		cfg.SeedKeywordsFile = f.SeedKeywords.File
		cfg.SeedKeywordsTemplate = f.SeedKeywords.Template
	}
	if f.FollowLinks != nil {
		cfg.FollowLinks = *f.FollowLinks
	}
	if f.MaxConcurrency > 0 {
		cfg.MaxConcurrency = f.MaxConcurrency
	}
	if f.PerDomainDelayMS > 0 {
		cfg.PerDomainDelay = time.Duration(f.PerDomainDelayMS) * time.Millisecond
	}
	if f.PerDomainConcurrency > 0 {
		cfg.PerDomainConcurrency = f.PerDomainConcurrency
	}
	if f.FailureThreshold > 0 {
		cfg.FailureThreshold = f.FailureThreshold
	}
	if len(f.Domains) > 0 {
		if cfg.DomainDelays == nil {
			cfg.DomainDelays = make(map[string]time.Duration, len(f.Domains))
		}
		for domain, d := range f.Domains {
			if d.DelayMS > 0 {
				cfg.DomainDelays[domain] = time.Duration(d.DelayMS) * time.Millisecond
			}
		}
	}
	if f.Retry != nil {
		if f.Retry.InitialMS > 0 {
			cfg.RetryInitial = time.Duration(f.Retry.InitialMS) * time.Millisecond
		}
		if f.Retry.MaxMS > 0 {
			cfg.RetryMax = time.Duration(f.Retry.MaxMS) * time.Millisecond
		}
		if f.Retry.MaxRetries > 0 {
			cfg.MaxRetries = f.Retry.MaxRetries
		}
	}
	if f.TimeoutMS > 0 {
		cfg.Timeout = time.Duration(f.TimeoutMS) * time.Millisecond
	}
	if f.MaxBodySize > 0 {
		cfg.MaxBodySize = f.MaxBodySize
	}
	if f.MaxDepth > 0 {
		cfg.MaxDepth = f.MaxDepth
	}
	if f.MaxPagesPerDomain > 0 {
		cfg.MaxPagesPerDomain = f.MaxPagesPerDomain
	}
	if f.GlobalRate > 0 {
		cfg.GlobalRate = f.GlobalRate
	}
	if f.GlobalBurst > 0 {
		cfg.GlobalBurst = f.GlobalBurst
	}
	for _, id := range f.Identities {
		cfg.Identities = append(cfg.Identities, identity.Identity{
			UserAgent: id.UserAgent,
			ProxyURL:  id.ProxyURL,
		})
	}
	if f.IdentityCooldownSec > 0 {
		cfg.IdentityCooldown = time.Duration(f.IdentityCooldownSec) * time.Second
	}
	if len(f.Sessions) > 0 {
		if cfg.Sessions == nil {
			cfg.Sessions = make(map[string]session.Credentials, len(f.Sessions))
		}
		for id, s := range f.Sessions {
			cfg.Sessions[id] = s.credentials()
			for _, domain := range s.Domains {
				if cfg.SessionDomains == nil {
					cfg.SessionDomains = make(map[string]string)
				}
				cfg.SessionDomains[domain] = id
			}
		}
	}
	if f.Robots != nil {
		if f.Robots.Enabled != nil {
			cfg.RespectRobots = *f.Robots.Enabled
		}
		if f.Robots.DefaultAllow != nil {
			cfg.DefaultAllow = *f.Robots.DefaultAllow
		}
		if f.Robots.TTLMinutes > 0 {
			cfg.RobotsTTL = time.Duration(f.Robots.TTLMinutes) * time.Minute
		}
	}
	if f.RedisAddr != "" {
		cfg.RedisAddr = f.RedisAddr
	}
	if f.SeenTTLMin > 0 {
		cfg.SeenTTL = time.Duration(f.SeenTTLMin) * time.Minute
	}
	if f.DBDir != "" {
		cfg.DBDir = f.DBDir
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}
}

func (s SessionFile) credentials() session.Credentials {
	creds := session.Credentials{
		Type:        session.LoginType(s.Type),
		LoginURL:    s.LoginURL,
		Username:    s.Username,
		Password:    s.Password,
		Payload:     s.Payload,
		Headers:     s.Headers,
		CookiesFile: s.CookiesFile,
	}
	if s.TTLMinutes > 0 {
		creds.TTL = time.Duration(s.TTLMinutes) * time.Minute
	}
	return creds
}
