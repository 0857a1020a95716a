package exclusion

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// Default cache settings.
const (
	// DefaultTTL is how long fetched rules stay valid before a refresh.
	DefaultTTL = time.Hour

	// DefaultFailureCooldown is how long a failed fetch's default policy
	// applies before the fetch is retried.
	DefaultFailureCooldown = 5 * time.Minute
)

// FetchFunc retrieves the robots.txt document at the given URL and returns
// the HTTP status and body. A non-nil error means no response was received
// at all (network failure). The function is expected to bypass exclusion
// checking for this request.
type FetchFunc func(ctx context.Context, robotsURL string) (status int, body []byte, err error)

// entry is one domain's cached rule set.
type entry struct {
	// group holds the parsed rules for our user agent. Nil when the
	// fetch failed and the default policy applies.
	group *robotstxt.Group

	// fetchedAt is when the rules (or the failure) were recorded.
	fetchedAt time.Time

	// failed marks entries recorded after a fetch failure.
	failed bool
}

// Cache answers "may this path on this domain be fetched" from cached
// per-domain rule sets. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	flight  singleflight.Group

	fetch        FetchFunc
	userAgent    string
	ttl          time.Duration
	failCooldown time.Duration
	defaultAllow bool

	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long fetched rules stay valid.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithFailureCooldown sets how long a fetch failure's default policy
// applies before the fetch is retried.
func WithFailureCooldown(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.failCooldown = d
		}
	}
}

// WithDefaultAllow sets the policy applied when rules cannot be fetched.
// The default is allow; pass false for default-deny.
func WithDefaultAllow(allow bool) Option {
	return func(c *Cache) {
		c.defaultAllow = allow
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache. fetch performs the robots.txt retrieval; userAgent
// selects the rule group that applies to this crawler.
func New(fetch FetchFunc, userAgent string, opts ...Option) *Cache {
	c := &Cache{
		entries:      make(map[string]*entry),
		fetch:        fetch,
		userAgent:    userAgent,
		ttl:          DefaultTTL,
		failCooldown: DefaultFailureCooldown,
		defaultAllow: true,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Allowed reports whether the URL's path may be fetched under the domain's
// exclusion rules. On a cache miss or an expired entry the rules are
// fetched first; concurrent misses for one domain share a single fetch.
func (c *Cache) Allowed(ctx context.Context, u *url.URL) bool {
	host := u.Host

	if e, ok := c.fresh(host); ok {
		return c.verdict(e, u)
	}

	// Miss or stale: fetch once per domain, concurrently for distinct
	// domains. The singleflight key is the host, so unrelated domains
	// never wait on each other.
	v, _, _ := c.flight.Do(host, func() (any, error) {
		// Re-check inside the flight: another caller may have
		// refreshed the entry while we waited for the flight slot.
		if e, ok := c.fresh(host); ok {
			return e, nil
		}
		return c.refresh(ctx, u), nil
	})

	return c.verdict(v.(*entry), u)
}

// fresh returns the cached entry for host if it is still valid.
func (c *Cache) fresh(host string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[host]
	if !ok {
		return nil, false
	}

	maxAge := c.ttl
	if e.failed {
		maxAge = c.failCooldown
	}
	if c.now().Sub(e.fetchedAt) > maxAge {
		return nil, false
	}
	return e, true
}

// refresh fetches and parses the domain's rules, stores the new entry, and
// returns it. Fetch failures are stored as failed entries so the default
// policy applies until the cool-down elapses.
func (c *Cache) refresh(ctx context.Context, u *url.URL) *entry {
	robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()

	e := &entry{fetchedAt: c.now()}
	status, body, err := c.fetch(ctx, robotsURL)
	if err != nil {
		c.logger.Warn("exclusion rules fetch failed, applying default policy",
			"domain", u.Host,
			"default_allow", c.defaultAllow,
			"error", err,
		)
		e.failed = true
	} else {
		data, perr := robotstxt.FromStatusAndBytes(status, body)
		if perr != nil {
			c.logger.Warn("exclusion rules unparsable, applying default policy",
				"domain", u.Host,
				"error", perr,
			)
			e.failed = true
		} else {
			e.group = data.FindGroup(c.userAgent)
		}
	}

	c.mu.Lock()
	c.entries[u.Host] = e
	c.mu.Unlock()

	return e
}

// verdict evaluates an entry against a URL.
func (c *Cache) verdict(e *entry, u *url.URL) bool {
	if e.failed || e.group == nil {
		return c.defaultAllow
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return e.group.Test(path)
}
