package identity

import (
	"errors"
	"sync"
	"time"
)

// Pool tuning defaults. Health scores live in [0, 1].
const (
	// DefaultUserAgent is used when no identities are configured.
	DefaultUserAgent = "norcrawl/1.0 (+https://github.com/FleetingTimes/nor-crawler)"

	// DefaultCooldown is how long an excluded identity is skipped before
	// it is offered a probe.
	DefaultCooldown = 30 * time.Second

	// healthCeiling is the maximum health score.
	healthCeiling = 1.0

	// healthThreshold is the score below which an identity is excluded
	// from selection.
	healthThreshold = 0.3

	// failureDecay multiplies the score on each failure.
	failureDecay = 0.5

	// recoveryRate is the fraction of the remaining headroom regained on
	// each success.
	recoveryRate = 0.5
)

// ErrNoHealthyIdentity is returned by Select when every identity is below
// the health threshold and still within its cool-down. Callers should delay
// and retry rather than treat this as a terminal failure.
var ErrNoHealthyIdentity = errors.New("identity: no healthy identity available")

// Identity is one outbound request signature: a user-agent string and an
// optional proxy endpoint. An empty ProxyURL means direct connection.
type Identity struct {
	// UserAgent is the User-Agent header value.
	UserAgent string

	// ProxyURL is the proxy endpoint ("http://host:port",
	// "socks5://host:port", optionally with userinfo), or empty for none.
	ProxyURL string
}

// entry is the pool's mutable state for one identity.
type entry struct {
	id          Identity
	health      float64
	lastFailure time.Time
	excludedAt  time.Time
	probing     bool
}

// excluded reports whether the entry is currently skipped by selection.
func (e *entry) excluded() bool {
	return e.health < healthThreshold
}

// Pool selects identities for outbound requests and tracks their health.
// All methods are safe for concurrent use; the critical sections are short
// and contention is low.
type Pool struct {
	mu       sync.Mutex
	entries  []*entry
	next     int
	cooldown time.Duration
	now      func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithCooldown sets how long an excluded identity waits before a probe.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// New creates a Pool from the configured identities. If none are given,
// the pool holds a single direct-connection identity with the default
// user agent.
func New(identities []Identity, opts ...Option) *Pool {
	if len(identities) == 0 {
		identities = []Identity{{UserAgent: DefaultUserAgent}}
	}

	p := &Pool{
		entries:  make([]*entry, 0, len(identities)),
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, id := range identities {
		if id.UserAgent == "" {
			id.UserAgent = DefaultUserAgent
		}
		p.entries = append(p.entries, &entry{id: id, health: healthCeiling})
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Size returns the number of identities in the pool.
func (p *Pool) Size() int {
	return len(p.entries)
}

// Cooldown returns the configured exclusion cool-down. The scheduler uses
// it as the delay before retrying a task that found no healthy identity.
func (p *Pool) Cooldown() time.Duration {
	return p.cooldown
}

// Select picks an identity for the next request. Healthy identities are
// used round-robin. If all are unhealthy, the least-recently-failed
// identity whose cool-down has elapsed is offered as a probe; it keeps its
// probe slot until ReportOutcome settles it. If no identity is available,
// Select returns ErrNoHealthyIdentity.
func (p *Pool) Select() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)

	// Round-robin over healthy identities.
	for i := 0; i < n; i++ {
		e := p.entries[p.next]
		p.next = (p.next + 1) % n
		if !e.excluded() {
			return e.id, nil
		}
	}

	// No healthy identity. Fall back to the least-recently-failed entry
	// whose cool-down has elapsed and which is not already mid-probe.
	now := p.now()
	var candidate *entry
	for _, e := range p.entries {
		if e.probing || now.Sub(e.excludedAt) < p.cooldown {
			continue
		}
		if candidate == nil || e.lastFailure.Before(candidate.lastFailure) {
			candidate = e
		}
	}
	if candidate == nil {
		return Identity{}, ErrNoHealthyIdentity
	}

	candidate.probing = true
	return candidate.id, nil
}

// ReportOutcome updates the health of the identity that served a request.
// Success recovers the score toward the ceiling and clears any probe state;
// failure decays the score and, if it crosses the exclusion threshold,
// starts the cool-down.
func (p *Pool) ReportOutcome(id Identity, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(id)
	if e == nil {
		return
	}

	if success {
		e.health += (healthCeiling - e.health) * recoveryRate
		e.probing = false
		return
	}

	e.health *= failureDecay
	e.lastFailure = p.now()
	e.probing = false
	if e.excluded() {
		// Crossing the threshold and failing a probe both restart the cool-down.
		e.excludedAt = e.lastFailure
	}
}

// Health returns the current health score of an identity, or -1 if the
// identity is not in the pool. Intended for tests and diagnostics.
func (p *Pool) Health(id Identity) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.find(id); e != nil {
		return e.health
	}
	return -1
}

// find locates the pool entry for an identity. Pools are small (typically
// under a dozen identities), so a linear scan is fine.
func (p *Pool) find(id Identity) *entry {
	for _, e := range p.entries {
		if e.id == id {
			return e
		}
	}
	return nil
}
