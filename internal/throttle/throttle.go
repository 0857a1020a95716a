package throttle

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/model"
	"github.com/FleetingTimes/nor-crawler/internal/retry"
)

// CircuitState is the three-state availability guard for one domain.
type CircuitState int

const (
	// CircuitClosed admits requests normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects all requests until the open period elapses.
	CircuitOpen

	// CircuitHalfOpen admits exactly one probe request.
	CircuitHalfOpen
)

// String returns a human-readable circuit state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Default throttle settings.
const (
	// DefaultFailureThreshold is the number of consecutive retryable
	// failures that opens a domain's circuit.
	DefaultFailureThreshold = 5

	// jitterFraction bounds the random addition to the inter-request
	// interval, as a fraction of the minimum delay.
	jitterFraction = 0.1
)

// domainState holds the throttle and circuit bookkeeping for one domain.
// It is mutated only under the Throttle mutex.
type domainState struct {
	nextAllowed   time.Time
	inFlight      int
	failures      int
	circuit       CircuitState
	openUntil     time.Time
	openCount     int
	probeInFlight bool
}

// Throttle is the per-domain request gate. One instance serves the whole
// crawl; domain entries are created lazily.
type Throttle struct {
	mu      sync.Mutex
	domains map[string]*domainState

	minDelay      time.Duration
	domainDelays  map[string]time.Duration
	perDomain     int
	failThreshold int
	policy        *retry.Policy

	now       func() time.Time
	randFloat func() float64
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithDomainDelays sets per-domain overrides of the minimum inter-request
// interval. Domains not in the map use the global minimum.
func WithDomainDelays(delays map[string]time.Duration) Option {
	return func(t *Throttle) {
		t.domainDelays = delays
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		t.now = now
	}
}

// WithRandom replaces the jitter source. The function must return values
// in [0, 1). Used by tests.
func WithRandom(f func() float64) Option {
	return func(t *Throttle) {
		t.randFloat = f
	}
}

// New creates a Throttle. minDelay is the global minimum interval between
// request starts to the same domain; perDomain bounds concurrent in-flight
// requests per domain (minimum 1); failThreshold is the consecutive-failure
// count that opens the circuit; policy supplies the open-period backoff.
func New(minDelay time.Duration, perDomain, failThreshold int, policy *retry.Policy, opts ...Option) *Throttle {
	if perDomain < 1 {
		perDomain = 1
	}
	if failThreshold < 1 {
		failThreshold = DefaultFailureThreshold
	}

	t := &Throttle{
		domains:       make(map[string]*domainState),
		minDelay:      minDelay,
		perDomain:     perDomain,
		failThreshold: failThreshold,
		policy:        policy,
		now:           time.Now,
		randFloat:     rand.Float64,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// TryAcquire attempts to reserve a dispatch slot for the domain. It returns
// true iff the pacing gate is open, the circuit admits the request, and the
// per-domain in-flight limit is not reached. On success the pacing gate
// advances by the minimum interval plus jitter, and the caller must pair
// the acquire with exactly one Release.
func (t *Throttle) TryAcquire(domain string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.state(domain)
	now := t.now()

	if now.Before(d.nextAllowed) {
		return false
	}

	switch d.circuit {
	case CircuitOpen:
		if now.Before(d.openUntil) {
			return false
		}
		d.circuit = CircuitHalfOpen
		d.probeInFlight = false
	case CircuitHalfOpen:
		if d.probeInFlight {
			return false
		}
	}

	if d.inFlight >= t.perDomain {
		return false
	}

	d.inFlight++
	if d.circuit == CircuitHalfOpen {
		d.probeInFlight = true
	}

	delay := t.delayFor(domain)
	jitter := time.Duration(t.randFloat() * jitterFraction * float64(delay))
	d.nextAllowed = now.Add(delay + jitter)

	return true
}

// Release returns a dispatch slot and feeds the request outcome into the
// circuit breaker. Success resets the failure streak and closes a half-open
// circuit. A retryable failure extends the streak and opens the circuit
// once the threshold is crossed, with the open period taken from the retry
// policy (growing on consecutive openings). Terminal failures only return
// the slot.
func (t *Throttle) Release(domain string, class model.FailureClass) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d := t.state(domain)
	if d.inFlight > 0 {
		d.inFlight--
	}

	switch {
	case class == model.ClassNone:
		d.failures = 0
		d.openCount = 0
		if d.circuit == CircuitHalfOpen {
			d.circuit = CircuitClosed
			d.probeInFlight = false
		}

	case class.Retryable():
		d.failures++
		if d.circuit == CircuitHalfOpen {
			// Failed probe: re-open with a longer period.
			t.open(d, class)
			return
		}
		if d.circuit == CircuitClosed && d.failures >= t.failThreshold {
			t.open(d, class)
		}

	default:
		// Terminal failure: no circuit effect.
	}
}

// open transitions the domain to OPEN with a backoff from the retry policy.
func (t *Throttle) open(d *domainState, class model.FailureClass) {
	d.openCount++
	d.circuit = CircuitOpen
	d.probeInFlight = false
	d.openUntil = t.now().Add(t.policy.Delay(d.openCount, class))
}

// NextAttempt returns the earliest time a request to the domain could be
// admitted: the later of the pacing gate and, for an open circuit, the end
// of the open period. Unknown domains are immediately admissible.
func (t *Throttle) NextAttempt(domain string) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.domains[domain]
	if !ok {
		return time.Time{}
	}

	next := d.nextAllowed
	if d.circuit == CircuitOpen && d.openUntil.After(next) {
		next = d.openUntil
	}
	return next
}

// State returns the domain's circuit state. Unknown domains are closed.
func (t *Throttle) State(domain string) CircuitState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.domains[domain]; ok {
		return d.circuit
	}
	return CircuitClosed
}

// OpenCount returns how many domains currently have an open circuit.
func (t *Throttle) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	open := 0
	for _, d := range t.domains {
		if d.circuit == CircuitOpen {
			open++
		}
	}
	return open
}

// InFlight returns the domain's current in-flight request count.
func (t *Throttle) InFlight(domain string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.domains[domain]; ok {
		return d.inFlight
	}
	return 0
}

// state returns the domain entry, creating it on first use.
// Callers must hold the mutex.
func (t *Throttle) state(domain string) *domainState {
	d, ok := t.domains[domain]
	if !ok {
		d = &domainState{}
		t.domains[domain] = d
	}
	return d
}

// delayFor returns the minimum inter-request interval for the domain.
// Callers must hold the mutex.
func (t *Throttle) delayFor(domain string) time.Duration {
	if d, ok := t.domainDelays[domain]; ok {
		return d
	}
	return t.minDelay
}
