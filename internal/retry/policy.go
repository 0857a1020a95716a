package retry

import (
	"math/rand/v2"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// Default policy bounds. These mirror conservative crawling practice:
// half a second before the first retry, never more than eight seconds
// between attempts, and three retries before giving up.
const (
	// DefaultInitial is the delay before the first retry.
	DefaultInitial = 500 * time.Millisecond

	// DefaultMax caps the exponential growth of the delay.
	DefaultMax = 8 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	// A task is therefore attempted at most DefaultMaxRetries+1 times.
	DefaultMaxRetries = 3

	// jitterFraction is the upper bound of the random jitter, expressed
	// as a fraction of the computed delay.
	jitterFraction = 0.25
)

// Policy maps (attempt count, failure class) to a wait duration.
// The zero value is not usable; construct with New.
type Policy struct {
	// initial is the base delay for the first retry.
	initial time.Duration

	// max caps the delay before jitter is applied.
	max time.Duration

	// maxRetries is the retry budget per task.
	maxRetries int

	// randFloat returns a value in [0, 1). Injectable for tests.
	randFloat func() float64
}

// Option configures a Policy.
type Option func(*Policy)

// WithRandom replaces the jitter source. The function must return values
// in [0, 1). Used by tests to make delays deterministic.
func WithRandom(f func() float64) Option {
	return func(p *Policy) {
		p.randFloat = f
	}
}

// New creates a Policy with the given bounds. Non-positive initial or max
// fall back to the defaults; a negative maxRetries falls back to
// DefaultMaxRetries.
func New(initial, max time.Duration, maxRetries int, opts ...Option) *Policy {
	if initial <= 0 {
		initial = DefaultInitial
	}
	if max <= 0 {
		max = DefaultMax
	}
	if max < initial {
		max = initial
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}

	p := &Policy{
		initial:    initial,
		max:        max,
		maxRetries: maxRetries,
		randFloat:  rand.Float64,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// MaxRetries returns the retry budget per task.
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// Exhausted reports whether a task that has made the given number of
// attempts has used up its retry budget.
func (p *Policy) Exhausted(attempts int) bool {
	return attempts > p.maxRetries
}

// Delay returns the wait before retrying after the given attempt
// (1 = first attempt failed). Non-retryable classes return 0.
//
// The base delay is min(initial * 2^(attempt-1), max). Rate-limited
// failures use one extra doubling. Uniform jitter in [0, base*0.25) is
// added so that concurrently failing tasks do not retry in lockstep.
func (p *Policy) Delay(attempt int, class model.FailureClass) time.Duration {
	if !class.Retryable() {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	exponent := attempt - 1
	if class == model.ClassRateLimited {
		exponent = attempt
	}

	base := p.initial
	for i := 0; i < exponent; i++ {
		base *= 2
		if base >= p.max || base < 0 {
			base = p.max
			break
		}
	}
	if base > p.max {
		base = p.max
	}

	jitter := time.Duration(p.randFloat() * jitterFraction * float64(base))
	return base + jitter
}
