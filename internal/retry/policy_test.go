package retry

import (
	"testing"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// noJitter removes randomness so delays are exact.
func noJitter() float64 { return 0 }

// maxJitter returns the largest value below 1 the jitter source may produce.
func maxJitter() float64 { return 0.999999 }

// TestDelayExponentialGrowth verifies doubling from the initial delay up to
// the cap.
func TestDelayExponentialGrowth(t *testing.T) {
	t.Parallel()

	p := New(100*time.Millisecond, 8*time.Second, 3, WithRandom(noJitter))

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 100 * time.Millisecond},
		{attempt: 2, want: 200 * time.Millisecond},
		{attempt: 3, want: 400 * time.Millisecond},
		{attempt: 4, want: 800 * time.Millisecond},
		{attempt: 8, want: 8 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt, model.ClassServerError); got != tt.want {
			t.Errorf("Delay(%d, server_error) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// TestDelayNonDecreasing checks that delays never shrink as attempts grow.
func TestDelayNonDecreasing(t *testing.T) {
	t.Parallel()

	p := New(50*time.Millisecond, 5*time.Second, 10, WithRandom(noJitter))

	var prev time.Duration
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.Delay(attempt, model.ClassTransientNetwork)
		if d < prev {
			t.Fatalf("Delay(%d) = %v, less than Delay(%d) = %v", attempt, d, attempt-1, prev)
		}
		prev = d
	}
}

// TestDelayJitterBounds checks delay <= base + 25% for all attempts.
func TestDelayJitterBounds(t *testing.T) {
	t.Parallel()

	initial := 100 * time.Millisecond
	max := 2 * time.Second
	p := New(initial, max, 5, WithRandom(maxJitter))

	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt, model.ClassServerError)
		upper := max + max/4
		if d > upper {
			t.Errorf("Delay(%d) = %v exceeds max+25%% = %v", attempt, d, upper)
		}
	}
}

// TestDelayRateLimitedWidensBackoff verifies that a 429 backs off one
// doubling faster than a generic 5xx at the same attempt count.
func TestDelayRateLimitedWidensBackoff(t *testing.T) {
	t.Parallel()

	p := New(100*time.Millisecond, 8*time.Second, 3, WithRandom(noJitter))

	serverDelay := p.Delay(1, model.ClassServerError)
	rateDelay := p.Delay(1, model.ClassRateLimited)

	if rateDelay != 2*serverDelay {
		t.Errorf("rate-limited delay = %v, want double the server-error delay %v", rateDelay, serverDelay)
	}
}

// TestDelayNonRetryableClasses verifies terminal classes get no delay.
func TestDelayNonRetryableClasses(t *testing.T) {
	t.Parallel()

	p := New(100*time.Millisecond, 8*time.Second, 3, WithRandom(noJitter))

	for _, class := range []model.FailureClass{
		model.ClassClientError,
		model.ClassExcluded,
		model.ClassNone,
	} {
		if got := p.Delay(1, class); got != 0 {
			t.Errorf("Delay(1, %v) = %v, want 0", class, got)
		}
	}
}

// TestExhausted checks retry budget accounting: a task may be attempted at
// most maxRetries+1 times.
func TestExhausted(t *testing.T) {
	t.Parallel()

	p := New(DefaultInitial, DefaultMax, 2)

	tests := []struct {
		attempts int
		want     bool
	}{
		{attempts: 0, want: false},
		{attempts: 1, want: false},
		{attempts: 2, want: false},
		{attempts: 3, want: true},
		{attempts: 4, want: true},
	}

	for _, tt := range tests {
		if got := p.Exhausted(tt.attempts); got != tt.want {
			t.Errorf("Exhausted(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

// TestNewDefaults verifies fallback to defaults for invalid bounds.
func TestNewDefaults(t *testing.T) {
	t.Parallel()

	p := New(0, 0, -1, WithRandom(noJitter))

	if p.MaxRetries() != DefaultMaxRetries {
		t.Errorf("MaxRetries() = %d, want %d", p.MaxRetries(), DefaultMaxRetries)
	}
	if got := p.Delay(1, model.ClassServerError); got != DefaultInitial {
		t.Errorf("Delay(1) = %v, want %v", got, DefaultInitial)
	}
}
