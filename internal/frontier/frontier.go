package frontier

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/model"
)

// Frontier is the crawl work queue. URLs are admitted at most once, queued
// per domain in admission order, and yielded to the scheduler when both the
// task and its domain gate are ready.
type Frontier struct {
	mu       sync.Mutex
	seen     SeenStore
	queues   map[string][]model.Task
	domains  []string // scan order, rotated for fairness across domains
	next     int
	allowed  []string
	maxDepth int
	maxPages int
	admitted map[string]int
	live     int
	logger   *slog.Logger
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithSeen replaces the default in-memory seen set.
func WithSeen(s SeenStore) Option {
	return func(f *Frontier) {
		f.seen = s
	}
}

// WithAllowedDomains restricts admission to the given domains and their
// subdomains. An empty list admits any domain.
func WithAllowedDomains(domains []string) Option {
	return func(f *Frontier) {
		f.allowed = f.allowed[:0]
		for _, d := range domains {
			f.allowed = append(f.allowed, strings.ToLower(d))
		}
	}
}

// WithMaxDepth rejects admission beyond the given link depth. Zero means
// unlimited.
func WithMaxDepth(depth int) Option {
	return func(f *Frontier) {
		f.maxDepth = depth
	}
}

// WithMaxPagesPerDomain caps how many URLs a single domain may admit over
// the run. Zero means unlimited.
func WithMaxPagesPerDomain(n int) Option {
	return func(f *Frontier) {
		f.maxPages = n
	}
}

// WithLogger sets the logger used for admission decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Frontier) {
		f.logger = logger
	}
}

// New creates an empty Frontier.
func New(opts ...Option) *Frontier {
	f := &Frontier{
		seen:     NewMemorySeen(),
		queues:   make(map[string][]model.Task),
		admitted: make(map[string]int),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Admit normalizes rawURL and enqueues a new task for it. It returns false
// without error when the URL was already seen, its domain is not
// allow-listed, or a depth or per-domain page ceiling rejects it.
func (f *Frontier) Admit(ctx context.Context, rawURL string, depth int, sessionID string) (bool, error) {
	normalized, domain, err := Normalize(rawURL)
	if err != nil {
		return false, err
	}

	if f.maxDepth > 0 && depth > f.maxDepth {
		return false, nil
	}
	if !f.domainAllowed(domain) {
		f.logger.Debug("rejected URL outside allowed domains", "url", normalized, "domain", domain)
		return false, nil
	}

	f.mu.Lock()
	if f.maxPages > 0 && f.admitted[domain] >= f.maxPages {
		f.mu.Unlock()
		f.logger.Debug("rejected URL over per-domain page limit", "domain", domain, "limit", f.maxPages)
		return false, nil
	}
	f.mu.Unlock()

	added, err := f.seen.Add(ctx, normalized)
	if err != nil {
		return false, err
	}
	if !added {
		return false, nil
	}

	task := model.Task{
		URL:       normalized,
		Domain:    domain,
		Depth:     depth,
		SessionID: sessionID,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queues[domain]; !ok {
		f.domains = append(f.domains, domain)
	}
	f.queues[domain] = append(f.queues[domain], task)
	f.admitted[domain]++
	f.live++
	return true, nil
}

// Next yields the next dispatchable task. acquire is consulted once per
// candidate domain and must reserve the domain slot when it returns true.
// When nothing is dispatchable, Next returns the earliest time any queued
// task could become so, computed from task eligibility and the gateNext hint
// per domain; a zero wake time means the queue is empty.
func (f *Frontier) Next(now time.Time, acquire func(domain string) bool, gateNext func(domain string) time.Time) (model.Task, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var wake time.Time
	n := len(f.domains)
	for i := 0; i < n; i++ {
		idx := (f.next + i) % n
		domain := f.domains[idx]
		queue := f.queues[domain]
		if len(queue) == 0 {
			continue
		}

		// Dispatch in admission order among the currently eligible.
		pick := -1
		earliest := queue[0].NotBefore
		for j, task := range queue {
			if task.Eligible(now) {
				pick = j
				break
			}
			if task.NotBefore.Before(earliest) {
				earliest = task.NotBefore
			}
		}

		if pick >= 0 && acquire(domain) {
			task := queue[pick]
			f.queues[domain] = append(queue[:pick], queue[pick+1:]...)
			f.next = (idx + 1) % n
			return task, time.Time{}, true
		}

		candidate := earliest
		if pick >= 0 {
			candidate = now
		}
		if g := gateNext(domain); g.After(candidate) {
			candidate = g
		}
		if wake.IsZero() || candidate.Before(wake) {
			wake = candidate
		}
	}
	return model.Task{}, wake, false
}

// Reschedule returns a dispatched task to the front of its domain queue with
// an advanced attempt count and eligibility time.
func (f *Frontier) Reschedule(task model.Task, notBefore time.Time) {
	task.Attempt++
	f.Requeue(task, notBefore)
}

// Requeue returns a dispatched task to the front of its domain queue without
// touching its attempt count. Used when the retry is caused by crawler-side
// state, such as an expired session, rather than the fetch itself.
func (f *Frontier) Requeue(task model.Task, notBefore time.Time) {
	task.NotBefore = notBefore

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queues[task.Domain]; !ok {
		f.domains = append(f.domains, task.Domain)
	}
	f.queues[task.Domain] = append([]model.Task{task}, f.queues[task.Domain]...)
}

// Complete removes a dispatched task permanently and forgets its URL in the
// seen set, so dedup only ever constrains live tasks.
func (f *Frontier) Complete(ctx context.Context, task model.Task) error {
	f.mu.Lock()
	f.live--
	f.mu.Unlock()
	return f.seen.Remove(ctx, task.URL)
}

// Drain removes and returns every queued task. Used during shutdown to
// report tasks that never ran. In-flight tasks are not affected.
func (f *Frontier) Drain() []model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	var drained []model.Task
	for domain, queue := range f.queues {
		drained = append(drained, queue...)
		f.live -= len(queue)
		f.queues[domain] = nil
	}
	return drained
}

// Pending reports how many tasks are queued and not in flight.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := 0
	for _, queue := range f.queues {
		pending += len(queue)
	}
	return pending
}

// Outstanding reports how many admitted tasks have not yet completed,
// including tasks currently in flight.
func (f *Frontier) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *Frontier) domainAllowed(domain string) bool {
	if len(f.allowed) == 0 {
		return true
	}
	for _, a := range f.allowed {
		if domain == a || strings.HasSuffix(domain, "."+a) {
			return true
		}
	}
	return false
}
