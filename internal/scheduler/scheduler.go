package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/FleetingTimes/nor-crawler/internal/fetch"
	"github.com/FleetingTimes/nor-crawler/internal/frontier"
	"github.com/FleetingTimes/nor-crawler/internal/metrics"
	"github.com/FleetingTimes/nor-crawler/internal/model"
	"github.com/FleetingTimes/nor-crawler/internal/retry"
	"github.com/FleetingTimes/nor-crawler/internal/throttle"
)

// DefaultMaxConcurrency bounds the worker pool when no limit is configured.
const DefaultMaxConcurrency = 8

// Doer performs one fetch attempt. Satisfied by *fetch.Fetcher.
type Doer interface {
	Do(ctx context.Context, task model.Task) fetch.Result
}

// Plugin is one entry in the page-handling routing table. The scheduler
// calls the first plugin whose Match accepts the page; the handler returns
// URLs to admit into the frontier.
type Plugin struct {
	// Name identifies the plugin in logs.
	Name string

	// Match reports whether this plugin handles the page. A nil Match
	// accepts every page.
	Match func(page *model.Page) bool

	// Handle processes the page and returns discovered URLs.
	Handle func(ctx context.Context, page *model.Page) ([]string, error)
}

// Sink receives one terminal outcome per admitted URL. Outcomes may be
// re-delivered across runs, so implementations must be idempotent.
type Sink interface {
	Record(ctx context.Context, o model.Outcome) error
}

// Seed is one starting URL, optionally bound to an authenticated session.
type Seed struct {
	URL       string
	SessionID string
}

// attempt carries a finished fetch from a worker back to the control loop.
type attempt struct {
	task    model.Task
	result  fetch.Result
	elapsed time.Duration
}

// Scheduler drives a crawl run.
type Scheduler struct {
	frontier *frontier.Frontier
	throttle *throttle.Throttle
	fetcher  Doer
	policy   *retry.Policy

	maxConcurrency int
	plugins        []Plugin
	sink           Sink
	metrics        *metrics.Metrics
	limiter        *rate.Limiter
	logger         *slog.Logger
	runID          string
	completed      []string
	now            func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrency bounds the number of simultaneously dispatched fetches.
func WithMaxConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithPlugins sets the page-handling routing table, in match order.
func WithPlugins(plugins ...Plugin) Option {
	return func(s *Scheduler) {
		s.plugins = plugins
	}
}

// WithSink sets the outcome sink.
func WithSink(sink Sink) Option {
	return func(s *Scheduler) {
		s.sink = sink
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithGlobalRate caps the overall request rate across all domains.
func WithGlobalRate(rps float64, burst int) Option {
	return func(s *Scheduler) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithRunID overrides the generated run identifier. Used when resuming.
func WithRunID(id string) Option {
	return func(s *Scheduler) {
		if id != "" {
			s.runID = id
		}
	}
}

// WithCompleted marks URLs as already finished, so a resumed run skips them
// during seed and link admission. URLs must be in normalized form.
func WithCompleted(urls []string) Option {
	return func(s *Scheduler) {
		s.completed = urls
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// New creates a Scheduler over the given frontier, throttle, and fetcher.
func New(f *frontier.Frontier, th *throttle.Throttle, fetcher Doer, policy *retry.Policy, opts ...Option) *Scheduler {
	s := &Scheduler{
		frontier:       f,
		throttle:       th,
		fetcher:        fetcher,
		policy:         policy,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         slog.Default(),
		runID:          uuid.NewString(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID returns the identifier stamped on this run's outcomes.
func (s *Scheduler) RunID() string {
	return s.runID
}

// Run admits the seeds and crawls until every admitted URL has a terminal
// outcome or ctx is cancelled. On cancellation, in-flight fetches are
// drained and still-pending tasks are reported as timed out, so the summary
// accounts for every admitted URL exactly once.
func (s *Scheduler) Run(ctx context.Context, seeds []Seed) (*model.Summary, error) {
	summary := &model.Summary{RunID: s.runID, StartedAt: s.now()}
	done := make(map[string]struct{}, len(s.completed))
	for _, u := range s.completed {
		done[u] = struct{}{}
	}

	for _, seed := range seeds {
		if normalized, _, err := frontier.Normalize(seed.URL); err == nil {
			if _, finished := done[normalized]; finished {
				s.logger.Debug("seed already completed, skipped", "url", seed.URL)
				continue
			}
		}
		ok, err := s.frontier.Admit(ctx, seed.URL, 0, seed.SessionID)
		if err != nil {
			s.logger.Warn("failed to admit seed", "url", seed.URL, "error", err)
			continue
		}
		if !ok {
			s.logger.Debug("seed not admitted", "url", seed.URL)
		}
	}

	// Buffered so a finishing worker never blocks on a control loop that
	// has already moved on to shutdown.
	results := make(chan attempt, s.maxConcurrency)
	var workers errgroup.Group
	dispatched := 0

	for s.frontier.Outstanding() > 0 && ctx.Err() == nil {
		now := s.now()
		var wake time.Time
		if dispatched < s.maxConcurrency {
			task, w, ok := s.frontier.Next(now, s.throttle.TryAcquire, s.throttle.NextAttempt)
			if ok {
				dispatched++
				if s.metrics != nil {
					s.metrics.InFlight.Inc()
				}
				workers.Go(func() error {
					s.work(ctx, task, results)
					return nil
				})
				continue
			}
			wake = w
		}

		if dispatched == 0 && wake.IsZero() {
			// Nothing queued and nothing in flight.
			break
		}

		// Sleep until a worker finishes or the nearest domain opens.
		var timer *time.Timer
		var timeout <-chan time.Time
		if !wake.IsZero() && dispatched < s.maxConcurrency {
			d := wake.Sub(now)
			if d < time.Millisecond {
				d = time.Millisecond
			}
			timer = time.NewTimer(d)
			timeout = timer.C
		}
		select {
		case a := <-results:
			dispatched--
			s.handle(ctx, a, summary, done)
		case <-timeout:
		case <-ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}
	}

	// Drain in-flight fetches. Their outcomes still count; retryable
	// failures re-enter the frontier and are timed out below.
	for dispatched > 0 {
		a := <-results
		dispatched--
		s.handle(ctx, a, summary, done)
	}
	_ = workers.Wait() //nolint:errcheck // workers never return errors

	// Anything still queued never got to run.
	for _, task := range s.frontier.Drain() {
		s.finish(ctx, task, fetch.Result{Class: model.ClassTimeout}, summary, done, false)
	}

	summary.FinishedAt = s.now()
	s.logger.Info("crawl run finished",
		"run_id", s.runID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"excluded", summary.Excluded,
		"timed_out", summary.TimedOut,
		"elapsed", summary.Elapsed(),
	)
	return summary, ctx.Err()
}

// work performs one dispatched fetch on a worker goroutine.
func (s *Scheduler) work(ctx context.Context, task model.Task, results chan<- attempt) {
	if s.limiter != nil {
		// A cancelled wait falls through to the fetch, which fails fast
		// and releases the throttle slot.
		_ = s.limiter.Wait(ctx) //nolint:errcheck
	}
	start := time.Now()
	res := s.fetcher.Do(ctx, task)
	results <- attempt{task: task, result: res, elapsed: time.Since(start)}
}

// handle routes one finished attempt: success to the plugins, retryable
// failures back into the frontier, everything else to a terminal outcome.
func (s *Scheduler) handle(ctx context.Context, a attempt, summary *model.Summary, done map[string]struct{}) {
	task, res := a.task, a.result
	if s.metrics != nil {
		s.metrics.InFlight.Dec()
		s.metrics.ObserveFetch(res.Class, a.elapsed.Seconds())
		s.metrics.QueueDepth.Set(float64(s.frontier.Pending()))
		s.metrics.OpenCircuits.Set(float64(s.throttle.OpenCount()))
	}

	switch {
	case res.Class == model.ClassNone:
		s.dispatchPlugins(ctx, task, res.Page, done)
		s.finish(ctx, task, res, summary, done, true)

	case res.Class == model.ClassSessionExpired:
		// Re-authentication happens on the next dispatch; the attempt
		// does not count against the task's retry budget.
		s.logger.Info("session expired, task requeued", "url", task.URL, "session", task.SessionID)
		s.frontier.Requeue(task, s.now())

	case res.Class == model.ClassIdentityExhausted:
		if s.policy.Exhausted(task.Attempt + 1) {
			s.finish(ctx, task, res, summary, done, true)
			return
		}
		s.logger.Warn("no healthy identity, task delayed",
			"url", task.URL, "retry_after", res.RetryAfter)
		s.frontier.Reschedule(task, s.now().Add(res.RetryAfter))
		if s.metrics != nil {
			s.metrics.RetriesTotal.Inc()
		}

	case res.Class.Retryable():
		next := task.Attempt + 1
		if s.policy.Exhausted(next) {
			s.logger.Debug("retry budget exhausted", "url", task.URL, "class", res.Class.String())
			s.finish(ctx, task, res, summary, done, true)
			return
		}
		delay := s.policy.Delay(next, res.Class)
		s.logger.Debug("task rescheduled",
			"url", task.URL, "class", res.Class.String(), "attempt", next, "delay", delay)
		s.frontier.Reschedule(task, s.now().Add(delay))
		if s.metrics != nil {
			s.metrics.RetriesTotal.Inc()
		}

	default:
		// Terminal failure: client error or exclusion.
		s.finish(ctx, task, res, summary, done, true)
	}
}

// finish records a task's terminal outcome. attempted marks outcomes whose
// task actually ran at least once this call.
func (s *Scheduler) finish(ctx context.Context, task model.Task, res fetch.Result, summary *model.Summary, done map[string]struct{}, attempted bool) {
	attempts := task.Attempt
	if attempted {
		attempts++
	}
	outcome := model.Outcome{
		RunID:      s.runID,
		URL:        task.URL,
		Domain:     task.Domain,
		StatusCode: res.StatusCode,
		Class:      res.Class,
		Attempts:   attempts,
		FinishedAt: s.now(),
	}
	summary.Record(outcome)
	done[task.URL] = struct{}{}

	// Recording must survive run cancellation or shutdown-time outcomes
	// would be lost.
	ctx = context.WithoutCancel(ctx)
	if s.sink != nil {
		if err := s.sink.Record(ctx, outcome); err != nil {
			s.logger.Warn("failed to record outcome", "url", task.URL, "error", err)
		}
	}
	if err := s.frontier.Complete(ctx, task); err != nil {
		s.logger.Warn("failed to clear seen entry", "url", task.URL, "error", err)
	}
}

// dispatchPlugins routes a fetched page to the first matching plugin and
// admits the URLs it discovers.
func (s *Scheduler) dispatchPlugins(ctx context.Context, task model.Task, page *model.Page, done map[string]struct{}) {
	if page == nil || ctx.Err() != nil {
		return
	}
	for i := range s.plugins {
		p := &s.plugins[i]
		if p.Match != nil && !p.Match(page) {
			continue
		}
		found, err := p.Handle(ctx, page)
		if err != nil {
			s.logger.Warn("plugin failed", "plugin", p.Name, "url", page.URL, "error", err)
			return
		}
		for _, raw := range found {
			normalized, _, err := frontier.Normalize(raw)
			if err != nil {
				continue
			}
			// The frontier forgets completed URLs, so guard here
			// against link cycles re-crawling finished work.
			if _, finished := done[normalized]; finished {
				continue
			}
			if _, err := s.frontier.Admit(ctx, raw, task.Depth+1, task.SessionID); err != nil {
				s.logger.Debug("failed to admit discovered URL", "url", raw, "error", err)
			}
		}
		return
	}
}
