package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/exclusion"
	"github.com/FleetingTimes/nor-crawler/internal/fetch"
	"github.com/FleetingTimes/nor-crawler/internal/frontier"
	"github.com/FleetingTimes/nor-crawler/internal/identity"
	"github.com/FleetingTimes/nor-crawler/internal/model"
	"github.com/FleetingTimes/nor-crawler/internal/retry"
	"github.com/FleetingTimes/nor-crawler/internal/throttle"
)

// fakeDoer simulates fetches without a network. Like the real fetcher it
// releases the domain throttle slot with the attempt's classification, and
// it records per-domain start times and peak concurrency for assertions.
type fakeDoer struct {
	th      *throttle.Throttle
	handler func(task model.Task) fetch.Result
	latency time.Duration

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	starts      map[string][]time.Time
	calls       map[string]int
}

func newFakeDoer(th *throttle.Throttle, handler func(model.Task) fetch.Result) *fakeDoer {
	return &fakeDoer{
		th:      th,
		handler: handler,
		starts:  make(map[string][]time.Time),
		calls:   make(map[string]int),
	}
}

func (d *fakeDoer) Do(_ context.Context, task model.Task) fetch.Result {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.starts[task.Domain] = append(d.starts[task.Domain], time.Now())
	d.calls[task.URL]++
	d.mu.Unlock()

	if d.latency > 0 {
		time.Sleep(d.latency)
	}
	res := d.handler(task)

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
	d.th.Release(task.Domain, res.Class)
	return res
}

func (d *fakeDoer) peak() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

func (d *fakeDoer) callCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[url]
}

func success(model.Task) fetch.Result {
	return fetch.Result{Class: model.ClassNone, StatusCode: 200, Page: &model.Page{}}
}

func testPolicy() *retry.Policy {
	return retry.New(20*time.Millisecond, 200*time.Millisecond, 2)
}

// TestBoundedConcurrency crawls ten domains with three worker slots and
// verifies the global in-flight bound holds while everything completes.
func TestBoundedConcurrency(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	th := throttle.New(0, 1, 5, policy)
	f := frontier.New()
	doer := newFakeDoer(th, success)
	doer.latency = 20 * time.Millisecond

	s := New(f, th, doer, policy, WithMaxConcurrency(3))

	var seeds []Seed
	for i := 0; i < 10; i++ {
		seeds = append(seeds, Seed{URL: fmt.Sprintf("https://d%d.test/", i)})
	}

	summary, err := s.Run(context.Background(), seeds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Succeeded != 10 {
		t.Errorf("Succeeded = %d, want 10", summary.Succeeded)
	}
	if got := doer.peak(); got > 3 {
		t.Errorf("peak in-flight = %d, want at most 3", got)
	}
	if summary.Total() != 10 {
		t.Errorf("Total() = %d, want 10", summary.Total())
	}
}

// TestPerDomainPacing crawls five URLs on one domain with a 50ms minimum
// delay and verifies both the total wall clock and the gaps between
// consecutive dispatches.
func TestPerDomainPacing(t *testing.T) {
	t.Parallel()

	const delay = 50 * time.Millisecond
	policy := testPolicy()
	th := throttle.New(delay, 1, 5, policy)
	f := frontier.New()
	doer := newFakeDoer(th, success)

	s := New(f, th, doer, policy, WithMaxConcurrency(4))

	var seeds []Seed
	for i := 0; i < 5; i++ {
		seeds = append(seeds, Seed{URL: fmt.Sprintf("https://one.test/p%d", i)})
	}

	start := time.Now()
	summary, err := s.Run(context.Background(), seeds)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	elapsed := time.Since(start)

	if summary.Succeeded != 5 {
		t.Fatalf("Succeeded = %d, want 5", summary.Succeeded)
	}
	// Four gaps of at least the minimum delay between five dispatches.
	if want := 4*delay - 10*time.Millisecond; elapsed < want {
		t.Errorf("elapsed = %v, want at least %v", elapsed, want)
	}

	starts := doer.starts["one.test"]
	if len(starts) != 5 {
		t.Fatalf("got %d dispatches, want 5", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < delay-10*time.Millisecond {
			t.Errorf("gap %d = %v, want at least ~%v", i, gap, delay)
		}
	}
}

// TestRetryThenSucceed fails a task twice with a server error and verifies
// the third attempt succeeds with backoff in between.
func TestRetryThenSucceed(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	th := throttle.New(0, 1, 10, policy)
	f := frontier.New()

	var attempts atomic.Int64
	doer := newFakeDoer(th, func(model.Task) fetch.Result {
		if attempts.Add(1) <= 2 {
			return fetch.Result{Class: model.ClassServerError, StatusCode: 503}
		}
		return fetch.Result{Class: model.ClassNone, StatusCode: 200, Page: &model.Page{}}
	})

	s := New(f, th, doer, policy)

	start := time.Now()
	summary, err := s.Run(context.Background(), []Seed{{URL: "https://flaky.test/"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	elapsed := time.Since(start)

	if summary.Succeeded != 1 {
		t.Fatalf("Succeeded = %d, want 1 (failed %d)", summary.Succeeded, summary.Failed)
	}
	outcome := summary.Outcomes[0]
	if outcome.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", outcome.Attempts)
	}
	// Backoff of at least initial + 2*initial between the attempts.
	if want := 60 * time.Millisecond; elapsed < want {
		t.Errorf("elapsed = %v, want at least %v of backoff", elapsed, want)
	}
}

// TestClientErrorIsTerminal verifies a 403 ends the task with no retries no
// matter the retry budget.
func TestClientErrorIsTerminal(t *testing.T) {
	t.Parallel()

	policy := retry.New(10*time.Millisecond, 100*time.Millisecond, 5)
	th := throttle.New(0, 1, 10, policy)
	f := frontier.New()
	doer := newFakeDoer(th, func(model.Task) fetch.Result {
		return fetch.Result{Class: model.ClassClientError, StatusCode: 403}
	})

	s := New(f, th, doer, policy)
	summary, err := s.Run(context.Background(), []Seed{{URL: "https://denied.test/"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", summary.Failed)
	}
	if got := doer.callCount("https://denied.test/"); got != 1 {
		t.Errorf("fetch attempts = %d, want 1", got)
	}
	if outcome := summary.Outcomes[0]; outcome.Attempts != 1 || outcome.StatusCode != 403 {
		t.Errorf("outcome = %+v, want 1 attempt with status 403", outcome)
	}
}

// TestExcludedURLNeverFetched runs the real fetcher with robots rules that
// deny the seed's path and verifies the request never reaches the server.
func TestExcludedURLNeverFetched(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	policy := testPolicy()
	th := throttle.New(0, 1, 5, policy)
	f := frontier.New()

	fetcher := fetch.New(th, identity.New(nil), nil)
	robots := func(ctx context.Context, robotsURL string) (int, []byte, error) {
		return http.StatusOK, []byte("User-agent: *\nDisallow: /private/\n"), nil
	}
	fetcher.SetExclusions(exclusion.New(robots, "norcrawl"))

	s := New(f, th, fetcher, policy)
	summary, err := s.Run(context.Background(), []Seed{{URL: srv.URL + "/private/report"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Excluded != 1 {
		t.Errorf("Excluded = %d, want 1", summary.Excluded)
	}
	if got := hits.Load(); got != 0 {
		t.Errorf("server hits = %d, want 0", got)
	}
}

// TestLinkDiscovery verifies plugin-discovered URLs are admitted, crawled,
// and deduplicated against finished work.
func TestLinkDiscovery(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	th := throttle.New(0, 1, 5, policy)
	f := frontier.New()
	doer := newFakeDoer(th, func(task model.Task) fetch.Result {
		return fetch.Result{Class: model.ClassNone, StatusCode: 200, Page: &model.Page{URL: task.URL, Depth: task.Depth}}
	})

	// Every page links to /next and back to the seed; the cycle must not
	// re-crawl finished URLs.
	plugin := Plugin{
		Name: "discover",
		Handle: func(_ context.Context, page *model.Page) ([]string, error) {
			if page.Depth >= 2 {
				return nil, nil
			}
			return []string{
				fmt.Sprintf("https://site.test/depth%d", page.Depth+1),
				"https://site.test/",
			}, nil
		},
	}

	s := New(f, th, doer, policy, WithPlugins(plugin))
	summary, err := s.Run(context.Background(), []Seed{{URL: "https://site.test/"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Seed, depth1, depth2.
	if summary.Succeeded != 3 {
		t.Errorf("Succeeded = %d, want 3", summary.Succeeded)
	}
	if got := doer.callCount("https://site.test/"); got != 1 {
		t.Errorf("seed fetched %d times, want 1", got)
	}
}

// TestShutdownAccountsForEveryURL cancels a run mid-flight and verifies
// every admitted URL lands in exactly one terminal bucket.
func TestShutdownAccountsForEveryURL(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	// A long minimum delay keeps most tasks queued when the run is cut off.
	th := throttle.New(500*time.Millisecond, 1, 5, policy)
	f := frontier.New()
	doer := newFakeDoer(th, success)

	s := New(f, th, doer, policy, WithMaxConcurrency(2))

	var seeds []Seed
	for i := 0; i < 6; i++ {
		seeds = append(seeds, Seed{URL: fmt.Sprintf("https://slow.test/p%d", i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	summary, err := s.Run(ctx, seeds)
	if err == nil {
		t.Fatal("Run returned nil error after cancellation")
	}

	if summary.Total() != 6 {
		t.Fatalf("Total() = %d, want all 6 admitted URLs accounted for", summary.Total())
	}
	if summary.TimedOut == 0 {
		t.Error("TimedOut = 0, want pending tasks surfaced as timed out")
	}
	if summary.Succeeded+summary.TimedOut != 6 {
		t.Errorf("succeeded %d + timed out %d != 6", summary.Succeeded, summary.TimedOut)
	}
}

// TestOutcomeSink verifies each terminal outcome is delivered to the sink
// exactly once with the run id stamped.
func TestOutcomeSink(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	th := throttle.New(0, 1, 5, policy)
	f := frontier.New()
	doer := newFakeDoer(th, success)

	sink := &recordingSink{}
	s := New(f, th, doer, policy, WithSink(sink), WithRunID("run-7"))

	seeds := []Seed{{URL: "https://a.test/"}, {URL: "https://b.test/"}}
	if _, err := s.Run(context.Background(), seeds); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got := sink.records()
	if len(got) != 2 {
		t.Fatalf("sink received %d outcomes, want 2", len(got))
	}
	for _, o := range got {
		if o.RunID != "run-7" {
			t.Errorf("outcome RunID = %q, want run-7", o.RunID)
		}
		if o.Class != model.ClassNone {
			t.Errorf("outcome class = %v, want success", o.Class)
		}
	}
}

type recordingSink struct {
	mu   sync.Mutex
	recs []model.Outcome
}

func (r *recordingSink) Record(_ context.Context, o model.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, o)
	return nil
}

func (r *recordingSink) records() []model.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Outcome(nil), r.recs...)
}
