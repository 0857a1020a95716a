package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/FleetingTimes/nor-crawler/internal/exclusion"
	"github.com/FleetingTimes/nor-crawler/internal/identity"
	"github.com/FleetingTimes/nor-crawler/internal/model"
	"github.com/FleetingTimes/nor-crawler/internal/session"
	"github.com/FleetingTimes/nor-crawler/internal/throttle"
)

// Default fetcher settings.
const (
	// DefaultTimeout is the per-request deadline.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize = 10 << 20 // 10 MiB
)

// Result is the classified outcome of one fetch attempt.
type Result struct {
	// Page holds the response when the attempt succeeded.
	Page *model.Page

	// Class is the attempt's classification. ClassNone means success.
	Class model.FailureClass

	// StatusCode is the HTTP status received, or 0 when no response
	// arrived.
	StatusCode int

	// Err carries the underlying error for failed attempts.
	Err error

	// RetryAfter is a minimum delay before retrying, for failures whose
	// recovery time is known (identity cool-downs). Zero when the retry
	// policy alone decides.
	RetryAfter time.Duration
}

// Fetcher performs single crawl requests. Safe for concurrent use by
// multiple scheduler workers.
type Fetcher struct {
	throttle   *throttle.Throttle
	pool       *identity.Pool
	sessions   *session.Manager
	exclusions *exclusion.Cache

	timeout time.Duration
	maxBody int64
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]*http.Client
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBodySize caps how many bytes of a response body are kept.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher. sessions may be nil when no crawl target requires
// authentication. Exclusion rules are bound separately with SetExclusions
// because the cache fetches robots.txt through this fetcher.
func New(th *throttle.Throttle, pool *identity.Pool, sessions *session.Manager, opts ...Option) *Fetcher {
	f := &Fetcher{
		throttle: th,
		pool:     pool,
		sessions: sessions,
		timeout:  DefaultTimeout,
		maxBody:  DefaultMaxBodySize,
		logger:   slog.Default(),
		clients:  make(map[string]*http.Client),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetExclusions binds the exclusion cache consulted before each request.
// Without a bound cache every URL is treated as allowed.
func (f *Fetcher) SetExclusions(c *exclusion.Cache) {
	f.exclusions = c
}

// Do performs one fetch attempt for a dispatched task. The caller must have
// acquired the task's domain throttle slot; Do releases it with the final
// classification before returning.
func (f *Fetcher) Do(ctx context.Context, task model.Task) (res Result) {
	defer func() {
		f.throttle.Release(task.Domain, res.Class)
	}()

	u, err := url.Parse(task.URL)
	if err != nil {
		return Result{Class: model.ClassClientError, Err: err}
	}

	if f.exclusions != nil && !f.exclusions.Allowed(ctx, u) {
		f.logger.Debug("URL denied by exclusion rules", "url", task.URL)
		return Result{Class: model.ClassExcluded}
	}

	id, err := f.pool.Select()
	if err != nil {
		return Result{
			Class:      model.ClassIdentityExhausted,
			Err:        err,
			RetryAfter: f.pool.Cooldown(),
		}
	}

	if task.SessionID != "" {
		if err := f.sessions.EnsureActive(ctx, task.SessionID); err != nil {
			if errors.Is(err, session.ErrLoginFailed) || errors.Is(err, session.ErrUnknownSession) {
				// Rejected credentials do not fix themselves; retrying
				// would hammer the login endpoint.
				return Result{Class: model.ClassClientError, Err: err}
			}
			return Result{Class: model.ClassTransientNetwork, Err: err}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, task.URL, nil)
	if err != nil {
		return Result{Class: model.ClassClientError, Err: err}
	}
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	if task.SessionID != "" {
		if err := f.sessions.Attach(req, task.SessionID); err != nil {
			return Result{Class: model.ClassClientError, Err: err}
		}
	}

	client, err := f.client(id)
	if err != nil {
		// Misconfigured proxy endpoint. Mark the identity down so the
		// pool rotates away from it.
		f.pool.ReportOutcome(id, false)
		return Result{Class: model.ClassTransientNetwork, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		f.pool.ReportOutcome(id, false)
		f.logger.Debug("fetch attempt failed", "url", task.URL, "error", err)
		return Result{Class: model.ClassTransientNetwork, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if task.SessionID != "" {
		f.sessions.OnResponse(task.SessionID, resp)
		if f.sessions.State(task.SessionID) == session.StateExpired {
			return Result{Class: model.ClassSessionExpired, StatusCode: resp.StatusCode}
		}
	}

	class := model.ClassifyStatus(resp.StatusCode)
	f.reportIdentity(id, class, resp.StatusCode)
	if class != model.ClassNone {
		return Result{Class: class, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return Result{Class: model.ClassTransientNetwork, StatusCode: resp.StatusCode, Err: err}
	}

	page := &model.Page{
		URL:         task.URL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
		Body:        body,
		Depth:       task.Depth,
		SessionID:   task.SessionID,
	}
	return Result{Page: page, Class: model.ClassNone, StatusCode: resp.StatusCode}
}

// reportIdentity feeds fetch classifications back into identity health.
// Blocking signals count against the identity; ordinary server errors are
// the site's problem, not the identity's.
func (f *Fetcher) reportIdentity(id identity.Identity, class model.FailureClass, status int) {
	switch {
	case class == model.ClassNone:
		f.pool.ReportOutcome(id, true)
	case class == model.ClassRateLimited:
		f.pool.ReportOutcome(id, false)
	case status == http.StatusForbidden:
		// A 403 usually means this identity is blocked, not the URL.
		f.pool.ReportOutcome(id, false)
	}
}
