package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateUnauthenticated means no login has happened yet.
	StateUnauthenticated State = iota

	// StateActive means the session's credentials are believed valid.
	StateActive

	// StateExpired means an expiry signal was seen; the session must
	// re-authenticate before further use.
	StateExpired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Sentinel errors returned by the manager.
var (
	// ErrUnknownSession is returned for session ids never registered.
	ErrUnknownSession = errors.New("session: unknown session id")

	// ErrLoginFailed is returned when a login attempt does not produce
	// an authenticated session.
	ErrLoginFailed = errors.New("session: login failed")
)

// LoginType selects the login strategy for a session.
type LoginType string

const (
	// LoginForm posts credentials as an HTML form.
	LoginForm LoginType = "form"

	// LoginToken posts credentials as JSON and expects a bearer token.
	LoginToken LoginType = "token"
)

// Credentials holds the material needed to (re-)authenticate a session.
type Credentials struct {
	// Type selects the login strategy. Defaults to LoginForm.
	Type LoginType

	// LoginURL is the endpoint that accepts the credentials.
	LoginURL string

	// Username and Password are the primary credentials. For form login
	// they are sent as "username" and "password" unless Payload overrides
	// those fields.
	Username string
	Password string

	// Payload carries extra fields: hidden form inputs such as CSRF
	// tokens for form login, or additional JSON keys for token login.
	Payload map[string]string

	// Headers are extra request headers sent with the login request.
	Headers map[string]string

	// TTL is the expiry estimate for an authenticated session. Zero
	// means no time-based expiry; only response signals expire the
	// session.
	TTL time.Duration

	// CookiesFile optionally bootstraps the session from an exported
	// cookies file (JSON or Netscape format) instead of logging in.
	CookiesFile string
}

// Session is one registry entry. Fields are guarded by the manager's mutex.
type Session struct {
	id    string
	creds Credentials
	state State
	jar   http.CookieJar
	token string

	// authenticatedAt is when the last successful login completed.
	authenticatedAt time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Manager is the session registry. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	flight   singleflight.Group

	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for login requests. The client's
// transport and timeout are reused; its cookie jar is replaced per session.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		m.client = client
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an empty session registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		client:   http.DefaultClient,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m
}

// Register creates a session for the given id. If the credentials name a
// cookies file, the jar is seeded from it and the session starts ACTIVE;
// otherwise it starts UNAUTHENTICATED and logs in on first use.
func (m *Manager) Register(id string, creds Credentials) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if creds.Type == "" {
		creds.Type = LoginForm
	}

	s := &Session{
		id:    id,
		creds: creds,
		state: StateUnauthenticated,
		jar:   jar,
	}

	if creds.CookiesFile != "" {
		if err := loadCookiesFile(jar, creds.CookiesFile); err != nil {
			return fmt.Errorf("failed to load cookies file for session %q: %w", id, err)
		}
		s.state = StateActive
		s.authenticatedAt = m.now()
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return nil
}

// EnsureActive makes sure the session can serve requests, logging in if it
// is unauthenticated, expired, or past its TTL. Concurrent callers for the
// same id share one login; they all receive its result.
func (m *Manager) EnsureActive(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownSession
	}
	if s.state == StateActive && !m.ttlElapsed(s) {
		m.mu.Unlock()
		return nil
	}
	if s.state == StateActive {
		// TTL elapsed counts as an expiry signal.
		s.state = StateExpired
	}
	m.mu.Unlock()

	_, err, _ := m.flight.Do(id, func() (any, error) {
		// Re-check: the login that was in flight while we queued may
		// already have fixed the session.
		m.mu.Lock()
		if s.state == StateActive && !m.ttlElapsed(s) {
			m.mu.Unlock()
			return nil, nil
		}
		m.mu.Unlock()

		return nil, m.login(ctx, s)
	})
	return err
}

// Attach injects the session's stored cookie and token state into the
// request. The session must exist; callers are expected to have called
// EnsureActive first.
func (m *Manager) Attach(req *http.Request, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownSession
	}

	for _, cookie := range s.jar.Cookies(req.URL) {
		req.AddCookie(cookie)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return nil
}

// OnResponse inspects a response served to the session for expiry signals
// and stores any Set-Cookie updates. An unauthorized status or a redirect
// that landed on the login page flips the session to EXPIRED.
func (m *Manager) OnResponse(id string, resp *http.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || resp == nil {
		return
	}

	if reqURL := responseURL(resp); reqURL != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			s.jar.SetCookies(reqURL, cookies)
		}
	}

	if s.state != StateActive {
		return
	}

	if m.isExpirySignal(s, resp) {
		m.logger.Info("session expired",
			"session_id", id,
			"status", resp.StatusCode,
		)
		s.state = StateExpired
	}
}

// State returns the session's current state, or StateUnauthenticated for
// unknown ids.
func (m *Manager) State(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s.state
	}
	return StateUnauthenticated
}

// login runs the session's login strategy and transitions the state.
func (m *Manager) login(ctx context.Context, s *Session) error {
	m.logger.Info("authenticating session",
		"session_id", s.id,
		"login_type", string(s.creds.Type),
	)

	var err error
	switch s.creds.Type {
	case LoginToken:
		err = m.tokenLogin(ctx, s)
	default:
		err = m.formLogin(ctx, s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		s.state = StateExpired
		return err
	}
	s.state = StateActive
	s.authenticatedAt = m.now()
	return nil
}

// ttlElapsed reports whether the session's expiry estimate has passed.
// Callers must hold the mutex.
func (m *Manager) ttlElapsed(s *Session) bool {
	if s.creds.TTL <= 0 {
		return false
	}
	return m.now().Sub(s.authenticatedAt) > s.creds.TTL
}

// isExpirySignal applies the expiry heuristics to a response.
// Callers must hold the mutex.
func (m *Manager) isExpirySignal(s *Session, resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}

	// A redirect chain that landed on the login page means the site no
	// longer recognizes the session.
	if s.creds.LoginURL == "" {
		return false
	}
	final := responseURL(resp)
	login, err := url.Parse(s.creds.LoginURL)
	if err != nil || final == nil {
		return false
	}
	return strings.EqualFold(final.Host, login.Host) && final.Path == login.Path && final.Path != ""
}

// responseURL returns the URL the response was served from, following the
// client's redirect bookkeeping.
func responseURL(resp *http.Response) *url.URL {
	if resp.Request != nil {
		return resp.Request.URL
	}
	return nil
}

// sessionClient returns an HTTP client that carries the session's jar,
// reusing the manager client's transport and timeout.
func (m *Manager) sessionClient(s *Session) *http.Client {
	return &http.Client{
		Transport: m.client.Transport,
		Timeout:   m.client.Timeout,
		Jar:       s.jar,
	}
}
