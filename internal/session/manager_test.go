package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestFormLoginLifecycle walks a session from UNAUTHENTICATED to ACTIVE via
// form login and verifies cookie attachment.
func TestFormLoginLifecycle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "s3cret" {
			http.Error(w, "bad credentials", http.StatusForbidden)
			return
		}
		if r.PostForm.Get("csrf") != "tok123" {
			http.Error(w, "missing csrf", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager()
	err := m.Register("main", Credentials{
		Type:     LoginForm,
		LoginURL: srv.URL + "/login",
		Username: "alice",
		Password: "s3cret",
		Payload:  map[string]string{"csrf": "tok123"},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if got := m.State("main"); got != StateUnauthenticated {
		t.Fatalf("State before login = %v, want unauthenticated", got)
	}

	if err := m.EnsureActive(context.Background(), "main"); err != nil {
		t.Fatalf("EnsureActive failed: %v", err)
	}
	if got := m.State("main"); got != StateActive {
		t.Fatalf("State after login = %v, want active", got)
	}

	// The login cookie must be attached to subsequent requests.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/data", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if err := m.Attach(req, "main"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	cookie, err := req.Cookie("sid")
	if err != nil || cookie.Value != "abc" {
		t.Errorf("attached cookie sid = %v (err %v), want abc", cookie, err)
	}
}

// TestTokenLogin verifies the API-token strategy stores and attaches a
// bearer token.
func TestTokenLogin(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "jwt-xyz"}`))
	}))
	defer srv.Close()

	m := NewManager()
	if err := m.Register("api", Credentials{
		Type:     LoginToken,
		LoginURL: srv.URL + "/auth",
		Username: "svc",
		Password: "pw",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := m.EnsureActive(context.Background(), "api"); err != nil {
		t.Fatalf("EnsureActive failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/data", nil)
	if err := m.Attach(req, "api"); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer jwt-xyz" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer jwt-xyz")
	}
}

// TestExpiryOn401 verifies an unauthorized response flips ACTIVE to EXPIRED
// and that EnsureActive then re-authenticates.
func TestExpiryOn401(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager()
	if err := m.Register("s", Credentials{LoginURL: srv.URL + "/login"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.EnsureActive(context.Background(), "s"); err != nil {
		t.Fatalf("initial EnsureActive failed: %v", err)
	}

	// Simulate a protected response rejecting the session.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/protected", nil)
	m.OnResponse("s", &http.Response{StatusCode: http.StatusUnauthorized, Request: req})

	if got := m.State("s"); got != StateExpired {
		t.Fatalf("State after 401 = %v, want expired", got)
	}

	if err := m.EnsureActive(context.Background(), "s"); err != nil {
		t.Fatalf("re-auth EnsureActive failed: %v", err)
	}
	if got := m.State("s"); got != StateActive {
		t.Errorf("State after re-auth = %v, want active", got)
	}
	if got := logins.Load(); got != 2 {
		t.Errorf("login count = %d, want 2", got)
	}
}

// TestSingleFlightReauth verifies concurrent EnsureActive callers share one
// login instead of racing.
func TestSingleFlightReauth(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		<-release // hold the login open so callers pile up
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewManager()
	if err := m.Register("shared", Credentials{LoginURL: srv.URL + "/login"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureActive(context.Background(), "shared")
		}(i)
	}

	// Give the callers time to queue on the in-flight login.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: EnsureActive failed: %v", i, err)
		}
	}
	if got := logins.Load(); got != 1 {
		t.Errorf("login count = %d, want 1 (single-flight)", got)
	}
}

// TestTTLElapsedTriggersReauth verifies time-based expiry.
func TestTTLElapsedTriggersReauth(t *testing.T) {
	t.Parallel()

	var logins atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(WithClock(func() time.Time { return now }))
	if err := m.Register("ttl", Credentials{
		LoginURL: srv.URL + "/login",
		TTL:      time.Hour,
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := m.EnsureActive(context.Background(), "ttl"); err != nil {
		t.Fatalf("EnsureActive failed: %v", err)
	}
	if err := m.EnsureActive(context.Background(), "ttl"); err != nil {
		t.Fatalf("second EnsureActive failed: %v", err)
	}
	if got := logins.Load(); got != 1 {
		t.Fatalf("login count before TTL = %d, want 1", got)
	}

	now = now.Add(2 * time.Hour)
	if err := m.EnsureActive(context.Background(), "ttl"); err != nil {
		t.Fatalf("EnsureActive after TTL failed: %v", err)
	}
	if got := logins.Load(); got != 2 {
		t.Errorf("login count after TTL = %d, want 2", got)
	}
}

// TestUnknownSession verifies sentinel errors for unregistered ids.
func TestUnknownSession(t *testing.T) {
	t.Parallel()

	m := NewManager()

	if err := m.EnsureActive(context.Background(), "nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("EnsureActive = %v, want ErrUnknownSession", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	if err := m.Attach(req, "nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Attach = %v, want ErrUnknownSession", err)
	}
}

// TestCookiesFileBootstrap verifies sessions seeded from exported cookies
// start ACTIVE without a login.
func TestCookiesFileBootstrap(t *testing.T) {
	t.Parallel()

	t.Run("json export", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "cookies.json")
		content := `[{"name":"sid","value":"fromfile","domain":"example.com","path":"/"}]`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write cookies file: %v", err)
		}

		m := NewManager()
		if err := m.Register("file", Credentials{CookiesFile: path}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if got := m.State("file"); got != StateActive {
			t.Fatalf("State = %v, want active", got)
		}

		req, _ := http.NewRequest(http.MethodGet, "https://example.com/page", nil)
		if err := m.Attach(req, "file"); err != nil {
			t.Fatalf("Attach failed: %v", err)
		}
		if cookie, err := req.Cookie("sid"); err != nil || cookie.Value != "fromfile" {
			t.Errorf("cookie sid = %v (err %v), want fromfile", cookie, err)
		}
	})

	t.Run("netscape export", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "cookies.txt")
		content := "# Netscape HTTP Cookie File\n" +
			"example.org\tTRUE\t/\tFALSE\t0\tauth\tnetscape-value\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write cookies file: %v", err)
		}

		m := NewManager()
		if err := m.Register("txt", Credentials{CookiesFile: path}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		req, _ := http.NewRequest(http.MethodGet, "https://example.org/", nil)
		if err := m.Attach(req, "txt"); err != nil {
			t.Fatalf("Attach failed: %v", err)
		}
		if cookie, err := req.Cookie("auth"); err != nil || cookie.Value != "netscape-value" {
			t.Errorf("cookie auth = %v (err %v), want netscape-value", cookie, err)
		}
	})
}
