// Package log provides sanitized structured logging built on slog.
//
// A crawler handles credentials routinely: login passwords, session
// cookies, bearer tokens, and proxy URLs that embed userinfo. The
// SecureHandler masks those values before they reach the underlying
// handler, so log output stays safe to share even in verbose mode.
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Info("session refreshed",
//	    "cookie", "session=abc123", // masked in output
//	    "url", "https://example.com/login",
//	)
package log
