// Package session maintains authentication state for logical crawl sessions.
//
// Each session is an explicit registry entry keyed by session id: a cookie
// jar, an optional bearer token, credential material, and a state machine
//
//	UNAUTHENTICATED -> (login succeeds) -> ACTIVE
//	ACTIVE -> (expiry signal or elapsed ttl) -> EXPIRED
//	EXPIRED -> (re-login) -> ACTIVE
//
// Requests attach stored cookie/token state explicitly via Attach; there is
// no ambient global cookie state. Responses are inspected by OnResponse for
// expiry signals (an unauthorized status or a redirect landing on the login
// page), which flips the session to EXPIRED.
//
// Re-authentication is single-flight per session id: concurrent requests
// that need an expired session wait for the one in-progress login via
// golang.org/x/sync/singleflight instead of racing to trigger duplicates.
//
// Two login strategies are built in — form login (POST of form fields,
// optionally carrying hidden fields such as CSRF tokens) and API token
// login (JSON POST returning a bearer token). Sessions may also be
// bootstrapped from an exported cookies file.
package session
