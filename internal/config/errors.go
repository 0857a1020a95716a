package config

import "errors"

// Validation errors returned by Config.Validate. Package-level sentinels
// let callers use errors.Is while keeping readable messages.
var (
	// ErrNoSeed is returned when no seed URL is configured.
	ErrNoSeed = errors.New("no seed specified: provide a URL or use a config file")

	// ErrInvalidConcurrency is returned when a concurrency bound is not
	// positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidDelay is returned when a per-domain delay is negative.
	ErrInvalidDelay = errors.New("invalid per-domain delay: must be non-negative")

	// ErrInvalidTimeout is returned when the request timeout is not
	// positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetry is returned when the retry schedule is malformed:
	// non-positive initial delay, max below initial, or a negative retry
	// budget.
	ErrInvalidRetry = errors.New("invalid retry schedule")

	// ErrInvalidMaxBodySize is returned when the body cap is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidRate is returned when the global rate is negative.
	ErrInvalidRate = errors.New("invalid global rate: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidSession is returned when a session entry has an empty id
	// or neither a login URL nor a cookies file.
	ErrInvalidSession = errors.New("invalid session: needs an id and a login_url or cookies_file")
)
