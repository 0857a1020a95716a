// Package throttle gates outbound requests per domain.
//
// Each domain gets two coupled controls:
//
//   - a pacing gate enforcing a minimum interval between request starts,
//     advanced with a small random jitter so that domains sharing a schedule
//     do not synchronize, plus an in-flight counter bounding per-domain
//     concurrency
//   - a circuit breaker that opens after a configured number of consecutive
//     retryable failures, waits out a backoff period computed by the retry
//     policy, and then admits exactly one probe request (half-open) before
//     either closing on success or re-opening on failure
//
// Terminal failures (client errors, exclusion denials) never move the
// circuit: they say nothing about the domain's availability.
//
// Domain state is created lazily on first use and lives for the process
// lifetime. All methods are safe for concurrent use.
package throttle
