// Package retry computes backoff delays for failed fetch attempts.
//
// The policy is a pure mapping from (attempt count, failure class) to a wait
// duration: exponential growth from a configured initial delay, capped at a
// configured maximum, plus uniform random jitter of up to 25% of the delay.
// Rate-limited responses (HTTP 429) widen one doubling faster than generic
// server errors, because a 429 is an explicit signal that the current pace
// is already too fast.
//
// Non-retryable classes (client errors, exclusion denials) return no delay;
// callers must check FailureClass.Retryable before consulting the policy.
package retry
