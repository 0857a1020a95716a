// Package identity manages the pool of outbound request identities.
//
// An identity is the combination of a user-agent string and an optional
// proxy endpoint. The pool tracks a health score per identity: failures
// decay the score toward zero, successes recover it toward a ceiling. An
// identity whose score drops below the exclusion threshold is skipped by
// selection for a cool-down period and then given a single probe
// opportunity, mirroring the circuit-breaker pattern used for domains.
//
// Selection is round-robin among healthy identities so that request
// signatures rotate evenly. When every identity is unhealthy, the pool
// falls back to the least-recently-failed identity whose cool-down has
// elapsed; if none has, selection fails with ErrNoHealthyIdentity and the
// scheduler delays the task instead of burning a request on a bad identity.
//
// Zero-proxy operation is supported: an identity with an empty proxy
// endpoint makes direct connections with its user agent.
package identity
