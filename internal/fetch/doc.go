// Package fetch executes single crawl requests end to end.
//
// For each task the fetcher checks the exclusion rules, selects an identity
// from the pool, attaches session state, performs the HTTP request through
// the identity's proxy, and classifies the result. The domain throttle slot
// reserved by the scheduler is released here with the final classification,
// so circuit-breaker accounting always sees exactly one release per
// dispatch.
package fetch
