// Package scheduler runs the crawl control loop.
//
// The scheduler pulls eligible tasks from the frontier, dispatches them to a
// bounded pool of fetch workers, reinserts retryable failures with a backoff
// delay, routes fetched pages through the plugin table, and reports one
// terminal outcome per admitted URL. When no domain is dispatchable it
// sleeps until the nearest wake time instead of polling.
package scheduler
