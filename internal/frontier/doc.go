// Package frontier implements the URL work queue for a crawl run.
//
// The frontier admits URLs exactly once by their normalized form, keeps a
// FIFO queue per domain, and yields the next eligible task to the scheduler.
// Rescheduled tasks re-enter their domain queue without losing their place,
// so pagination order within a domain stays stable across retries.
package frontier
