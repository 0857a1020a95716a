// Package model defines the core data structures shared across the crawler.
//
// This package contains the following main types:
//   - Task: a unit of crawl work tracked by the frontier
//   - FailureClass: the outcome taxonomy used for retry decisions
//   - Outcome: the terminal record reported to the persistence sink
//   - Page: a fetched page handed to plugin handlers
//   - Summary: per-run accounting of terminal outcomes
//
// Models live in their own package so that the frontier, throttle, fetcher,
// scheduler, and report packages can share them without import cycles.
// All types are serializable to JSON for report output and database storage.
package model
