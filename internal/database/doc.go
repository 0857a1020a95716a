// Package database provides SQLite-backed persistence for crawl outcomes.
//
// The outcomes table is the scheduler's sink: one row per terminal outcome,
// keyed by run id and URL so re-delivery of the same record is idempotent.
// Stored outcomes also drive resumed runs, which skip URLs that already
// reached a terminal state.
package database
