// Package links extracts crawlable URLs and form metadata from HTML pages.
//
// The extractor feeds the scheduler's link-discovery plugin: anchors become
// admission candidates for the frontier, and form metadata (including hidden
// fields) lets login flows pick up CSRF tokens from fetched pages.
package links
