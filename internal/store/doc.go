// Package store provides shared-state backends for the crawler.
//
// The Redis-backed seen set lets several crawler processes split one
// frontier without re-fetching each other's URLs.
package store
