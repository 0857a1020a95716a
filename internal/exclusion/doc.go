// Package exclusion caches per-domain crawling-permission rules (robots.txt).
//
// Rules are fetched on first lookup for a domain, parsed with
// github.com/temoto/robotstxt, and cached with a time-to-live. Concurrent
// first lookups for the same domain share a single fetch via singleflight;
// lookups for unrelated domains never block each other.
//
// When the rules cannot be fetched, a configured default policy (allow or
// deny) applies and the failure is cached only for a short cool-down, so
// the next lookup after the cool-down retries the fetch instead of pinning
// the default forever.
//
// The fetch itself is performed through an injected FetchFunc so that it
// travels the same throttled, identity-rotating fetcher path as ordinary
// requests — with policy checking disabled for the robots request itself.
package exclusion
