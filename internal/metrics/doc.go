// Package metrics exposes Prometheus instrumentation for a crawl run.
package metrics
