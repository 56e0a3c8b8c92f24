// Package metrics exposes Prometheus metrics for graph executions: per-channel
// execution counters, cache hits, failures, and duration histograms. Handler
// returns the scrape endpoint for embedding applications.
package metrics
