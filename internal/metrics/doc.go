// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Fetch outcomes (ok, empty, error) and latency
//   - Points merged per series and the primary cursor
//   - Skipped ticks and chart feed drops
//
// Fetch latency is also kept in a t-digest so a run summary can report
// quantiles without scraping.
package metrics
