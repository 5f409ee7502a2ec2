// Package metric provides Prometheus metrics for the autosave service.
//
//   - prometheus.go: registry, metric families and the /metrics handler
//   - collector.go: scrape-time collector for snapshot store statistics
//
// Metrics include tick outcomes and latency, purge counts, restore
// results, preview notification results and HTTP request latency.
package metric
