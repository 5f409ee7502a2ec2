package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreStats is a point-in-time view of a snapshot store.
type StoreStats struct {
	Backend   string
	Snapshots int64
	SizeBytes int64
}

// StatsFunc returns the current store statistics.
type StatsFunc func(ctx context.Context) (StoreStats, error)

// StoreCollector exports snapshot store statistics at scrape time.
type StoreCollector struct {
	stats   StatsFunc
	timeout time.Duration

	snapshots *prometheus.Desc
	size      *prometheus.Desc
	up        *prometheus.Desc
}

// NewStoreCollector creates a collector calling stats on every scrape.
func NewStoreCollector(stats StatsFunc) *StoreCollector {
	return &StoreCollector{
		stats:   stats,
		timeout: 5 * time.Second,
		snapshots: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "snapshots"),
			"Durable snapshots held by the store (-1 when the backend cannot count cheaply).",
			[]string{"backend"}, nil),
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "size_bytes"),
			"On-disk size of the store.",
			[]string{"backend"}, nil),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "up"),
			"Whether the last statistics read succeeded.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.snapshots
	ch <- c.size
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.stats(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.snapshots, prometheus.GaugeValue, float64(stats.Snapshots), stats.Backend)
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(stats.SizeBytes), stats.Backend)
}
