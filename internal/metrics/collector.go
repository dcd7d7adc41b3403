package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the orchestrator metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	CyclesTotal        prometheus.Counter
	CycleDuration      prometheus.Histogram
	LastCycleTimestamp prometheus.Gauge
	LastCycleFailed    prometheus.Gauge
	NodeBackupsTotal   *prometheus.CounterVec
	NodeBackupDuration *prometheus.HistogramVec
	NextRunTimestamp   prometheus.Gauge
}

// NewCollector creates the collectors and registers them on a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		CyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pvebackup_cycles_total",
				Help: "Total number of backup cycles run",
			},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pvebackup_cycle_duration_seconds",
				Help:    "Backup cycle duration in seconds",
				Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
			},
		),

		LastCycleTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pvebackup_last_cycle_timestamp_seconds",
				Help: "Unix time the last backup cycle finished",
			},
		),

		LastCycleFailed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pvebackup_last_cycle_failed_nodes",
				Help: "Number of nodes that failed in the last backup cycle",
			},
		),

		NodeBackupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pvebackup_node_backups_total",
				Help: "Total number of node backups by node and result",
			},
			[]string{"node", "result"},
		),

		NodeBackupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pvebackup_node_backup_duration_seconds",
				Help:    "Node backup duration in seconds",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"node"},
		),

		NextRunTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pvebackup_next_run_timestamp_seconds",
				Help: "Unix time of the next scheduled backup cycle",
			},
		),
	}

	c.registry.MustRegister(
		c.CyclesTotal,
		c.CycleDuration,
		c.LastCycleTimestamp,
		c.LastCycleFailed,
		c.NodeBackupsTotal,
		c.NodeBackupDuration,
		c.NextRunTimestamp,
	)

	return c
}

// ObserveNode records one node backup. result is "success" or a failure cause.
func (c *Collector) ObserveNode(node, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.NodeBackupsTotal.WithLabelValues(node, result).Inc()
	c.NodeBackupDuration.WithLabelValues(node).Observe(duration.Seconds())
}

// ObserveCycle records a finished cycle.
func (c *Collector) ObserveCycle(finishedAt time.Time, duration time.Duration, failed int) {
	if c == nil {
		return
	}
	c.CyclesTotal.Inc()
	c.CycleDuration.Observe(duration.Seconds())
	c.LastCycleTimestamp.Set(float64(finishedAt.Unix()))
	c.LastCycleFailed.Set(float64(failed))
}

// SetNextRun publishes the next due time.
func (c *Collector) SetNextRun(next time.Time) {
	if c == nil || next.IsZero() {
		return
	}
	c.NextRunTimestamp.Set(float64(next.Unix()))
}

// Handler returns the Prometheus HTTP handler for this collector.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
