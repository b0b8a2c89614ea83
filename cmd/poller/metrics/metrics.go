// Package metrics provides Prometheus instrumentation for the poller.
//
// Metrics exposed:
//   - rulesync_poller_collect_seconds: Histogram of telemetry fetch latency
//   - rulesync_poller_collect_errors_total: Counter of failed fetches
//   - rulesync_poller_window_snapshots: Gauge of snapshots held in the window
//   - rulesync_poller_active_protocols: Gauge of protocols in the last aggregate
//   - rulesync_poller_tick_seconds: Histogram of whole poll cycle duration
//   - rulesync_poller_last_success_timestamp_seconds: Unix time of the last completed tick
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CollectSeconds   prometheus.Histogram
	CollectErrors    prometheus.Counter
	WindowSnapshots  prometheus.Gauge
	ActiveProtocols  prometheus.Gauge
	TickSeconds      prometheus.Histogram
	LastSuccessEpoch prometheus.Gauge
}

// New registers the poller metrics with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CollectSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rulesync_poller_collect_seconds",
			Help:    "Time spent fetching protocol counters from the telemetry backend",
			Buckets: prometheus.DefBuckets,
		}),
		CollectErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rulesync_poller_collect_errors_total",
			Help: "Total number of failed telemetry fetches",
		}),
		WindowSnapshots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rulesync_poller_window_snapshots",
			Help: "Number of snapshots currently held in the rolling window",
		}),
		ActiveProtocols: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rulesync_poller_active_protocols",
			Help: "Number of distinct protocols in the latest aggregate",
		}),
		TickSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rulesync_poller_tick_seconds",
			Help:    "Duration of a whole poll cycle",
			Buckets: prometheus.DefBuckets,
		}),
		LastSuccessEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rulesync_poller_last_success_timestamp_seconds",
			Help: "Unix time of the last completed poll cycle",
		}),
	}
}

func (m *Metrics) ObserveCollect(seconds float64) {
	m.CollectSeconds.Observe(seconds)
}

func (m *Metrics) RecordCollectError() {
	m.CollectErrors.Inc()
}

func (m *Metrics) SetWindow(snapshots, protocols int) {
	m.WindowSnapshots.Set(float64(snapshots))
	m.ActiveProtocols.Set(float64(protocols))
}

func (m *Metrics) RecordTick(seconds float64, at time.Time) {
	m.TickSeconds.Observe(seconds)
	m.LastSuccessEpoch.Set(float64(at.Unix()))
}
