// Package metrics provides Prometheus instrumentation for the syncer.
//
// Metrics exposed:
//   - rulesync_sync_cycles_total: Counter of sync cycles by terminal state
//   - rulesync_sync_cycle_duration_seconds: Histogram of cycle durations
//   - rulesync_sync_categories: Gauge of discovered/enabled/disabled categories
//   - rulesync_sync_reloads_total: Counter of reload attempts by result
//   - rulesync_sync_last_cycle_timestamp_seconds: Unix time of the last cycle
//   - rulesync_control_grpc_requests_total: Counter of control requests by method and status
//   - rulesync_control_grpc_request_duration_seconds: Histogram of control request durations
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/rulesync/pkg/rulesync"
)

type Metrics struct {
	CyclesTotal         *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	Categories          *prometheus.GaugeVec
	ReloadsTotal        *prometheus.CounterVec
	LastCycle           prometheus.Gauge
	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec

	now func() time.Time
}

// New registers the syncer metrics with reg. A nil reg uses the default
// Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesync_sync_cycles_total",
			Help: "Total number of sync cycles by terminal state",
		}, []string{"state"}),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rulesync_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles",
			Buckets: prometheus.DefBuckets,
		}),

		Categories: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rulesync_sync_categories",
			Help: "Rule categories seen by the last cycle that built an artifact",
		}, []string{"kind"}),

		ReloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesync_sync_reloads_total",
			Help: "Total number of detection engine reloads by result",
		}, []string{"result"}),

		LastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rulesync_sync_last_cycle_timestamp_seconds",
			Help: "Unix time the last sync cycle finished",
		}),

		GRPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rulesync_control_grpc_requests_total",
			Help: "Total number of control service requests by method and status",
		}, []string{"method", "status"}),

		GRPCRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rulesync_control_grpc_request_duration_seconds",
			Help:    "Duration of control service requests by method",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		now: time.Now,
	}
}

var _ rulesync.Recorder = (*Metrics)(nil)

// RecordCycle implements rulesync.Recorder.
func (m *Metrics) RecordCycle(state rulesync.State, seconds float64) {
	m.CyclesTotal.WithLabelValues(string(state)).Inc()
	m.CycleDuration.Observe(seconds)
	m.LastCycle.Set(float64(m.now().Unix()))
}

// SetCategories implements rulesync.Recorder.
func (m *Metrics) SetCategories(discovered, enabled, disabled int) {
	m.Categories.WithLabelValues("discovered").Set(float64(discovered))
	m.Categories.WithLabelValues("enabled").Set(float64(enabled))
	m.Categories.WithLabelValues("disabled").Set(float64(disabled))
}

// RecordReload implements rulesync.Recorder.
func (m *Metrics) RecordReload(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	m.ReloadsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordGRPCRequest(method, status string) {
	m.GRPCRequestsTotal.WithLabelValues(method, status).Inc()
}

func (m *Metrics) ObserveGRPCDuration(method string, seconds float64) {
	m.GRPCRequestDuration.WithLabelValues(method).Observe(seconds)
}
