package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/keyexec-go/core/engine"
	"github.com/codewandler/keyexec-go/core/metrics"
)

// engineMetrics implements engine.Metrics using Prometheus.
type engineMetrics struct {
	submissionsTotal *prometheus.CounterVec
	pendingItems     *prometheus.GaugeVec
	dequeuedTotal    *prometheus.CounterVec
	itemDuration     *prometheus.HistogramVec
	itemsTotal       *prometheus.CounterVec
	workersActive    *prometheus.GaugeVec
	workersRetired   *prometheus.CounterVec
	keysActive       *prometheus.GaugeVec
}

// NewEngineMetrics creates a Prometheus implementation of engine.Metrics and
// registers its collectors with reg. One instance can be shared by many
// engines; series are labelled by engine name.
func NewEngineMetrics(reg prometheus.Registerer) engine.Metrics {
	m := &engineMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyexec_engine_submissions_total",
			Help: "Total number of submissions, by admission result",
		}, []string{"engine", "accepted", "reason"}),

		pendingItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyexec_engine_pending_items",
			Help: "Admitted items not yet picked up by a worker (bounded engines)",
		}, []string{"engine"}),

		dequeuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyexec_engine_dequeued_total",
			Help: "Total number of items picked up by workers",
		}, []string{"engine"}),

		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keyexec_engine_item_duration_seconds",
			Help:    "Work item execution time in seconds",
			Buckets: defaultBuckets,
		}, []string{"engine"}),

		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyexec_engine_items_total",
			Help: "Total number of executed items, by outcome",
		}, []string{"engine", "outcome"}),

		workersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyexec_engine_workers_active",
			Help: "Number of live workers",
		}, []string{"engine"}),

		workersRetired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyexec_engine_workers_retired_total",
			Help: "Total number of workers retired after being poisoned",
		}, []string{"engine"}),

		keysActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyexec_engine_keys_active",
			Help: "Number of keys with pending or in-flight work",
		}, []string{"engine"}),
	}

	reg.MustRegister(
		m.submissionsTotal,
		m.pendingItems,
		m.dequeuedTotal,
		m.itemDuration,
		m.itemsTotal,
		m.workersActive,
		m.workersRetired,
		m.keysActive,
	)

	return m
}

func (m *engineMetrics) ItemAccepted(name string) {
	m.submissionsTotal.WithLabelValues(name, strconv.FormatBool(true), "").Inc()
}

func (m *engineMetrics) ItemRefused(name, reason string) {
	m.submissionsTotal.WithLabelValues(name, strconv.FormatBool(false), reason).Inc()
}

func (m *engineMetrics) PendingItems(name string, n int) {
	m.pendingItems.WithLabelValues(name).Set(float64(n))
}

func (m *engineMetrics) ItemDequeued(name string) {
	m.dequeuedTotal.WithLabelValues(name).Inc()
}

func (m *engineMetrics) ItemDuration(name string) metrics.Timer {
	return newTimer(m.itemDuration.WithLabelValues(name))
}

func (m *engineMetrics) ItemCompleted(name, outcome string) {
	m.itemsTotal.WithLabelValues(name, outcome).Inc()
}

func (m *engineMetrics) WorkersActive(name string, n int) {
	m.workersActive.WithLabelValues(name).Set(float64(n))
}

func (m *engineMetrics) WorkerRetired(name string) {
	m.workersRetired.WithLabelValues(name).Inc()
}

func (m *engineMetrics) KeysActive(name string, n int) {
	m.keysActive.WithLabelValues(name).Set(float64(n))
}

var _ engine.Metrics = (*engineMetrics)(nil)
