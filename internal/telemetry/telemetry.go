// Package telemetry exposes local Prometheus metrics for exports and
// reminders. Nothing is transmitted anywhere: metrics are only readable
// through the /metrics endpoint of a locally running `glimm serve`.
//
// Every method is safe to call on a nil *Metrics, so components can be
// built without instrumentation.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "glimm"

// Outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	ExportsTotal       *prometheus.CounterVec
	ExportDuration     prometheus.Histogram
	ExportItems        prometheus.Gauge
	ImportsTotal       *prometheus.CounterVec
	RemindersArmed     prometheus.Gauge
	RemindersDelivered *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Backup archive builds by outcome.",
		}, []string{"status"}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Time spent building a backup archive.",
			Buckets:   prometheus.DefBuckets,
		}),
		ExportItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "export_items",
			Help:      "Memories contained in the most recent backup.",
		}),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Memories processed by backup restores by outcome.",
		}, []string{"status"}),
		RemindersArmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminders_armed",
			Help:      "Reminders currently scheduled.",
		}),
		RemindersDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_delivered_total",
			Help:      "Reminder deliveries by outcome.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.ExportsTotal,
		m.ExportDuration,
		m.ExportItems,
		m.ImportsTotal,
		m.RemindersArmed,
		m.RemindersDelivered,
	)
	return m
}

// ObserveExport records one archive build.
func (m *Metrics) ObserveExport(err error, items int, d time.Duration) {
	if m == nil {
		return
	}
	m.ExportDuration.Observe(d.Seconds())
	if err != nil {
		m.ExportsTotal.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.ExportsTotal.WithLabelValues(StatusSuccess).Inc()
	m.ExportItems.Set(float64(items))
}

// ObserveImport records the per-memory outcome counts of a restore.
func (m *Metrics) ObserveImport(imported, skipped int, err error) {
	if m == nil {
		return
	}
	m.ImportsTotal.WithLabelValues(StatusSuccess).Add(float64(imported))
	m.ImportsTotal.WithLabelValues(StatusSkipped).Add(float64(skipped))
	if err != nil {
		m.ImportsTotal.WithLabelValues(StatusFailure).Inc()
	}
}

// SetRemindersArmed records the number of pending reminders.
func (m *Metrics) SetRemindersArmed(n int) {
	if m == nil {
		return
	}
	m.RemindersArmed.Set(float64(n))
}

// ObserveDelivery records one reminder delivery attempt.
func (m *Metrics) ObserveDelivery(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.RemindersDelivered.WithLabelValues(StatusFailure).Inc()
		return
	}
	m.RemindersDelivered.WithLabelValues(StatusSuccess).Inc()
}
