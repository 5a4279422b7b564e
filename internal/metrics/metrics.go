// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pkordes/parking-ledger/internal/domain"
)

const metricPrefix = "parking_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics groups the collectors updated by the service and archive layers.
// A nil *Metrics is valid and records nothing, which keeps unit tests free of
// registry plumbing.
type Metrics struct {
	staysOpened   prometheus.Counter
	staysClosed   prometheus.Counter
	rejections    *prometheus.CounterVec
	billedCents   prometheus.Counter
	billedHours   prometheus.Histogram
	archiveWrites *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// parked is sampled on every scrape to report the current occupancy.
func New(reg prometheus.Registerer, parked func() int) *Metrics {
	m := &Metrics{
		staysOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "stays_opened_total",
			Help: "Vehicles that entered the facility",
		}),
		staysClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "stays_closed_total",
			Help: "Vehicles that left the facility and were billed",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "rejections_total",
			Help: "Rejected entries and exits by reason",
		}, []string{"operation", "reason"}),
		billedCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "billed_cents_total",
			Help: "Sum of final fares in minor currency units",
		}),
		billedHours: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "billed_hours",
			Help:    "Billed hours per closed stay",
			Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12, 24, 48},
		}),
		archiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "archive_writes_total",
			Help: "Stay archive writes by result",
		}, []string{"result"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "events_dropped_total",
			Help: "Stay events dropped because a subscriber was full",
		}, []string{"subscriber"}),
	}

	reg.MustRegister(
		m.staysOpened,
		m.staysClosed,
		m.rejections,
		m.billedCents,
		m.billedHours,
		m.archiveWrites,
		m.eventsDropped,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: metricPrefix + "vehicles_parked",
			Help: "Vehicles currently parked",
		}, func() float64 { return float64(parked()) }),
	)
	return m
}

// StayOpened records a successful entry.
func (m *Metrics) StayOpened() {
	if m == nil {
		return
	}
	m.staysOpened.Inc()
}

// StayClosed records a successful exit with its fare and billed hours.
func (m *Metrics) StayClosed(fare domain.Money, hours int64) {
	if m == nil {
		return
	}
	m.staysClosed.Inc()
	m.billedCents.Add(float64(fare))
	m.billedHours.Observe(float64(hours))
}

// Rejected records a refused entry or exit.
func (m *Metrics) Rejected(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// ArchiveWrite records the outcome of persisting a stay.
func (m *Metrics) ArchiveWrite(result string) {
	if m == nil {
		return
	}
	m.archiveWrites.WithLabelValues(result).Inc()
}

// EventDropped records an event a subscriber could not take.
func (m *Metrics) EventDropped(subscriber string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(subscriber).Inc()
}
