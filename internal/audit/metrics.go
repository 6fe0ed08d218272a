package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts audit trail losses. A nil *Metrics records nothing.
type Metrics struct {
	written       prometheus.Counter
	dropped       prometheus.Counter
	flushFailures prometheus.Counter
}

// NewMetrics registers the audit counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		written: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "medbook",
			Subsystem: "audit",
			Name:      "events_written_total",
			Help:      "Audit events persisted.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "medbook",
			Subsystem: "audit",
			Name:      "events_dropped_total",
			Help:      "Audit events discarded because the buffer was full.",
		}),
		flushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "medbook",
			Subsystem: "audit",
			Name:      "flush_failures_total",
			Help:      "Audit batches that could not be written.",
		}),
	}
}

func (m *Metrics) eventsWritten(n int) {
	if m != nil {
		m.written.Add(float64(n))
	}
}

func (m *Metrics) eventDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}

func (m *Metrics) flushFailed() {
	if m != nil {
		m.flushFailures.Inc()
	}
}
