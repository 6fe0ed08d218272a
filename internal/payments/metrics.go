package payments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts webhook ingress outcomes.
type Metrics struct {
	decisions *prometheus.CounterVec
}

// NewMetrics registers webhook counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "medbook",
			Subsystem: "payments_webhook",
			Name:      "decisions_total",
			Help:      "Webhook deliveries by ingress decision.",
		}, []string{"decision"}),
	}
}

func (m *Metrics) observe(decision IngressDecision) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(decision)).Inc()
}
