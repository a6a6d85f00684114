package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	created prometheus.Counter
	touched *prometheus.CounterVec
	deleted prometheus.Counter
	swept   prometheus.Counter
}

// NewMetrics builds the session collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		created: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhub",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions issued at login or registration.",
		}),
		touched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionhub",
			Subsystem: "session",
			Name:      "touched_total",
			Help:      "Touch outcomes by verdict.",
		}, []string{"outcome"}),
		deleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhub",
			Subsystem: "session",
			Name:      "deleted_total",
			Help:      "Sessions deleted by logout.",
		}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionhub",
			Subsystem: "session",
			Name:      "swept_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
	}
}

func (m *Metrics) incCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) incTouched(outcome string) {
	if m != nil {
		m.touched.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) addDeleted(n int) {
	if m != nil && n > 0 {
		m.deleted.Add(float64(n))
	}
}

func (m *Metrics) addSwept(n int) {
	if m != nil && n > 0 {
		m.swept.Add(float64(n))
	}
}
