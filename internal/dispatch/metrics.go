package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the dispatcher's prometheus collectors.
type Metrics struct {
	Updates    *prometheus.CounterVec
	Retries    prometheus.Counter
	QueueDepth prometheus.Gauge
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskorder_dispatch_updates_total",
				Help: "Position updates by final outcome",
			},
			[]string{"result"},
		),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskorder_dispatch_retries_total",
			Help: "Position update attempts that were retried",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskorder_dispatch_queue_depth",
			Help: "Tasks with an undelivered position update",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Updates, m.Retries, m.QueueDepth)
	}
	return m
}

func (m *Metrics) observe(kind EventKind) {
	if m == nil {
		return
	}
	switch kind {
	case EventRetrying:
		m.Retries.Inc()
	case EventSucceeded, EventStale, EventFailed:
		m.Updates.WithLabelValues(string(kind)).Inc()
	case EventResynced, EventResyncFailed:
	}
}

func (m *Metrics) depth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
