package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	originHistory = "history"
	originPush    = "push"

	reasonTransportError = "transport_error"
	reasonDeadline       = "deadline"
)

// Metrics holds the monitor's prometheus collectors.
type Metrics struct {
	Deliveries *prometheus.CounterVec
	NewEvents  *prometheus.CounterVec
	Discarded  prometheus.Counter
	Fallbacks  *prometheus.CounterVec
	Polls      *prometheus.CounterVec
	State      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests and embedded
// sessions want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "monitor",
			Name:      "deliveries_total",
			Help:      "Events delivered to the cache, by origin",
		}, []string{"origin"}),
		NewEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "monitor",
			Name:      "new_events_total",
			Help:      "Events handed to the presenter as new rows, by origin",
		}, []string{"origin"}),
		Discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "monitor",
			Name:      "discarded_messages_total",
			Help:      "Push messages dropped because they did not decode as an event",
		}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "monitor",
			Name:      "fallbacks_total",
			Help:      "Switches from push to polling, by reason",
		}, []string{"reason"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "monitor",
			Name:      "history_fetches_total",
			Help:      "History fetches after the initial load, by result",
		}, []string{"result"}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hookwatch",
			Subsystem: "monitor",
			Name:      "state",
			Help:      "Connection state (0 initial, 1 connecting, 2 live, 3 polling)",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Deliveries, m.NewEvents, m.Discarded, m.Fallbacks, m.Polls, m.State)
	}
	return m
}
