package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's prometheus collectors.
type Metrics struct {
	Received        *prometheus.CounterVec
	Appends         *prometheus.CounterVec
	Dropped         prometheus.Counter
	Subscribers     prometheus.Gauge
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "gateway",
			Name:      "webhooks_received_total",
			Help:      "Webhook deliveries received, by source",
		}, []string{"source"}),
		Appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "gateway",
			Name:      "store_appends_total",
			Help:      "Store append attempts, by result (inserted, duplicate, error)",
		}, []string{"result"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "gateway",
			Name:      "broadcast_dropped_total",
			Help:      "Events not delivered to a monitor subscriber whose buffer was full",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hookwatch",
			Subsystem: "gateway",
			Name:      "monitor_subscribers",
			Help:      "Open monitor streams",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hookwatch",
			Subsystem: "gateway",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by route and status code",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hookwatch",
			Subsystem: "gateway",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	if reg != nil {
		reg.MustRegister(m.Received, m.Appends, m.Dropped, m.Subscribers, m.Requests, m.RequestDuration)
	}
	return m
}
