package rest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times outbound REST calls per resource and operation.
// A nil *Metrics records nothing.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pm",
			Subsystem: "rest",
			Name:      "requests_total",
			Help:      "Outbound REST requests by resource, operation and status code.",
		}, []string{"resource", "op", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pm",
			Subsystem: "rest",
			Name:      "request_duration_seconds",
			Help:      "Outbound REST request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "op"}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Latency)
	}
	return m
}

func (m *Metrics) observe(resource, op, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(resource, op, code).Inc()
	m.Latency.WithLabelValues(resource, op).Observe(d.Seconds())
}
