package banking

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbound banking API calls.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers the banking client metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payflow_banking_request_duration_seconds",
			Help:    "Duration of banking API requests by operation",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payflow_banking_requests_total",
			Help: "Total banking API requests by operation and outcome",
		}, []string{"operation", "outcome"}),
	}
}

// ObserveRequest records one banking API call.
func (m *Metrics) ObserveRequest(operation, outcome string, start time.Time) {
	m.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
}
