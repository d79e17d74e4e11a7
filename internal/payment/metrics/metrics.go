package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the payment module: processing outcomes,
// refund outcomes, orchestration latency, and status cache effectiveness.
type Metrics struct {
	PaymentsProcessed *prometheus.CounterVec
	RefundsProcessed  *prometheus.CounterVec
	ProcessDuration   prometheus.Histogram
	RefundDuration    prometheus.Histogram
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	ExpiredTotal      prometheus.Counter
}

// New creates a new Metrics instance with all payment module metrics registered.
func New() *Metrics {
	return &Metrics{
		PaymentsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payflow_payments_processed_total",
			Help: "Total payments processed by final status",
		}, []string{"status"}),
		RefundsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payflow_refunds_processed_total",
			Help: "Total refunds processed by final status",
		}, []string{"status"}),
		ProcessDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payflow_payment_process_duration_seconds",
			Help:    "Duration of the authorize+capture orchestration",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RefundDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payflow_refund_duration_seconds",
			Help:    "Duration of refund processing",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_status_cache_hits_total",
			Help: "Status lookups served from cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_status_cache_misses_total",
			Help: "Status lookups that fell through to the store",
		}),
		ExpiredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payflow_payments_expired_total",
			Help: "Transactions moved to expired by the expiry worker",
		}),
	}
}

// ObservePayment records one completed payment orchestration.
func (m *Metrics) ObservePayment(status string, start time.Time) {
	m.PaymentsProcessed.WithLabelValues(status).Inc()
	m.ProcessDuration.Observe(time.Since(start).Seconds())
}

// ObserveRefund records one completed refund.
func (m *Metrics) ObserveRefund(status string, start time.Time) {
	m.RefundsProcessed.WithLabelValues(status).Inc()
	m.RefundDuration.Observe(time.Since(start).Seconds())
}
