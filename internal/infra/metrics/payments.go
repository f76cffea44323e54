package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		transactionsTotal,
		revenueTotal,
		refundsTotal,
		providerCallDuration,
	)
}

var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Ledger writes by resulting status (completed/failed/refunded/disputed/pending).",
		},
		[]string{"status", "purpose"},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_minor_total",
			Help:      "Completed payment value in minor currency units, labeled by currency.",
		},
		[]string{"currency"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by result (ok/rejected/provider_error).",
		},
		[]string{"result"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Latency of payment provider calls.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"op", "result"},
	)
)

func IncTransaction(status, purpose string) {
	transactionsTotal.WithLabelValues(norm(status), norm(purpose)).Inc()
}

func AddRevenue(currency string, amount int64) {
	revenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncRefund(result string) {
	refundsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveProviderCall(op string, ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	providerCallDuration.WithLabelValues(norm(op), result).Observe(d.Seconds())
}
