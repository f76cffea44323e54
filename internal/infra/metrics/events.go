package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(providerEventsTotal) }

var providerEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_events_total",
		Help:      "Verified provider webhook events by type and outcome.",
	},
	[]string{"type", "outcome"}, // outcome: applied|duplicate|stale|ignored|unmatched|conflict|error
)

func IncProviderEvent(eventType, outcome string) {
	providerEventsTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}
