package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		membershipTransitionsTotal,
		membershipsExpiredTotal,
		autoRenewalsTotal,
	)
}

var (
	membershipTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Membership status transitions applied, by from/to status.",
		},
		[]string{"from", "to"},
	)

	membershipsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_total",
			Help:      "Memberships moved to expired by the sweep or on read.",
		},
	)

	autoRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_renewals_total",
			Help:      "Auto-renewal attempts by result.",
		},
		[]string{"result"},
	)
)

// IncMembershipTransition uses from="none" for newly created grants.
func IncMembershipTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	membershipTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func AddMembershipsExpired(n int) {
	membershipsExpiredTotal.Add(float64(n))
}

func IncAutoRenewal(result string) {
	autoRenewalsTotal.WithLabelValues(norm(result)).Inc()
}
