package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal) }

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification dispatches by template and status (sent/failed/dropped/skipped).",
	},
	[]string{"template", "status"},
)

func IncNotification(template, status string) {
	notificationsTotal.WithLabelValues(norm(template), norm(status)).Inc()
}
