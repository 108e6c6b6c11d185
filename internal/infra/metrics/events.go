package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(eventsPublishedTotal)
}

// status: ok|error
var eventsPublishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Domain events handed to the broker by type and status.",
	},
	[]string{"type", "status"},
)

func IncEventPublished(eventType, status string) {
	eventsPublishedTotal.WithLabelValues(norm(eventType), norm(status)).Inc()
}
