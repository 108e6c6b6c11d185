package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersRegisteredTotal,
		telegramUpdatesTotal,
		rateLimitedTotal,
	)
}

var (
	usersRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of new users registered.",
		},
	)

	telegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Incoming Telegram commands and callbacks by route.",
		},
		[]string{"route"},
	)

	// action: manual_check|promo
	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests refused by the per-user rate limiter.",
		},
		[]string{"action"},
	)
)

func IncUsersRegistered() { usersRegisteredTotal.Inc() }

func IncTelegramUpdate(route string) {
	telegramUpdatesTotal.WithLabelValues(norm(route)).Inc()
}

func IncRateLimited(action string) {
	rateLimitedTotal.WithLabelValues(norm(action)).Inc()
}
