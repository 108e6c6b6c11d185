package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		PaymentWebhookRequests,
		PaymentWebhookDuration,
		PaymentPollDuration,
		PaymentDMTotal,
	)
}

var (
	// Count of webhook calls grouped by result and bounded reason.
	// result: ok|reject|error
	// reason: missing_params|bad_payment_id|bad_signature|amount_mismatch|not_found|internal|none
	PaymentWebhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_requests_total",
			Help: "Count of gateway result callbacks by result and reason.",
		},
		[]string{"result", "reason"},
	)

	PaymentWebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_webhook_duration_seconds",
			Help:    "Duration of the gateway result callback handler in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)

	PaymentPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_poll_duration_seconds",
			Help:    "Duration of one background poll over pending payments.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Telegram DMs about credited payments.
	// status: sent|error
	PaymentDMTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_dm_total",
			Help: "Telegram DMs about payment status by delivery status.",
		},
		[]string{"status"},
	)
)
