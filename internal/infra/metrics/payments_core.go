package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		creditedGenerationsTotal,
		reconcileTotal,
		invariantViolationsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment status transitions (pending/success/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Minor units received through credited payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	creditedGenerationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_credited_generations_total",
			Help: "Generations credited to users from payments.",
		},
	)

	// trigger: webhook|poll|manual
	// result: credited|failed|pending|settled|gateway_error|error
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_total",
			Help: "Reconciliation runs by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	// kind: backward_transition|double_credit|late_confirmation
	invariantViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invariant_violations_total",
			Help: "Detected and refused ledger invariant violations.",
		},
		[]string{"kind"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func AddCreditedGenerations(n int64) {
	creditedGenerationsTotal.Add(float64(n))
}

func IncReconcile(trigger, result string) {
	reconcileTotal.WithLabelValues(norm(trigger), norm(result)).Inc()
}

func IncInvariantViolation(kind string) {
	invariantViolationsTotal.WithLabelValues(norm(kind)).Inc()
}
