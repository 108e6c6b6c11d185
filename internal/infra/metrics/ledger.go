package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(promoActivationsTotal, balanceDebitsTotal, referralBonusesTotal)
}

var (
	// outcome: success|invalid|exhausted|already_used|error
	promoActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_activations_total",
			Help: "Promo code activation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// outcome: debited|insufficient|not_found
	balanceDebitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_debits_total",
			Help: "Single-generation debits by outcome.",
		},
		[]string{"outcome"},
	)

	referralBonusesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_bonuses_total",
			Help: "Referral bonuses granted to inviting users.",
		},
	)
)

func IncPromoActivation(outcome string) {
	promoActivationsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncBalanceDebit(outcome string) {
	balanceDebitsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncReferralBonus() { referralBonusesTotal.Inc() }
