package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, dbTxRetries) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Connections of the pgx pool by state.",
		},
		[]string{"state"}, // total|idle|in_use
	)

	dbTxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_tx_retries_total",
			Help: "Transactions retried after a serialization failure or deadlock.",
		},
		[]string{"sqlstate"},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func IncTxRetry(sqlState string) { dbTxRetries.WithLabelValues(norm(sqlState)).Inc() }
