package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_quotes_total",
			Help: "Total number of quote requests processed",
		},
		[]string{"caller_id", "model", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricing_quote_duration_seconds",
			Help:    "Quote request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"caller_id", "model"},
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_cost_usd_total",
			Help: "Total provider cost quoted in USD",
		},
		[]string{"model"},
	)

	PriceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_price_usd_total",
			Help: "Total customer price quoted in USD",
		},
		[]string{"model"},
	)

	MarginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_margin_usd_total",
			Help: "Total margin quoted in USD",
		},
		[]string{"model"},
	)

	TariffCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_tariff_cache_hits_total",
			Help: "Total number of tariff cache hits",
		},
	)

	TariffCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_tariff_cache_misses_total",
			Help: "Total number of tariff cache misses",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"caller_id"},
	)

	SpendAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_spend_alerts_total",
			Help: "Total number of user spend alerts raised",
		},
		[]string{"level"},
	)

	LookupErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_lookup_errors_total",
			Help: "Total number of store lookup failures",
		},
		[]string{"store"},
	)
)

func RecordQuote(callerID, model, status string, durationSec float64) {
	QuotesTotal.WithLabelValues(callerID, model, status).Inc()
	QuoteDuration.WithLabelValues(callerID, model).Observe(durationSec)
}

func RecordQuoteAmounts(model string, costUSD, priceUSD, marginUSD float64) {
	CostTotal.WithLabelValues(model).Add(costUSD)
	PriceTotal.WithLabelValues(model).Add(priceUSD)
	MarginTotal.WithLabelValues(model).Add(marginUSD)
}

func RecordRateLimitHit(callerID string) {
	RateLimitHits.WithLabelValues(callerID).Inc()
}

func RecordSpendAlert(level string) {
	SpendAlerts.WithLabelValues(level).Inc()
}

func RecordLookupError(store string) {
	LookupErrors.WithLabelValues(store).Inc()
}
