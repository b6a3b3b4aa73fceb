package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(authOutcomesTotal, sessionTokenFailuresTotal) }

var authOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shopify_auth_outcomes_total",
		Help: "Request authentication outcomes by guard and result.",
	},
	[]string{"guard", "outcome"}, // guard="shopify", outcome="allow"|"redirect"|"reject"
)

var sessionTokenFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shopify_session_token_failures_total",
		Help: "Session token validation failures by reason.",
	},
	[]string{"reason"},
)

func IncAuthOutcome(guard, outcome string) {
	authOutcomesTotal.WithLabelValues(norm(guard), norm(outcome)).Inc()
}

func IncSessionTokenFailure(reason string) {
	sessionTokenFailuresTotal.WithLabelValues(norm(reason)).Inc()
}
