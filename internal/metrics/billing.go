package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(billingEventsTotal) }

var billingEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shopify_billing_events_total",
		Help: "Billing actions by kind and result.",
	},
	[]string{"action", "result"}, // action="activate"|"cancel"|"plan_url"|"usage_charge"
)

func IncBilling(action, result string) {
	billingEventsTotal.WithLabelValues(norm(action), norm(result)).Inc()
}
