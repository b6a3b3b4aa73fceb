package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, webhooksReceivedTotal) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shopify_jobs_processed_total",
		Help: "Background jobs processed, labeled by queue, job and status.",
	},
	[]string{"queue", "job", "status"}, // status='completed'|'failed'|'dropped'
)

var webhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "shopify_webhooks_received_total",
		Help: "Verified webhooks received by type.",
	},
	[]string{"type", "result"},
)

func IncJob(queue, job, status string) {
	jobsProcessedTotal.WithLabelValues(norm(queue), norm(job), norm(status)).Inc()
}

func IncWebhook(kind, result string) {
	webhooksReceivedTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
