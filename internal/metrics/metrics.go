package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamup_registrations_total",
			Help: "Registrations by resulting status (CONFIRMED, WAITLIST, existing)",
		},
		[]string{"status"},
	)

	promotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamup_waitlist_promotions_total",
			Help: "Participants promoted from the waitlist",
		},
	)

	promotionFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamup_waitlist_promotion_failures_total",
			Help: "Waitlist runs that stopped part-way",
		},
	)

	ledgerRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamup_ledger_retries_total",
			Help: "Ledger units retried after a lock or serialization conflict",
		},
		[]string{"op"},
	)

	ledgerOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamup_ledger_op_duration_seconds",
			Help:    "Ledger operation duration in seconds, retries included",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"op", "outcome"},
	)

	seriesInstancesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamup_series_instances_created_total",
			Help: "Game instances materialized from recurring series",
		},
	)

	outboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamup_outbox_messages_total",
			Help: "Outbox messages by publish result (sent, retry, dead)",
		},
		[]string{"result"},
	)

	messagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamup_messages_consumed_total",
			Help: "Broker messages handled by routing key and result",
		},
		[]string{"routing_key", "result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamup_http_requests_total",
			Help: "HTTP requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamup_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func RecordRegistration(status string) {
	registrationsTotal.WithLabelValues(status).Inc()
}

func RecordPromotions(n int) {
	if n > 0 {
		promotionsTotal.Add(float64(n))
	}
}

func RecordPromotionFailure() {
	promotionFailuresTotal.Inc()
}

func RecordLedgerRetry(op string) {
	ledgerRetriesTotal.WithLabelValues(op).Inc()
}

func RecordLedgerOp(op, outcome string, d time.Duration) {
	ledgerOpDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

func RecordInstancesCreated(n int) {
	if n > 0 {
		seriesInstancesCreated.Add(float64(n))
	}
}

func RecordOutbox(result string) {
	outboxPublishedTotal.WithLabelValues(result).Inc()
}

func RecordMessageConsumed(routingKey, result string) {
	messagesConsumedTotal.WithLabelValues(routingKey, result).Inc()
}

func RecordHTTPRequest(method, route, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
