package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gamification_service"

// DLQ outcomes.
const (
	outcomeRequeued    = "requeued"
	outcomeRetry       = "retry_scheduled"
	outcomeQuarantined = "quarantined"
)

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events published to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Outbox events that could not be framed or written.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time to claim, publish and mark one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Outbox events parked in the dead-letter table, by topic.",
	}, []string{"topic"})

	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "Dead-letter entries handled by the manager, by outcome.",
	}, []string{"outcome", "event_type"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Dead-letter entries awaiting replay.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, dlqOutcomes, dlqBacklogGauge)
}

func recordDLQOutcome(outcome, eventType string) {
	dlqOutcomes.WithLabelValues(outcome, eventType).Inc()
}

func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) error {
	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&n); err != nil {
		return err
	}
	dlqBacklogGauge.Set(float64(n))
	return nil
}
