package consumer

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeApplied     = "applied"
	outcomeFailed      = "failed"
	outcomeUndecodable = "undecodable"
)

var (
	recordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "consumer",
		Name:      "records_total",
		Help:      "Activity records read from Kafka, by outcome.",
	}, []string{"topic", "event_type", "outcome"})

	lastAppliedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gamification_service",
		Subsystem: "consumer",
		Name:      "last_applied_timestamp_seconds",
		Help:      "Record timestamp of the latest applied activity event per topic.",
	}, []string{"topic"})

	skippedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "consumer",
		Name:      "events_skipped_total",
		Help:      "Activity events acknowledged without touching the ledger.",
	}, []string{"event_type", "reason"})
)

func init() {
	prometheus.MustRegister(recordsCounter, lastAppliedGauge, skippedCounter)
}

func recordOutcome(topic, eventType, outcome string) {
	recordsCounter.WithLabelValues(topic, eventType, outcome).Inc()
}

func recordLastApplied(msg Message) {
	if !msg.Timestamp.IsZero() {
		lastAppliedGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordSkipped(msg Message, reason string) {
	skippedCounter.WithLabelValues(msg.EventType, reason).Inc()
}
