package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	xpAwardedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "ledger",
		Name:      "xp_awarded_total",
		Help:      "Total XP credited to users, labeled by source type.",
	}, []string{"source_type"})

	awardReplayCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "ledger",
		Name:      "award_replays_total",
		Help:      "Award calls that found an existing event for the source key.",
	}, []string{"source_type"})

	eventsRemovedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "ledger",
		Name:      "events_removed_total",
		Help:      "XP events deleted by cascade cleanup, labeled by source type.",
	}, []string{"source_type"})

	consistencyViolationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "ledger",
		Name:      "consistency_violations_total",
		Help:      "Uniqueness invariants found broken on read, labeled by collection.",
	}, []string{"collection"})

	badgesUnlockedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamification_service",
		Subsystem: "badges",
		Name:      "unlocked_total",
		Help:      "Badges granted, labeled by badge id.",
	}, []string{"badge_id"})

	lastAwardGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gamification_service",
		Subsystem: "ledger",
		Name:      "last_award_timestamp_seconds",
		Help:      "Unix timestamp of the most recent XP event recorded.",
	})
)

func init() {
	prometheus.MustRegister(xpAwardedCounter, awardReplayCounter, eventsRemovedCounter, consistencyViolationCounter, badgesUnlockedCounter, lastAwardGauge)
}

// RecordXpAwarded counts a newly recorded XP event.
func RecordXpAwarded(sourceType string, xp int, ts time.Time) {
	xpAwardedCounter.WithLabelValues(sourceType).Add(float64(xp))
	if !ts.IsZero() {
		lastAwardGauge.Set(float64(ts.Unix()))
	}
}

// RecordAwardReplay counts an idempotent no-op award.
func RecordAwardReplay(sourceType string) {
	awardReplayCounter.WithLabelValues(sourceType).Inc()
}

// RecordEventsRemoved counts events deleted by cascade cleanup.
func RecordEventsRemoved(sourceType string, n int) {
	if n <= 0 {
		return
	}
	eventsRemovedCounter.WithLabelValues(sourceType).Add(float64(n))
}

// RecordConsistencyViolation counts a broken uniqueness invariant.
func RecordConsistencyViolation(collection string) {
	consistencyViolationCounter.WithLabelValues(collection).Inc()
}

// RecordBadgeUnlocked counts a granted badge.
func RecordBadgeUnlocked(badgeID string) {
	badgesUnlockedCounter.WithLabelValues(badgeID).Inc()
}
