package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/gamification/internal/events"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	AggregateType string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeXpAwarded: {
		Topic:         "gamification_xp_events",
		SchemaSubject: "gamification_xp_events-value",
		AggregateType: "xp_event",
	},
	events.TypeXpRevoked: {
		Topic:         "gamification_xp_events",
		SchemaSubject: "gamification_xp_events-value",
		AggregateType: "xp_event",
	},
	events.TypeBadgeUnlocked: {
		Topic:         "gamification_badge_events",
		SchemaSubject: "gamification_badge_events-value",
		AggregateType: "user_badge",
	},
	events.TypeChallengeCompleted: {
		Topic:         "gamification_challenge_events",
		SchemaSubject: "gamification_challenge_events-value",
		AggregateType: "user_challenge",
	},
}

// insertOutbox records an event in the same transaction as the row it describes.
// Events are partitioned by user so a consumer sees one user's history in order.
func insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID, userID string, payload any) error {
	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}
