// Package outbox delivers ledger, badge and challenge events written by the
// postgres repositories to Kafka, and replays the ones that failed.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"example.com/gamification/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Record is one claimed outbox row.
type Record struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
}

// schemaFor lists the registered schema of every event type the service emits.
// xp.awarded and xp.revoked share a topic and so a subject.
var schemaFor = map[string]string{
	events.TypeXpAwarded:          xpLedgerSchema,
	events.TypeXpRevoked:          xpLedgerSchema,
	events.TypeBadgeUnlocked:      badgeUnlockedSchema,
	events.TypeChallengeCompleted: challengeCompletedSchema,
}

// Dispatcher polls unpublished outbox rows and publishes them. Rows that
// cannot be framed or written are parked in outbox_dlq and still marked
// published, so one bad row never blocks the rows behind it.
type Dispatcher struct {
	pool      *pgxpool.Pool
	writer    messageWriter
	registry  schemaRegistrar
	dlq       *DLQWriter
	interval  time.Duration
	batchSize int
	logger    *zap.Logger

	mu        sync.Mutex
	schemaIDs map[string]int
}

// NewDispatcher builds a Dispatcher. A nil logger discards output.
func NewDispatcher(pool *pgxpool.Pool, writer messageWriter, registry schemaRegistrar, interval time.Duration, batchSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		pool:      pool,
		writer:    writer,
		registry:  registry,
		dlq:       NewDLQWriter(pool),
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		schemaIDs: make(map[string]int),
	}
}

// Run drains the outbox every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// drain handles one claimed batch.
func (d *Dispatcher) drain(ctx context.Context) error {
	started := time.Now()
	records, err := d.claim(ctx)
	if err != nil || len(records) == 0 {
		return err
	}
	defer func() { batchDuration.Observe(time.Since(started).Seconds()) }()

	byTopic := make(map[string][]kafka.Message)
	sources := make(map[string][]Record)
	for _, rec := range records {
		msg, err := d.frame(ctx, rec)
		if err != nil {
			if err := d.park(ctx, []Record{rec}, err); err != nil {
				return err
			}
			continue
		}
		byTopic[rec.Topic] = append(byTopic[rec.Topic], msg)
		sources[rec.Topic] = append(sources[rec.Topic], rec)
	}

	for topic, msgs := range byTopic {
		if err := d.writer.WriteMessages(ctx, topic, msgs...); err != nil {
			d.logger.Warn("kafka write failed", zap.String("topic", topic), zap.Int("events", len(msgs)), zap.Error(err))
			if err := d.park(ctx, sources[topic], err); err != nil {
				return err
			}
			continue
		}
		deliveredCounter.Add(float64(len(msgs)))
		d.logger.Debug("outbox events published", zap.String("topic", topic), zap.Int("events", len(msgs)))
	}

	return d.markPublished(ctx, records)
}

// claim locks up to batchSize unpublished rows, stamps claimed_at and
// returns them in insertion order.
func (d *Dispatcher) claim(ctx context.Context) (records []Record, err error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || len(records) == 0 {
			_ = tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload
           FROM outbox
          WHERE published_at IS NULL
          ORDER BY event_id
          LIMIT $1
          FOR UPDATE SKIP LOCKED`, d.batchSize)
	if err != nil {
		return nil, err
	}
	records, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.EventID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.Topic, &r.SchemaSubject, &r.PartitionKey, &r.Payload)
		return r, err
	})
	if err != nil || len(records) == 0 {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(records)); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// frame resolves the schema id and wraps the payload in the registry wire format.
func (d *Dispatcher) frame(ctx context.Context, rec Record) (kafka.Message, error) {
	schema, ok := schemaFor[rec.EventType]
	if !ok {
		return kafka.Message{}, fmt.Errorf("no schema metadata for event_type=%s", rec.EventType)
	}
	id, err := d.schemaID(ctx, rec.SchemaSubject, schema)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("schema %s: %w", rec.SchemaSubject, err)
	}
	return kafka.Message{
		Key:   []byte(rec.PartitionKey),
		Value: encodeWireFormat(id, rec.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(rec.EventType)},
			{Key: "schema_subject", Value: []byte(rec.SchemaSubject)},
		},
	}, nil
}

func (d *Dispatcher) schemaID(ctx context.Context, subject, schema string) (int, error) {
	d.mu.Lock()
	id, ok := d.schemaIDs[subject]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := d.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.schemaIDs[subject] = id
	d.mu.Unlock()
	return id, nil
}

func (d *Dispatcher) park(ctx context.Context, records []Record, cause error) error {
	failedCounter.Add(float64(len(records)))
	for _, rec := range records {
		if err := d.dlq.Write(ctx, rec, fmt.Sprintf("%s (topic=%s)", cause, rec.Topic)); err != nil {
			return fmt.Errorf("park event %d: %w", rec.EventID, err)
		}
		dlqCounter.WithLabelValues(rec.Topic).Inc()
	}
	return nil
}

func (d *Dispatcher) markPublished(ctx context.Context, records []Record) error {
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(records))
	return err
}

func eventIDs(records []Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.EventID
	}
	return ids
}

// encodeWireFormat prefixes payload with the magic byte and the big-endian
// schema id.
func encodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	return append(frame, payload...)
}
