//go:build integration

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/events"
	"example.com/gamification/internal/persistence/postgres"
	"example.com/gamification/internal/testsupport"
)

func TestDispatcherPublishesLedgerEvents(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	userID := uuid.NewString()
	awardXp(t, ctx, pool, userID, "w-1", 35)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5, nil)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.drain(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "gamification_xp_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	msg := producer.writes[0].messages[0]
	require.Equal(t, userID, string(msg.Key))
	require.Equal(t, []byte{0, 0, 0, 0, 42}, msg.Value[:5])
	require.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte(events.TypeXpAwarded)})

	var payload events.XpAwarded
	require.NoError(t, json.Unmarshal(msg.Value[5:], &payload))
	require.Equal(t, "w-1", payload.SourceID)
	require.Equal(t, 35, payload.XP)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)
	require.Equal(t, 1, countRows(t, ctx, pool, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`))
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	awardXp(t, ctx, pool, uuid.NewString(), "w-1", 20)

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5, nil)

	beforeFailed := testutil.ToFloat64(failedCounter)
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("gamification_xp_events"))

	require.NoError(t, dispatcher.drain(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("gamification_xp_events")), 0.0001)
	require.Equal(t, 1, countRows(t, ctx, pool, `SELECT COUNT(*) FROM outbox_dlq WHERE event_type = 'xp.awarded'`))
	require.Equal(t, 1, countRows(t, ctx, pool, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`))
}

func TestDispatcherCachesSchemaIDsAcrossBatch(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	userID := uuid.NewString()
	awardXp(t, ctx, pool, userID, "w-1", 20)
	awardXp(t, ctx, pool, userID, "w-2", 25)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5, nil)

	require.NoError(t, dispatcher.drain(ctx))

	require.Len(t, producer.writes, 1)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
	require.Equal(t, "gamification_xp_events-value", registry.calls[0].subject)
}

func TestDispatcherUnknownSchemaMovesEventsToDLQ(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	var eventID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ('xp_event', 'e-1', 'xp.unknown', 'gamification_xp_events', 'gamification_xp_events-value', 'u-1', '{}')
         RETURNING event_id`,
	).Scan(&eventID))

	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5, nil)

	require.NoError(t, dispatcher.drain(ctx))

	require.Empty(t, producer.writes, "unknown schema should skip kafka writes")
	require.Empty(t, registry.calls, "schema registry should not be invoked when metadata missing")

	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT reason FROM outbox_dlq WHERE event_id = $1`, eventID).Scan(&reason))
	require.Contains(t, reason, "no schema metadata for event_type=xp.unknown")
}

func TestDLQManagerRequeuesAndQuarantines(t *testing.T) {
	ctx := context.Background()
	pool, _ := testsupport.StartPostgres(ctx, t)

	awardXp(t, ctx, pool, uuid.NewString(), "w-1", 20)
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("broker down")}, &stubRegistry{id: 3}, 10*time.Millisecond, 5, nil)
	require.NoError(t, failing.drain(ctx))
	require.Equal(t, 1, countRows(t, ctx, pool, `SELECT COUNT(*) FROM outbox_dlq`))

	manager := NewDLQManager(pool, 2, time.Second, nil)
	replayed, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)
	require.Equal(t, 0, countRows(t, ctx, pool, `SELECT COUNT(*) FROM outbox_dlq`))
	require.Equal(t, 0, int(testutil.ToFloat64(dlqBacklogGauge)))

	producer := &stubProducer{}
	healthy := NewDispatcher(pool, producer, &stubRegistry{id: 3}, 10*time.Millisecond, 5, nil)
	require.NoError(t, healthy.drain(ctx))
	require.Len(t, producer.writes, 1)

	// an entry past its retry budget is parked instead of replayed
	_, err = pool.Exec(ctx,
		`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count)
         VALUES (1, 'xp.awarded', 'gamification_xp_events', '{}', 'broker down', 'xp_event', 'e-9', 'gamification_xp_events-value', 'u-9', 2)`)
	require.NoError(t, err)

	replayed, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, replayed)
	require.Equal(t, 1, countRows(t, ctx, pool, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`))
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

func awardXp(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID, sourceID string, xp int) {
	t.Helper()

	repos := postgres.NewRepositories(pool)
	_, inserted, err := repos.XpEvents.InsertIfAbsent(ctx, domain.XpEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		SourceType: domain.SourceWorkout,
		SourceID:   sourceID,
		XP:         xp,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func countRows(t *testing.T, ctx context.Context, pool *pgxpool.Pool, query string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(ctx, query).Scan(&n))
	return n
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}
