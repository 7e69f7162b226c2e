package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const maxRetryDelay = time.Hour

// parked is an outbox_dlq row.
type parked struct {
	Record
	DLQID      int64
	Reason     string
	RetryCount int
}

// DLQManager moves parked events back into the outbox once their retry time
// has come, and quarantines the ones that keep failing.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewDLQManager builds a DLQManager. Non-positive values fall back to five
// retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce handles up to batchSize due entries and reports how many were
// requeued or quarantined. Per-entry failures are joined into the error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	due, err := m.due(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	var errs []error
	handled := 0
	for _, entry := range due {
		if err := m.handle(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", entry.DLQID, err))
			continue
		}
		handled++
	}
	if err := refreshBacklog(ctx, m.pool); err != nil {
		m.logger.Warn("dlq backlog refresh failed", zap.Error(err))
	}
	return handled, errors.Join(errs...)
}

func (m *DLQManager) due(ctx context.Context, limit int) ([]parked, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
           FROM outbox_dlq
          WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
          ORDER BY created_at
          LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (parked, error) {
		var p parked
		err := row.Scan(&p.DLQID, &p.EventID, &p.EventType, &p.Topic, &p.Payload, &p.Reason,
			&p.AggregateType, &p.AggregateID, &p.SchemaSubject, &p.PartitionKey, &p.RetryCount)
		return p, err
	})
}

func (m *DLQManager) handle(ctx context.Context, entry parked) error {
	if entry.RetryCount >= m.maxRetries {
		return m.quarantine(ctx, entry)
	}

	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if err := requeue(ctx, tx, entry); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.DLQID)
		return err
	})
	if err != nil {
		return m.scheduleRetry(ctx, entry, err)
	}
	recordDLQOutcome(outcomeRequeued, entry.EventType)
	m.logger.Debug("dlq entry requeued", zap.Int64("dlq_id", entry.DLQID), zap.String("event_type", entry.EventType))
	return nil
}

func (m *DLQManager) quarantine(ctx context.Context, entry parked) error {
	_, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
		"retry limit reached", entry.DLQID)
	if err != nil {
		return err
	}
	recordDLQOutcome(outcomeQuarantined, entry.EventType)
	m.logger.Warn("dlq entry quarantined",
		zap.Int64("dlq_id", entry.DLQID),
		zap.String("event_type", entry.EventType),
		zap.Int("retries", entry.RetryCount),
		zap.String("last_reason", entry.Reason),
	)
	return nil
}

func (m *DLQManager) scheduleRetry(ctx context.Context, entry parked, cause error) error {
	delay := m.backoffDelay(entry.RetryCount + 1)
	_, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		delay, cause.Error(), entry.DLQID)
	if err != nil {
		return err
	}
	recordDLQOutcome(outcomeRetry, entry.EventType)
	m.logger.Info("dlq retry scheduled", zap.Int64("dlq_id", entry.DLQID), zap.Duration("delay", delay), zap.Error(cause))
	return nil
}

// backoffDelay is baseDelay doubled per attempt, capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(m.baseDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(maxRetryDelay),
		backoff.WithMaxElapsedTime(0),
	)
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func requeue(ctx context.Context, tx pgx.Tx, entry parked) error {
	if entry.SchemaSubject == "" {
		return errors.New("missing schema_subject")
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload)
	return err
}
