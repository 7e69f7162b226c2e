// Package postgres implements the domain repositories on PostgreSQL. Every
// mutation that other services care about writes its outbox row in the same
// transaction.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/events"
)

// NewRepositories wires every repository to the pool.
func NewRepositories(pool *pgxpool.Pool) domain.Repositories {
	return domain.Repositories{
		XpEvents:       NewXpEventRepository(pool),
		Badges:         NewBadgeRepository(pool),
		Challenges:     NewChallengeRepository(pool),
		UserChallenges: NewUserChallengeRepository(pool),
		Activities:     NewActivityRepository(pool),
	}
}

const xpEventColumns = `id, user_id, source_type, source_id, xp, created_at`

// XpEventRepository stores ledger events.
type XpEventRepository struct {
	pool *pgxpool.Pool
}

// NewXpEventRepository constructs an XpEventRepository.
func NewXpEventRepository(pool *pgxpool.Pool) *XpEventRepository {
	return &XpEventRepository{pool: pool}
}

// FindBySource implements domain.XpEventRepository.
func (r *XpEventRepository) FindBySource(ctx context.Context, key domain.SourceKey) ([]domain.XpEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+xpEventColumns+` FROM xp_events WHERE user_id=$1 AND source_type=$2 AND source_id=$3 ORDER BY id`,
		key.UserID, string(key.SourceType), key.SourceID)
	if err != nil {
		return nil, err
	}
	return collectXpEvents(rows)
}

// InsertIfAbsent relies on the (user_id, source_type, source_id) unique key.
// The xp.awarded outbox row is only written when this call inserted.
func (r *XpEventRepository) InsertIfAbsent(ctx context.Context, event domain.XpEvent) (domain.XpEvent, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.XpEvent{}, false, err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO xp_events (` + xpEventColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT ON CONSTRAINT xp_events_source_key DO NOTHING
        RETURNING id`

	var id string
	err = tx.QueryRow(ctx, stmt, event.ID, event.UserID, string(event.SourceType), event.SourceID, event.XP, event.CreatedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Rollback(ctx); err != nil {
			return domain.XpEvent{}, false, err
		}
		existing, err := r.FindBySource(ctx, event.Key())
		if err != nil {
			return domain.XpEvent{}, false, err
		}
		if len(existing) == 0 {
			return domain.XpEvent{}, false, errors.New("xp event vanished after conflict")
		}
		return existing[0], false, nil
	}
	if err != nil {
		return domain.XpEvent{}, false, err
	}

	if err := insertOutbox(ctx, tx, events.TypeXpAwarded, event.ID, event.UserID, events.XpAwarded{
		EventID:    event.ID,
		UserID:     event.UserID,
		SourceType: string(event.SourceType),
		SourceID:   event.SourceID,
		XP:         event.XP,
		CreatedAt:  event.CreatedAt,
	}); err != nil {
		return domain.XpEvent{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.XpEvent{}, false, err
	}
	return event, true, nil
}

// ListByUser implements domain.XpEventRepository.
func (r *XpEventRepository) ListByUser(ctx context.Context, userID string) ([]domain.XpEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+xpEventColumns+` FROM xp_events WHERE user_id=$1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	return collectXpEvents(rows)
}

// PageByUser returns a newest-first keyset page.
func (r *XpEventRepository) PageByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.XpEvent, *domain.Cursor, error) {
	args := []any{userID, limit}
	query := `SELECT ` + xpEventColumns + ` FROM xp_events WHERE user_id=$1`
	if cursor != nil {
		query += ` AND (created_at, id) < ($3, $4)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	results, err := collectXpEvents(rows)
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListBySource implements domain.XpEventRepository.
func (r *XpEventRepository) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]domain.XpEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+xpEventColumns+` FROM xp_events WHERE source_type=$1 AND source_id=$2 ORDER BY id`,
		string(sourceType), sourceID)
	if err != nil {
		return nil, err
	}
	return collectXpEvents(rows)
}

// Delete removes the event and records xp.revoked.
func (r *XpEventRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var ev domain.XpEvent
	err = tx.QueryRow(ctx, `DELETE FROM xp_events WHERE id=$1 RETURNING `+xpEventColumns, id).
		Scan(&ev.ID, &ev.UserID, &ev.SourceType, &ev.SourceID, &ev.XP, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, events.TypeXpRevoked, ev.ID, ev.UserID, events.XpRevoked{
		EventID:    ev.ID,
		UserID:     ev.UserID,
		SourceType: string(ev.SourceType),
		SourceID:   ev.SourceID,
		XP:         ev.XP,
		RevokedAt:  time.Now().UTC(),
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func collectXpEvents(rows pgx.Rows) ([]domain.XpEvent, error) {
	defer rows.Close()
	out := make([]domain.XpEvent, 0)
	for rows.Next() {
		var ev domain.XpEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SourceType, &ev.SourceID, &ev.XP, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
