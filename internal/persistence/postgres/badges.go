package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/events"
)

// BadgeRepository stores earned badges.
type BadgeRepository struct {
	pool *pgxpool.Pool
}

// NewBadgeRepository constructs a BadgeRepository.
func NewBadgeRepository(pool *pgxpool.Pool) *BadgeRepository {
	return &BadgeRepository{pool: pool}
}

// ListByUser returns the user's badges newest first.
func (r *BadgeRepository) ListByUser(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, badge_id, earned_at FROM user_badges WHERE user_id=$1 ORDER BY earned_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	return collectBadges(rows)
}

// FindByBadge implements domain.UserBadgeRepository.
func (r *BadgeRepository) FindByBadge(ctx context.Context, userID, badgeID string) ([]domain.UserBadge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, badge_id, earned_at FROM user_badges WHERE user_id=$1 AND badge_id=$2 ORDER BY id`, userID, badgeID)
	if err != nil {
		return nil, err
	}
	return collectBadges(rows)
}

// InsertIfAbsent inserts on the (user_id, badge_id) key and emits badge.unlocked once.
func (r *BadgeRepository) InsertIfAbsent(ctx context.Context, badge domain.UserBadge) (domain.UserBadge, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.UserBadge{}, false, err
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx,
		`INSERT INTO user_badges (id, user_id, badge_id, earned_at) VALUES ($1,$2,$3,$4)
        ON CONFLICT ON CONSTRAINT user_badges_key DO NOTHING RETURNING id`,
		badge.ID, badge.UserID, badge.BadgeID, badge.EarnedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.Rollback(ctx); err != nil {
			return domain.UserBadge{}, false, err
		}
		existing, err := r.FindByBadge(ctx, badge.UserID, badge.BadgeID)
		if err != nil {
			return domain.UserBadge{}, false, err
		}
		if len(existing) == 0 {
			return domain.UserBadge{}, false, errors.New("user badge vanished after conflict")
		}
		return existing[0], false, nil
	}
	if err != nil {
		return domain.UserBadge{}, false, err
	}

	if err := insertOutbox(ctx, tx, events.TypeBadgeUnlocked, badge.ID, badge.UserID, events.BadgeUnlocked{
		UserID:   badge.UserID,
		BadgeID:  badge.BadgeID,
		EarnedAt: badge.EarnedAt,
	}); err != nil {
		return domain.UserBadge{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.UserBadge{}, false, err
	}
	return badge, true, nil
}

func collectBadges(rows pgx.Rows) ([]domain.UserBadge, error) {
	defer rows.Close()
	out := make([]domain.UserBadge, 0)
	for rows.Next() {
		var b domain.UserBadge
		if err := rows.Scan(&b.ID, &b.UserID, &b.BadgeID, &b.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
