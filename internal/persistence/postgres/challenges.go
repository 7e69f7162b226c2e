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

const challengeColumns = `id, title, description, type, target, threshold_ml, start_date, end_date, xp_reward, is_active, created_at`

// ChallengeRepository reads and saves challenge definitions.
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

// NewChallengeRepository constructs a ChallengeRepository.
func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

// Get returns nil when the challenge does not exist.
func (r *ChallengeRepository) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id=$1`, id)
	ch, err := scanChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// ListActive returns active challenges newest first.
func (r *ChallengeRepository) ListActive(ctx context.Context) ([]domain.Challenge, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE is_active ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Challenge, 0)
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Save upserts a challenge definition.
func (r *ChallengeRepository) Save(ctx context.Context, ch domain.Challenge) error {
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO challenges (`+challengeColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (id) DO UPDATE SET
            title=EXCLUDED.title, description=EXCLUDED.description, type=EXCLUDED.type,
            target=EXCLUDED.target, threshold_ml=EXCLUDED.threshold_ml,
            start_date=EXCLUDED.start_date, end_date=EXCLUDED.end_date,
            xp_reward=EXCLUDED.xp_reward, is_active=EXCLUDED.is_active`,
		ch.ID, ch.Title, ch.Description, string(ch.Type), ch.Target, ch.ThresholdMl,
		ch.StartDate, ch.EndDate, ch.XPReward, ch.IsActive, ch.CreatedAt)
	return err
}

func scanChallenge(row pgx.Row) (domain.Challenge, error) {
	var ch domain.Challenge
	err := row.Scan(&ch.ID, &ch.Title, &ch.Description, &ch.Type, &ch.Target, &ch.ThresholdMl,
		&ch.StartDate, &ch.EndDate, &ch.XPReward, &ch.IsActive, &ch.CreatedAt)
	return ch, err
}

const userChallengeColumns = `id, user_id, challenge_id, status, joined_at, completed_at`

// UserChallengeRepository stores challenge participations.
type UserChallengeRepository struct {
	pool *pgxpool.Pool
}

// NewUserChallengeRepository constructs a UserChallengeRepository.
func NewUserChallengeRepository(pool *pgxpool.Pool) *UserChallengeRepository {
	return &UserChallengeRepository{pool: pool}
}

// FindByChallenge implements domain.UserChallengeRepository.
func (r *UserChallengeRepository) FindByChallenge(ctx context.Context, userID, challengeID string) ([]domain.UserChallenge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userChallengeColumns+` FROM user_challenges WHERE user_id=$1 AND challenge_id=$2 ORDER BY id`,
		userID, challengeID)
	if err != nil {
		return nil, err
	}
	return collectUserChallenges(rows)
}

// InsertIfAbsent inserts on the (user_id, challenge_id) key.
func (r *UserChallengeRepository) InsertIfAbsent(ctx context.Context, uc domain.UserChallenge) (domain.UserChallenge, bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO user_challenges (`+userChallengeColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT ON CONSTRAINT user_challenges_key DO NOTHING`,
		uc.ID, uc.UserID, uc.ChallengeID, string(uc.Status), uc.JoinedAt, uc.CompletedAt)
	if err != nil {
		return domain.UserChallenge{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return uc, true, nil
	}

	existing, err := r.FindByChallenge(ctx, uc.UserID, uc.ChallengeID)
	if err != nil {
		return domain.UserChallenge{}, false, err
	}
	if len(existing) == 0 {
		return domain.UserChallenge{}, false, errors.New("user challenge vanished after conflict")
	}
	return existing[0], false, nil
}

// ListByUser filters by status; an empty status returns every participation.
func (r *UserChallengeRepository) ListByUser(ctx context.Context, userID string, status domain.ChallengeStatus) ([]domain.UserChallenge, error) {
	query := `SELECT ` + userChallengeColumns + ` FROM user_challenges WHERE user_id=$1`
	args := []any{userID}
	if status != "" {
		query += ` AND status=$2`
		args = append(args, string(status))
	}
	query += ` ORDER BY joined_at DESC, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectUserChallenges(rows)
}

// MarkCompleted flips an active row to completed and emits challenge.completed.
// A row that is already completed is returned unchanged.
func (r *UserChallengeRepository) MarkCompleted(ctx context.Context, id string, at time.Time) (domain.UserChallenge, bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.UserChallenge{}, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `UPDATE user_challenges SET status='completed', completed_at=$2
        WHERE id=$1 AND status='active'
        RETURNING `+userChallengeColumns, id, at)
	uc, err := scanUserChallenge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := scanUserChallenge(tx.QueryRow(ctx, `SELECT `+userChallengeColumns+` FROM user_challenges WHERE id=$1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserChallenge{}, false, nil
		}
		return current, false, err
	}
	if err != nil {
		return domain.UserChallenge{}, false, err
	}

	if err := insertOutbox(ctx, tx, events.TypeChallengeCompleted, uc.ID, uc.UserID, events.ChallengeCompleted{
		UserID:      uc.UserID,
		ChallengeID: uc.ChallengeID,
		CompletedAt: at,
	}); err != nil {
		return domain.UserChallenge{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.UserChallenge{}, false, err
	}
	return uc, true, nil
}

func scanUserChallenge(row pgx.Row) (domain.UserChallenge, error) {
	var uc domain.UserChallenge
	err := row.Scan(&uc.ID, &uc.UserID, &uc.ChallengeID, &uc.Status, &uc.JoinedAt, &uc.CompletedAt)
	return uc, err
}

func collectUserChallenges(rows pgx.Rows) ([]domain.UserChallenge, error) {
	defer rows.Close()
	out := make([]domain.UserChallenge, 0)
	for rows.Next() {
		uc, err := scanUserChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, uc)
	}
	return out, rows.Err()
}
