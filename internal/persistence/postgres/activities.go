package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/gamification/internal/domain"
)

const uniqueViolation = "23505"

const (
	workoutColumns  = `id, user_id, date, type, duration_min, rpe, distance_km, notes, created_at`
	dailyLogColumns = `id, user_id, date, sleep_hrs, water_ml, steps, weight_kg, mood, energy, notes, created_at, updated_at`
)

// ActivityRepository stores workouts and daily logs.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// ListWorkouts returns the user's workouts newest date first.
func (r *ActivityRepository) ListWorkouts(ctx context.Context, userID string) ([]domain.Workout, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE user_id=$1 ORDER BY date DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Workout, 0)
	for rows.Next() {
		var w domain.Workout
		if err := rows.Scan(&w.ID, &w.UserID, &w.Date, &w.Type, &w.DurationMin, &w.RPE, &w.DistanceKm, &w.Notes, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreateWorkout inserts w unless its id is already stored, and returns the
// stored row with whether this call inserted it.
func (r *ActivityRepository) CreateWorkout(ctx context.Context, w domain.Workout) (domain.Workout, bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO workouts (`+workoutColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (id) DO NOTHING`,
		w.ID, w.UserID, w.Date, w.Type, w.DurationMin, w.RPE, w.DistanceKm, w.Notes, w.CreatedAt)
	if err != nil {
		return domain.Workout{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return w, true, nil
	}

	var stored domain.Workout
	err = r.pool.QueryRow(ctx, `SELECT `+workoutColumns+` FROM workouts WHERE id=$1`, w.ID).
		Scan(&stored.ID, &stored.UserID, &stored.Date, &stored.Type, &stored.DurationMin, &stored.RPE, &stored.DistanceKm, &stored.Notes, &stored.CreatedAt)
	if err != nil {
		return domain.Workout{}, false, err
	}
	return stored, false, nil
}

// DeleteWorkout implements domain.ActivityRepository.
func (r *ActivityRepository) DeleteWorkout(ctx context.Context, userID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workouts WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListDailyLogs returns the user's logs newest date first.
func (r *ActivityRepository) ListDailyLogs(ctx context.Context, userID string) ([]domain.DailyLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+dailyLogColumns+` FROM daily_logs WHERE user_id=$1 ORDER BY date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.DailyLog, 0)
	for rows.Next() {
		l, err := scanDailyLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// FindDailyLogByDate returns nil when the user has no log for the date.
func (r *ActivityRepository) FindDailyLogByDate(ctx context.Context, userID, date string) (*domain.DailyLog, error) {
	l, err := scanDailyLog(r.pool.QueryRow(ctx,
		`SELECT `+dailyLogColumns+` FROM daily_logs WHERE user_id=$1 AND date=$2`, userID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateDailyLog maps the (user_id, date) unique key to domain.ErrDailyLogExists.
func (r *ActivityRepository) CreateDailyLog(ctx context.Context, l domain.DailyLog) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO daily_logs (`+dailyLogColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		l.ID, l.UserID, l.Date, l.SleepHrs, l.WaterMl, l.Steps, l.WeightKg, l.Mood, l.Energy, l.Notes, l.CreatedAt, l.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDailyLogExists
	}
	return err
}

// UpdateDailyLog replaces the measured fields of a stored log.
func (r *ActivityRepository) UpdateDailyLog(ctx context.Context, l domain.DailyLog) error {
	tag, err := r.pool.Exec(ctx, `UPDATE daily_logs SET
            sleep_hrs=$3, water_ml=$4, steps=$5, weight_kg=$6, mood=$7, energy=$8, notes=$9, updated_at=$10
        WHERE id=$1 AND user_id=$2`,
		l.ID, l.UserID, l.SleepHrs, l.WaterMl, l.Steps, l.WeightKg, l.Mood, l.Energy, l.Notes, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// DeleteDailyLog implements domain.ActivityRepository.
func (r *ActivityRepository) DeleteDailyLog(ctx context.Context, userID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM daily_logs WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanDailyLog(row pgx.Row) (domain.DailyLog, error) {
	var l domain.DailyLog
	err := row.Scan(&l.ID, &l.UserID, &l.Date, &l.SleepHrs, &l.WaterMl, &l.Steps, &l.WeightKg, &l.Mood, &l.Energy, &l.Notes, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
