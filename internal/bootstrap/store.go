// Package bootstrap opens the stores and caches the binaries run against.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/gamification/internal/cache"
	"example.com/gamification/internal/config"
	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/persistence/memory"
	"example.com/gamification/internal/persistence/postgres"
)

// Store is an opened set of repositories. Pool is nil for the memory driver.
type Store struct {
	Repos domain.Repositories
	Pool  *pgxpool.Pool
}

// Close releases the connection pool, if any.
func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStore builds repositories for the configured driver. The postgres
// driver waits for the database, then applies migrations when enabled.
func OpenStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		repos := memory.NewRepositories()
		if err := SeedChallenges(ctx, repos.Challenges, time.Now().UTC()); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory store; data is lost on restart")
		return &Store{Repos: repos}, nil
	case config.StoreDriverPostgres:
		pool, err := ConnectPostgres(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(cfg.PostgresURL, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &Store{Repos: postgres.NewRepositories(pool), Pool: pool}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// ConnectPostgres opens a pool and retries the first ping with exponential
// backoff for up to a minute.
func ConnectPostgres(ctx context.Context, url string, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = time.Minute
	err = backoff.RetryNotify(
		func() error { return pool.Ping(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logger.Warn("postgres not ready", zap.Error(err), zap.Duration("retry_in", next))
		},
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// OpenCache returns a Redis cache when a URL is configured and an in-process
// cache otherwise. The returned func releases it.
func OpenCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (domain.AggregateCache, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryAggregateCache(cfg.AggregateCacheTTL), func() {}, nil
	}
	rc, err := cache.NewRedisAggregateCache(ctx, cfg.RedisURL, cfg.AggregateCacheTTL, logger)
	if err != nil {
		return nil, nil, err
	}
	return rc, func() { _ = rc.Close() }, nil
}

// SeedChallenges stores a starter set of challenges covering the week and
// month around now, so a fresh in-memory deployment has something to join.
func SeedChallenges(ctx context.Context, repo domain.ChallengeRepository, now time.Time) error {
	weekday := (int(now.Weekday()) + 6) % 7
	weekStart := now.AddDate(0, 0, -weekday)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	seeds := []domain.Challenge{
		{
			ID:          "seed-weekly-workouts",
			Title:       "Three workouts this week",
			Description: "Log three workouts between Monday and Sunday.",
			Type:        domain.ChallengeWorkoutsCount,
			Target:      3,
			StartDate:   weekStart.Format(domain.DateLayout),
			EndDate:     weekStart.AddDate(0, 0, 6).Format(domain.DateLayout),
			XPReward:    50,
		},
		{
			ID:          "seed-monthly-minutes",
			Title:       "300 active minutes",
			Description: "Accumulate 300 workout minutes this month.",
			Type:        domain.ChallengeWorkoutsMinutes,
			Target:      300,
			StartDate:   monthStart.Format(domain.DateLayout),
			EndDate:     monthEnd.Format(domain.DateLayout),
			XPReward:    100,
		},
		{
			ID:          "seed-monthly-run",
			Title:       "Run 25 km",
			Description: "Cover 25 km running this month.",
			Type:        domain.ChallengeRunDistanceKm,
			Target:      25,
			StartDate:   monthStart.Format(domain.DateLayout),
			EndDate:     monthEnd.Format(domain.DateLayout),
			XPReward:    150,
		},
	}
	for i, ch := range seeds {
		ch.IsActive = true
		ch.CreatedAt = now.Add(time.Duration(i) * time.Second)
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("seed %s: %w", ch.ID, err)
		}
		if err := repo.Save(ctx, ch); err != nil {
			return fmt.Errorf("seed %s: %w", ch.ID, err)
		}
	}
	return nil
}
