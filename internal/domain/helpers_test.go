package domain_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"example.com/gamification/internal/cache"
	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/persistence/memory"
)

type fixture struct {
	repos domain.Repositories
	cache *cache.MemoryAggregateCache
	svc   *domain.Service
}

// sequence returns deterministic ids and a clock that ticks one second per call.
func sequence() []domain.Option {
	var (
		mu  sync.Mutex
		n   int
		now = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	)
	return []domain.Option{
		domain.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%04d", n)
		}),
		domain.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
			return now
		}),
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	c := cache.NewMemoryAggregateCache(0)
	return &fixture{
		repos: repos,
		cache: c,
		svc:   domain.NewService(repos, c, sequence()...),
	}
}
