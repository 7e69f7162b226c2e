package domain_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/persistence/memory"
)

func TestEvaluateAndSyncGrantsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i, date := range []string{"2025-03-01", "2025-03-02"} {
		out, err := f.svc.RecordWorkout(ctx, "u", domain.WorkoutInput{Date: date, Type: domain.WorkoutRun, DurationMin: 30, DistanceKm: ptr(5)})
		require.NoError(t, err)
		if i == 0 {
			require.Equal(t, []string{domain.BadgeFirstWorkout}, badgeIDs(out.Badges))
		} else {
			require.Equal(t, []string{domain.BadgeRun10Km}, badgeIDs(out.Badges))
		}
	}

	granted, err := f.svc.Badges.EvaluateAndSync(ctx, "u")
	require.NoError(t, err)
	require.Empty(t, granted)

	stored, err := f.repos.Badges.ListByUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestEvaluateAndSyncConcurrentCallersInsertOnce(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewRepositories()
	require.NoError(t, repos.Activities.CreateDailyLog(ctx, domain.DailyLog{ID: "l1", UserID: "u", Date: "2025-03-01"}))

	// separate syncers do not share the earned-set cache
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc := domain.NewService(repos, nil)
			granted, err := svc.Badges.EvaluateAndSync(ctx, "u")
			if err != nil {
				return
			}
			mu.Lock()
			total += len(granted)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, total)
	stored, err := repos.Badges.FindByBadge(ctx, "u", domain.BadgeFirstLog)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestBadgeStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.RecordWorkout(ctx, "u", domain.WorkoutInput{Date: "2025-03-01", Type: domain.WorkoutRun, DurationMin: 30, RPE: 5, DistanceKm: ptr(3.5)})
	require.NoError(t, err)
	_, err = f.svc.RecordWorkout(ctx, "u", domain.WorkoutInput{Date: "2025-03-02", Type: "ride", DurationMin: 60, DistanceKm: ptr(20)})
	require.NoError(t, err)
	_, err = f.svc.SaveDailyLog(ctx, "u", domain.DailyLogInput{Date: "2025-03-01", SleepHrs: ptr(7)})
	require.NoError(t, err)

	stats, err := f.svc.Badges.Stats(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 2, stats.WorkoutsCount)
	require.Equal(t, 1, stats.DailyLogsCount)
	require.Equal(t, 3.5, stats.RunDistanceKmTotal)
	require.Equal(t, 1, stats.Level)
	require.Zero(t, stats.CompletedChallengesCount)
}

func TestEarnedListsWholeCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.SaveDailyLog(ctx, "u", domain.DailyLogInput{Date: "2025-03-01"})
	require.NoError(t, err)

	// a fresh syncer must load the earned set from the store
	f.svc.Badges.Reset("u")
	earned, err := f.svc.Badges.Earned(ctx, "u")
	require.NoError(t, err)
	require.Len(t, earned, len(domain.BadgeCatalog()))
	require.True(t, earned[0].Earned)
	require.NotNil(t, earned[0].Award)
	for _, b := range earned[1:] {
		require.False(t, b.Earned, b.ID)
	}
}

func badgeIDs(badges []domain.Badge) []string {
	out := make([]string, 0, len(badges))
	for _, b := range badges {
		out = append(out, b.ID)
	}
	return out
}
