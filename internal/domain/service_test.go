package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/gamification/internal/domain"
)

func TestSaveDailyLogCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.SaveDailyLog(ctx, "u", domain.DailyLogInput{Date: "2025-03-01", SleepHrs: ptr(7), WaterMl: ptr(1500)})
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Equal(t, 5, first.Award.Delta)
	require.Equal(t, []string{domain.BadgeFirstLog}, badgeIDs(first.Badges))

	second, err := f.svc.SaveDailyLog(ctx, "u", domain.DailyLogInput{Date: "2025-03-01", SleepHrs: ptr(7), WaterMl: ptr(1500), Steps: ptr(9000)})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Log.ID, second.Log.ID)
	require.True(t, second.Award.Replay, "first save wins")
	require.Equal(t, 5, second.Award.Aggregate.TotalXP)

	logs, err := f.repos.Activities.ListDailyLogs(ctx, "u")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].Steps)
}

func TestSaveDailyLogRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SaveDailyLog(context.Background(), "u", domain.DailyLogInput{Date: "2025-03-01", Mood: ptr(9)})
	require.True(t, domain.IsValidation(err))

	_, err = f.svc.SaveDailyLog(context.Background(), "", domain.DailyLogInput{Date: "2025-03-01"})
	require.ErrorIs(t, err, domain.ErrNoSession)
}

func TestRecordWorkoutReplaysUpstreamID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := domain.WorkoutInput{ID: "upstream-1", Date: "2025-03-01", Type: "Run", DurationMin: 25, RPE: 9, DistanceKm: ptr(4)}

	first, err := f.svc.RecordWorkout(ctx, "u", in)
	require.NoError(t, err)
	require.Equal(t, domain.WorkoutRun, first.Workout.Type)
	require.Equal(t, 30, first.Award.Delta)

	second, err := f.svc.RecordWorkout(ctx, "u", in)
	require.NoError(t, err)
	require.Zero(t, second.Award.Delta)

	workouts, err := f.repos.Activities.ListWorkouts(ctx, "u")
	require.NoError(t, err)
	require.Len(t, workouts, 1)
}

func TestRecordWorkoutReplayReturnsStoredWorkout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.RecordWorkout(ctx, "u", domain.WorkoutInput{ID: "w-1", Date: "2025-03-01", Type: "yoga", DurationMin: 10})
	require.NoError(t, err)

	replay, err := f.svc.RecordWorkout(ctx, "u", domain.WorkoutInput{ID: "w-1", Date: "2025-03-02", Type: "strength", DurationMin: 60, RPE: 10})
	require.NoError(t, err)
	require.Equal(t, "2025-03-01", replay.Workout.Date)
	require.Equal(t, "yoga", replay.Workout.Type)
	require.Zero(t, replay.Award.Delta)
	require.Equal(t, 12, replay.Award.Aggregate.TotalXP)
}

func TestRecordWorkoutRejectsAnotherUsersID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.RecordWorkout(ctx, "alice", domain.WorkoutInput{ID: "w-alice", Date: "2025-03-01", Type: "run", DurationMin: 30, RPE: 5, DistanceKm: ptr(5)})
	require.NoError(t, err)

	_, err = f.svc.RecordWorkout(ctx, "bob", domain.WorkoutInput{ID: "w-alice", Date: "2025-03-01", Type: "strength", DurationMin: 60, RPE: 10})
	require.ErrorIs(t, err, domain.ErrActivityIDTaken)

	total, err := f.svc.Ledger.TotalXP(ctx, "bob")
	require.NoError(t, err)
	require.Zero(t, total)
	events, err := f.repos.XpEvents.ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.RecordWorkout(ctx, "u", domain.WorkoutInput{Date: "2025-03-01", Type: "yoga", DurationMin: 10})
	require.NoError(t, err)

	summary, err := f.svc.Summary(ctx, "u")
	require.NoError(t, err)
	require.Equal(t, 12, summary.Aggregate.TotalXP)
	require.Len(t, summary.Badges, len(domain.BadgeCatalog()))

	_, err = f.svc.Summary(ctx, "")
	require.ErrorIs(t, err, domain.ErrNoSession)
}
