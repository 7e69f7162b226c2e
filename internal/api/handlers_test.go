package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"example.com/gamification/internal/auth"
	"example.com/gamification/internal/cache"
	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/persistence/memory"
)

var testAuth = auth.Config{Secret: "test-secret", Issuer: "identity"}

type testServer struct {
	t       *testing.T
	handler http.Handler
	repos   domain.Repositories
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, memory.NewRepositories())
}

func newTestServerWith(t *testing.T, repos domain.Repositories) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	svc := domain.NewService(repos, cache.NewMemoryAggregateCache(0), domain.WithLogger(logger))
	return &testServer{
		t:       t,
		handler: NewRouter(NewHandler(svc, logger), testAuth, logger),
		repos:   repos,
	}
}

func token(t *testing.T, subject string, scopes ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    subject,
		"iss":    testAuth.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": scopes,
	}).SignedString([]byte(testAuth.Secret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["type"]
}

func TestHealthzIsPublic(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/v1/me/progression", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthorized", errorType(t, rec))

	rec = srv.do(http.MethodGet, "/v1/me/progression", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteRequiresWriteScope(t *testing.T) {
	srv := newTestServer(t)
	reader := token(t, "user-1", auth.ScopeGamificationRead)

	rec := srv.do(http.MethodPost, "/v1/workouts", reader, WorkoutRequest{Date: "2025-03-02", Type: "run", DurationMin: 30})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(http.MethodGet, "/v1/me/progression", token(t, "user-1", auth.ScopeGamificationWrite), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordWorkoutAwardsOnce(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "user-1", auth.ScopeGamificationWrite)
	req := WorkoutRequest{ID: "w-1", Date: "2025-03-02", Type: "Strength", DurationMin: 30, RPE: 8}

	rec := srv.do(http.MethodPost, "/v1/workouts", bearer, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeBody[domain.WorkoutOutcome](t, rec)
	require.Equal(t, 31, out.Award.Delta)
	require.Equal(t, "strength", out.Workout.Type)
	require.Len(t, out.Badges, 1)
	require.Equal(t, domain.BadgeFirstWorkout, out.Badges[0].ID)

	rec = srv.do(http.MethodPost, "/v1/workouts", bearer, req)
	require.Equal(t, http.StatusOK, rec.Code)
	replay := decodeBody[domain.WorkoutOutcome](t, rec)
	require.True(t, replay.Award.Replay)
	require.Zero(t, replay.Award.Delta)
	require.Empty(t, replay.Badges)

	rec = srv.do(http.MethodGet, "/v1/me/progression", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	progression := decodeBody[domain.Progression](t, rec)
	require.Equal(t, 31, progression.Aggregate.TotalXP)
	require.Equal(t, 1, progression.Aggregate.Level)
}

func TestWorkoutIDOwnedByAnotherUserConflicts(t *testing.T) {
	srv := newTestServer(t)
	alice := token(t, "alice", auth.ScopeGamificationWrite)
	bob := token(t, "bob", auth.ScopeGamificationWrite)

	rec := srv.do(http.MethodPost, "/v1/workouts", alice, WorkoutRequest{ID: "w-alice", Date: "2025-03-02", Type: "run", DurationMin: 30})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodPost, "/v1/workouts", bob, WorkoutRequest{ID: "w-alice", Date: "2025-03-02", Type: "strength", DurationMin: 60, RPE: 10})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodGet, "/v1/me/progression", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, decodeBody[domain.Progression](t, rec).Aggregate.TotalXP)
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "user-1", auth.ScopeGamificationWrite)

	rec := srv.do(http.MethodPost, "/v1/workouts", bearer, WorkoutRequest{Date: "2025-03-02", Type: "run", RPE: 12})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, "validation_failed", body["type"])
	require.Contains(t, body["detail"], "rpe")

	rec = srv.do(http.MethodPost, "/v1/workouts", bearer, WorkoutRequest{Date: "02/03/2025", Type: "run"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/v1/daily-logs", bearer, map[string]any{"date": "2025-03-02", "mood": 9})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/v1/daily-logs", bearer, map[string]any{"date": "2025-03-02", "unknown": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", errorType(t, rec))
}

func TestDailyLogCreateThenUpdate(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "user-1", auth.ScopeGamificationWrite)
	sleep, water, steps := 7.5, 2000.0, 9000.0

	rec := srv.do(http.MethodPost, "/v1/daily-logs", bearer, DailyLogRequest{Date: "2025-03-02", SleepHrs: &sleep, WaterMl: &water, Steps: &steps})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[domain.DailyLogOutcome](t, rec)
	require.True(t, created.Created)
	require.Equal(t, 10, created.Award.Delta)

	rec = srv.do(http.MethodPost, "/v1/daily-logs", bearer, DailyLogRequest{Date: "2025-03-02", SleepHrs: &sleep})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[domain.DailyLogOutcome](t, rec)
	require.False(t, updated.Created)
	require.Equal(t, created.Log.ID, updated.Log.ID)
	require.Zero(t, updated.Award.Delta)
}

func TestDeleteActivityRevokesXp(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "user-1", auth.ScopeGamificationWrite)

	rec := srv.do(http.MethodPost, "/v1/workouts", bearer, WorkoutRequest{ID: "w-1", Date: "2025-03-02", Type: "run", DurationMin: 20})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(http.MethodDelete, "/v1/activities/workout/w-1", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[domain.CascadeResult](t, rec)
	require.Len(t, result.Removed, 1)
	require.Len(t, result.Aggregates, 1)
	require.Zero(t, result.Aggregates[0].TotalXP)

	rec = srv.do(http.MethodDelete, "/v1/activities/workout/w-1", bearer, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(http.MethodDelete, "/v1/activities/challenge/w-1", bearer, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/v1/badges", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	badges := decodeBody[BadgesResponse](t, rec)
	require.Len(t, badges.Items, len(domain.BadgeCatalog()))
	require.True(t, badges.Items[2].Earned, "badges are kept after the workout is deleted")
}

func TestXpEventsPaging(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "user-1", auth.ScopeGamificationWrite)
	for i := 1; i <= 3; i++ {
		rec := srv.do(http.MethodPost, "/v1/workouts", bearer, WorkoutRequest{ID: fmt.Sprintf("w-%d", i), Date: "2025-03-02", Type: "run", DurationMin: 10})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	seen := map[string]bool{}
	path := "/v1/me/xp-events?limit=2"
	for pages := 0; path != ""; pages++ {
		require.Less(t, pages, 3)
		rec := srv.do(http.MethodGet, path, bearer, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decodeBody[XpEventsResponse](t, rec)
		for _, ev := range page.Items {
			seen[ev.SourceID] = true
		}
		path = ""
		if page.NextCursor != "" {
			path = "/v1/me/xp-events?limit=2&cursor=" + page.NextCursor
		}
	}
	require.Len(t, seen, 3)

	rec := srv.do(http.MethodGet, "/v1/me/xp-events?cursor=bad!cursor", bearer, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChallengeLifecycle(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.repos.Challenges.Save(context.Background(), domain.Challenge{
		ID:        "ch-1",
		Title:     "Two workouts",
		Type:      domain.ChallengeWorkoutsCount,
		Target:    2,
		StartDate: "2025-03-01",
		EndDate:   "2025-03-07",
		XPReward:  120,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}))
	bearer := token(t, "user-1", auth.ScopeGamificationWrite)

	rec := srv.do(http.MethodGet, "/v1/challenges", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[ChallengesResponse](t, rec).Items, 1)

	rec = srv.do(http.MethodPost, "/v1/challenges/ch-1/complete", bearer, nil)
	require.Equal(t, http.StatusConflict, rec.Code, "not joined")

	rec = srv.do(http.MethodPost, "/v1/challenges/ch-1/join", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/v1/challenges/ch-1/complete", bearer, nil)
	require.Equal(t, http.StatusConflict, rec.Code, "target not reached")

	for _, id := range []string{"w-1", "w-2"} {
		rec = srv.do(http.MethodPost, "/v1/workouts", bearer, WorkoutRequest{ID: id, Date: "2025-03-03", Type: "run", DurationMin: 10})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = srv.do(http.MethodGet, "/v1/challenges/ch-1/progress", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[domain.ChallengeView](t, rec)
	require.True(t, view.Progress.IsComplete)
	require.Equal(t, "2/2 workouts", view.Progress.Label)

	rec = srv.do(http.MethodPost, "/v1/challenges/ch-1/complete", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decodeBody[domain.ChallengeOutcome](t, rec)
	require.Equal(t, 120, done.Award.Delta)
	require.Equal(t, domain.ChallengeCompleted, done.Participation.Status)
	require.Len(t, done.Badges, 1)
	require.Equal(t, domain.BadgeChallengeComplete, done.Badges[0].ID)

	rec = srv.do(http.MethodPost, "/v1/challenges/ch-1/complete", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, decodeBody[domain.ChallengeOutcome](t, rec).Award.Delta)

	rec = srv.do(http.MethodPost, "/v1/challenges/missing/join", bearer, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminManagesChallenges(t *testing.T) {
	srv := newTestServer(t)
	admin := token(t, "ops-1", auth.ScopeGamificationAdmin)
	user := token(t, "user-1", auth.ScopeGamificationWrite)
	req := ChallengeRequest{
		ID:        "march-run",
		Title:     "Run 20 km",
		Type:      string(domain.ChallengeRunDistanceKm),
		Target:    20,
		StartDate: "2025-03-01",
		EndDate:   "2025-03-31",
		XPReward:  150,
	}

	rec := srv.do(http.MethodPost, "/v1/challenges", user, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(http.MethodPost, "/v1/challenges", admin, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[domain.Challenge](t, rec)
	require.True(t, created.IsActive)
	require.False(t, created.CreatedAt.IsZero())

	rec = srv.do(http.MethodPost, "/v1/challenges", admin, req)
	require.Equal(t, http.StatusConflict, rec.Code)

	bad := req
	bad.ID, bad.EndDate = "", "2025-02-01"
	rec = srv.do(http.MethodPost, "/v1/challenges", admin, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	bad = req
	bad.ID, bad.Type = "", "pushups"
	rec = srv.do(http.MethodPost, "/v1/challenges", admin, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/v1/challenges/march-run/join", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	closed := false
	rec = srv.do(http.MethodPatch, "/v1/challenges/march-run", user, ChallengeStateRequest{IsActive: &closed})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(http.MethodPatch, "/v1/challenges/march-run", admin, ChallengeStateRequest{IsActive: &closed})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.False(t, decodeBody[domain.Challenge](t, rec).IsActive)

	rec = srv.do(http.MethodGet, "/v1/challenges", user, nil)
	require.Empty(t, decodeBody[ChallengesResponse](t, rec).Items)

	rec = srv.do(http.MethodPost, "/v1/challenges/march-run/join", token(t, "user-2", auth.ScopeGamificationWrite), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(http.MethodGet, "/v1/challenges/march-run/progress", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, decodeBody[domain.ChallengeView](t, rec).Participation, "participations survive closing")

	rec = srv.do(http.MethodPatch, "/v1/challenges/missing", admin, ChallengeStateRequest{IsActive: &closed})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(http.MethodPatch, "/v1/challenges/march-run", admin, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBadgeSyncEndpoint(t *testing.T) {
	srv := newTestServer(t)
	bearer := token(t, "user-1", auth.ScopeGamificationWrite)

	rec := srv.do(http.MethodPost, "/v1/badges/sync", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decodeBody[SyncBadgesResponse](t, rec).Unlocked)
}

func TestStoreFailureMapsTo503(t *testing.T) {
	repos := memory.NewRepositories()
	repos.XpEvents = brokenEvents{XpEventRepository: repos.XpEvents}
	srv := newTestServerWith(t, repos)

	rec := srv.do(http.MethodGet, "/v1/me/progression", token(t, "user-1", auth.ScopeGamificationRead), nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "store_unavailable", errorType(t, rec))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&domain.ValidationError{Field: "rpe", Reason: "bad"}, http.StatusBadRequest},
		{domain.ErrNoSession, http.StatusUnauthorized},
		{domain.ErrActivityNotFound, http.StatusNotFound},
		{domain.ErrChallengeNotFound, http.StatusNotFound},
		{domain.ErrChallengeInactive, http.StatusConflict},
		{domain.ErrDailyLogExists, http.StatusConflict},
		{domain.ErrActivityIDTaken, http.StatusConflict},
		{domain.ErrChallengeExists, http.StatusConflict},
		{&domain.TransportError{Op: "xp_events.insert", Err: errors.New("reset")}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := classify(fmt.Errorf("wrapped: %w", tc.err))
		require.Equal(t, tc.status, status, tc.err.Error())
	}
}

type brokenEvents struct {
	domain.XpEventRepository
}

func (brokenEvents) ListByUser(context.Context, string) ([]domain.XpEvent, error) {
	return nil, errors.New("connection refused")
}
