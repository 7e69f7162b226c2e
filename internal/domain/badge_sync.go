package domain

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/gamification/internal/observability"
)

// EarnedBadge joins a catalog entry with the user's award record.
type EarnedBadge struct {
	Badge
	Earned bool       `json:"earned"`
	Award  *UserBadge `json:"award,omitempty"`
}

// BadgeSyncer evaluates badge rules against the user's current stats and
// persists newly unlocked badges. Earned sets are cached per user and
// updated optimistically after each grant.
type BadgeSyncer struct {
	ledger         *Ledger
	badges         UserBadgeRepository
	activities     ActivityRepository
	userChallenges UserChallengeRepository
	opts           options

	mu     sync.Mutex
	earned map[string]map[string]UserBadge
}

// NewBadgeSyncer constructs a BadgeSyncer.
func NewBadgeSyncer(ledger *Ledger, badges UserBadgeRepository, activities ActivityRepository, userChallenges UserChallengeRepository, opts ...Option) *BadgeSyncer {
	return &BadgeSyncer{
		ledger:         ledger,
		badges:         badges,
		activities:     activities,
		userChallenges: userChallenges,
		opts:           buildOptions(opts),
		earned:         make(map[string]map[string]UserBadge),
	}
}

// Stats gathers the counters badge rules need. The three collections are
// fetched side by side.
func (s *BadgeSyncer) Stats(ctx context.Context, userID string) (BadgeStats, error) {
	if strings.TrimSpace(userID) == "" {
		return BadgeStats{}, ErrNoSession
	}

	level, err := s.ledger.Level(ctx, userID)
	if err != nil {
		return BadgeStats{}, err
	}

	var (
		logs      []DailyLog
		workouts  []Workout
		completed []UserChallenge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = s.activities.ListDailyLogs(gctx, userID)
		return transport("daily_logs.list", err)
	})
	g.Go(func() error {
		var err error
		workouts, err = s.activities.ListWorkouts(gctx, userID)
		return transport("workouts.list", err)
	})
	g.Go(func() error {
		var err error
		completed, err = s.userChallenges.ListByUser(gctx, userID, ChallengeCompleted)
		return transport("user_challenges.list", err)
	})
	if err := g.Wait(); err != nil {
		return BadgeStats{}, err
	}

	runKm := 0.0
	for _, w := range workouts {
		if w.Type == WorkoutRun && w.DistanceKm != nil {
			runKm += finiteOrZero(*w.DistanceKm)
		}
	}

	return BadgeStats{
		DailyLogsCount:           len(logs),
		WorkoutsCount:            len(workouts),
		RunDistanceKmTotal:       runKm,
		Level:                    level,
		CompletedChallengesCount: len(completed),
	}, nil
}

// EvaluateAndSync grants every badge the user now qualifies for and returns
// the catalog entries granted by this call.
func (s *BadgeSyncer) EvaluateAndSync(ctx context.Context, userID string) ([]Badge, error) {
	stats, err := s.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}

	earned, err := s.loadEarned(ctx, userID)
	if err != nil {
		return nil, err
	}

	newIDs := EvaluateBadges(stats, earned)
	granted := make([]Badge, 0, len(newIDs))
	for _, id := range newIDs {
		ok, err := s.grant(ctx, userID, id)
		if err != nil {
			return granted, err
		}
		if !ok {
			continue
		}
		if badge, found := BadgeByID(id); found {
			granted = append(granted, badge)
		}
	}

	if len(granted) > 0 {
		ids := make([]string, 0, len(granted))
		for _, b := range granted {
			ids = append(ids, b.ID)
		}
		s.opts.logger.Info("badges unlocked", zap.String("user_id", userID), zap.Strings("badge_ids", ids))
	}
	return granted, nil
}

// Earned lists the whole catalog with the user's award state.
func (s *BadgeSyncer) Earned(ctx context.Context, userID string) ([]EarnedBadge, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNoSession
	}
	if _, err := s.loadEarned(ctx, userID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	records := s.earned[userID]
	out := make([]EarnedBadge, 0, len(badgeCatalog))
	for _, b := range badgeCatalog {
		entry := EarnedBadge{Badge: b}
		if rec, ok := records[b.ID]; ok {
			entry.Earned = true
			entry.Award = &rec
		}
		out = append(out, entry)
	}
	s.mu.Unlock()
	return out, nil
}

// Reset drops the cached earned set of the user.
func (s *BadgeSyncer) Reset(userID string) {
	s.mu.Lock()
	delete(s.earned, userID)
	s.mu.Unlock()
}

// grant performs the idempotent join: re-check right before inserting, then
// rely on the store's unique key for the final word.
func (s *BadgeSyncer) grant(ctx context.Context, userID, badgeID string) (bool, error) {
	existing, err := s.badges.FindByBadge(ctx, userID, badgeID)
	if err != nil {
		return false, transport("user_badges.find", err)
	}
	if len(existing) > 0 {
		if len(existing) > 1 {
			reportViolation(s.opts.logger, "user_badges", userID+":"+badgeID, len(existing))
			sort.Slice(existing, func(i, j int) bool { return existing[i].ID < existing[j].ID })
		}
		s.remember(existing[0])
		return false, nil
	}

	record := UserBadge{
		ID:       s.opts.newID(),
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: s.opts.now(),
	}
	stored, inserted, err := s.badges.InsertIfAbsent(ctx, record)
	if err != nil {
		return false, transport("user_badges.insert", err)
	}
	s.remember(stored)
	if inserted {
		observability.RecordBadgeUnlocked(badgeID)
	}
	return inserted, nil
}

func (s *BadgeSyncer) loadEarned(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	cached, ok := s.earned[userID]
	if ok {
		ids := earnedIDs(cached)
		s.mu.Unlock()
		return ids, nil
	}
	s.mu.Unlock()

	records, err := s.badges.ListByUser(ctx, userID)
	if err != nil {
		return nil, transport("user_badges.list", err)
	}

	set := make(map[string]UserBadge, len(records))
	for _, rec := range records {
		if prev, dup := set[rec.BadgeID]; dup && prev.ID < rec.ID {
			continue
		}
		set[rec.BadgeID] = rec
	}

	s.mu.Lock()
	s.earned[userID] = set
	s.mu.Unlock()
	return earnedIDs(set), nil
}

func (s *BadgeSyncer) remember(rec UserBadge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.earned[rec.UserID]
	if !ok {
		set = make(map[string]UserBadge)
		s.earned[rec.UserID] = set
	}
	set[rec.BadgeID] = rec
}

func earnedIDs(set map[string]UserBadge) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
