// Package memory provides in-process repositories for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/persistence"
)

// NewRepositories returns an empty in-memory repository set.
func NewRepositories() domain.Repositories {
	return domain.Repositories{
		XpEvents:       NewXpEventStore(),
		Badges:         NewBadgeStore(),
		Challenges:     NewChallengeStore(),
		UserChallenges: NewUserChallengeStore(),
		Activities:     NewActivityStore(),
	}
}

// XpEventStore keeps ledger events keyed by source.
type XpEventStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.XpEvent
	byKey map[domain.SourceKey]string
}

// NewXpEventStore constructs an empty store.
func NewXpEventStore() *XpEventStore {
	return &XpEventStore{
		byID:  make(map[string]domain.XpEvent),
		byKey: make(map[domain.SourceKey]string),
	}
}

// FindBySource implements domain.XpEventRepository.
func (s *XpEventStore) FindBySource(ctx context.Context, key domain.SourceKey) ([]domain.XpEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	return []domain.XpEvent{s.byID[id]}, nil
}

// InsertIfAbsent stores the event unless its source key is taken.
func (s *XpEventStore) InsertIfAbsent(ctx context.Context, event domain.XpEvent) (domain.XpEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[event.Key()]; ok {
		return s.byID[id], false, nil
	}
	s.byID[event.ID] = event
	s.byKey[event.Key()] = event.ID
	return event, true, nil
}

// ListByUser returns the user's events oldest first.
func (s *XpEventStore) ListByUser(ctx context.Context, userID string) ([]domain.XpEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.XpEvent, 0)
	for _, ev := range s.byID {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// PageByUser returns a newest-first page after the cursor.
func (s *XpEventStore) PageByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.XpEvent, *domain.Cursor, error) {
	all, _ := s.ListByUser(ctx, userID)

	results := make([]domain.XpEvent, 0, limit)
	for i := len(all) - 1; i >= 0 && len(results) < limit; i-- {
		ev := all[i]
		if persistence.Before(cursor, ev.CreatedAt, ev.ID) {
			results = append(results, ev)
		}
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// ListBySource returns every user's events for the source.
func (s *XpEventStore) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]domain.XpEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.XpEvent, 0)
	for _, ev := range s.byID {
		if ev.SourceType == sourceType && ev.SourceID == sourceID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes an event. Unknown ids are ignored.
func (s *XpEventStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	if s.byKey[ev.Key()] == id {
		delete(s.byKey, ev.Key())
	}
	return nil
}

type badgeKey struct {
	userID  string
	badgeID string
}

// BadgeStore keeps earned badges unique per (user, badge).
type BadgeStore struct {
	mu    sync.RWMutex
	items map[badgeKey]domain.UserBadge
}

// NewBadgeStore constructs an empty store.
func NewBadgeStore() *BadgeStore {
	return &BadgeStore{items: make(map[badgeKey]domain.UserBadge)}
}

// ListByUser returns the user's badges newest first.
func (s *BadgeStore) ListByUser(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserBadge, 0)
	for k, b := range s.items {
		if k.userID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.After(out[j].EarnedAt) })
	return out, nil
}

// FindByBadge implements domain.UserBadgeRepository.
func (s *BadgeStore) FindByBadge(ctx context.Context, userID, badgeID string) ([]domain.UserBadge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.items[badgeKey{userID, badgeID}]
	if !ok {
		return nil, nil
	}
	return []domain.UserBadge{b}, nil
}

// InsertIfAbsent implements domain.UserBadgeRepository.
func (s *BadgeStore) InsertIfAbsent(ctx context.Context, badge domain.UserBadge) (domain.UserBadge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := badgeKey{badge.UserID, badge.BadgeID}
	if existing, ok := s.items[key]; ok {
		return existing, false, nil
	}
	s.items[key] = badge
	return badge, true, nil
}

// ChallengeStore keeps challenge definitions.
type ChallengeStore struct {
	mu    sync.RWMutex
	items map[string]domain.Challenge
}

// NewChallengeStore constructs an empty store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{items: make(map[string]domain.Challenge)}
}

// Get returns nil when the challenge does not exist.
func (s *ChallengeStore) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

// ListActive returns active challenges newest first.
func (s *ChallengeStore) ListActive(ctx context.Context) ([]domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Challenge, 0)
	for _, ch := range s.items {
		if ch.IsActive {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Save inserts or replaces a challenge.
func (s *ChallengeStore) Save(ctx context.Context, challenge domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[challenge.ID] = challenge
	return nil
}

type participationKey struct {
	userID      string
	challengeID string
}

// UserChallengeStore keeps participations unique per (user, challenge).
type UserChallengeStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.UserChallenge
	byKey map[participationKey]string
}

// NewUserChallengeStore constructs an empty store.
func NewUserChallengeStore() *UserChallengeStore {
	return &UserChallengeStore{
		byID:  make(map[string]domain.UserChallenge),
		byKey: make(map[participationKey]string),
	}
}

// FindByChallenge implements domain.UserChallengeRepository.
func (s *UserChallengeStore) FindByChallenge(ctx context.Context, userID, challengeID string) ([]domain.UserChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[participationKey{userID, challengeID}]
	if !ok {
		return nil, nil
	}
	return []domain.UserChallenge{s.byID[id]}, nil
}

// InsertIfAbsent implements domain.UserChallengeRepository.
func (s *UserChallengeStore) InsertIfAbsent(ctx context.Context, uc domain.UserChallenge) (domain.UserChallenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := participationKey{uc.UserID, uc.ChallengeID}
	if id, ok := s.byKey[key]; ok {
		return s.byID[id], false, nil
	}
	s.byID[uc.ID] = uc
	s.byKey[key] = uc.ID
	return uc, true, nil
}

// ListByUser filters by status; an empty status returns every participation.
func (s *UserChallengeStore) ListByUser(ctx context.Context, userID string, status domain.ChallengeStatus) ([]domain.UserChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserChallenge, 0)
	for _, uc := range s.byID {
		if uc.UserID != userID {
			continue
		}
		if status != "" && uc.Status != status {
			continue
		}
		out = append(out, uc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

// MarkCompleted transitions an active participation to completed.
func (s *UserChallengeStore) MarkCompleted(ctx context.Context, id string, at time.Time) (domain.UserChallenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uc, ok := s.byID[id]
	if !ok {
		return domain.UserChallenge{}, false, nil
	}
	if uc.Status != domain.ChallengeActive {
		return uc, false, nil
	}
	uc.Status = domain.ChallengeCompleted
	uc.CompletedAt = &at
	s.byID[id] = uc
	return uc, true, nil
}

// ActivityStore keeps workouts and daily logs.
type ActivityStore struct {
	mu       sync.RWMutex
	workouts map[string]domain.Workout
	logs     map[string]domain.DailyLog
}

// NewActivityStore constructs an empty store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		workouts: make(map[string]domain.Workout),
		logs:     make(map[string]domain.DailyLog),
	}
}

// ListWorkouts returns the user's workouts newest date first.
func (s *ActivityStore) ListWorkouts(ctx context.Context, userID string) ([]domain.Workout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Workout, 0)
	for _, w := range s.workouts {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date == out[j].Date {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Date > out[j].Date
	})
	return out, nil
}

// CreateWorkout stores the workout unless its id already exists, and returns
// the stored row.
func (s *ActivityStore) CreateWorkout(ctx context.Context, workout domain.Workout) (domain.Workout, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.workouts[workout.ID]; ok {
		return existing, false, nil
	}
	s.workouts[workout.ID] = workout
	return workout, true, nil
}

// DeleteWorkout implements domain.ActivityRepository.
func (s *ActivityStore) DeleteWorkout(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workouts[id]
	if !ok || w.UserID != userID {
		return false, nil
	}
	delete(s.workouts, id)
	return true, nil
}

// ListDailyLogs returns the user's logs newest date first.
func (s *ActivityStore) ListDailyLogs(ctx context.Context, userID string) ([]domain.DailyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DailyLog, 0)
	for _, l := range s.logs {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// FindDailyLogByDate returns nil when the user has no log for the date.
func (s *ActivityStore) FindDailyLogByDate(ctx context.Context, userID, date string) (*domain.DailyLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, l := range s.logs {
		if l.UserID == userID && l.Date == date {
			found := l
			return &found, nil
		}
	}
	return nil, nil
}

// CreateDailyLog rejects a second log for the same user and date.
func (s *ActivityStore) CreateDailyLog(ctx context.Context, log domain.DailyLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.logs {
		if l.UserID == log.UserID && l.Date == log.Date {
			return domain.ErrDailyLogExists
		}
	}
	s.logs[log.ID] = log
	return nil
}

// UpdateDailyLog replaces a stored log.
func (s *ActivityStore) UpdateDailyLog(ctx context.Context, log domain.DailyLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[log.ID]; !ok {
		return domain.ErrActivityNotFound
	}
	s.logs[log.ID] = log
	return nil
}

// DeleteDailyLog implements domain.ActivityRepository.
func (s *ActivityStore) DeleteDailyLog(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[id]
	if !ok || l.UserID != userID {
		return false, nil
	}
	delete(s.logs, id)
	return true, nil
}
