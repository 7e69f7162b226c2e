package domain

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/gamification/internal/observability"
)

// AwardResult describes the outcome of an award call. Delta is zero when the
// source key had already been credited.
type AwardResult struct {
	Event     XpEvent   `json:"event"`
	Delta     int       `json:"delta"`
	Replay    bool      `json:"replay"`
	Aggregate Aggregate `json:"aggregate"`
}

// Option configures optional behaviour shared by the domain services.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Ledger owns XP events and the aggregates derived from them.
type Ledger struct {
	events XpEventRepository
	cache  AggregateCache
	opts   options
}

// NewLedger constructs a Ledger. A nil cache disables aggregate caching.
func NewLedger(events XpEventRepository, cache AggregateCache, opts ...Option) *Ledger {
	if cache == nil {
		cache = noopCache{}
	}
	return &Ledger{events: events, cache: cache, opts: buildOptions(opts)}
}

// Award credits amount XP to the user for the source once. Repeated calls for
// the same key return the existing event with a zero delta.
func (l *Ledger) Award(ctx context.Context, userID string, sourceType SourceType, sourceID string, amount int) (AwardResult, error) {
	if strings.TrimSpace(userID) == "" {
		return AwardResult{}, ErrNoSession
	}
	if !sourceType.Valid() {
		return AwardResult{}, invalid("source_type", "is unknown")
	}
	if strings.TrimSpace(sourceID) == "" {
		return AwardResult{}, invalid("source_id", "is required")
	}
	if amount < 0 {
		return AwardResult{}, invalid("xp", "must be >= 0")
	}

	key := SourceKey{UserID: userID, SourceType: sourceType, SourceID: sourceID}

	existing, err := l.events.FindBySource(ctx, key)
	if err != nil {
		return AwardResult{}, transport("xp_events.find_by_source", err)
	}
	if len(existing) > 0 {
		return l.replay(ctx, l.firstEvent(key, existing))
	}

	event := XpEvent{
		ID:         l.opts.newID(),
		UserID:     userID,
		SourceType: sourceType,
		SourceID:   sourceID,
		XP:         amount,
		CreatedAt:  l.opts.now(),
	}
	stored, inserted, err := l.events.InsertIfAbsent(ctx, event)
	if err != nil {
		return AwardResult{}, transport("xp_events.insert", err)
	}
	if !inserted {
		// lost a concurrent race for the same key
		return l.replay(ctx, stored)
	}

	observability.RecordXpAwarded(string(sourceType), amount, stored.CreatedAt)
	agg := l.reloadAfterAward(ctx, userID, amount)
	l.opts.logger.Debug("xp awarded",
		zap.String("user_id", userID),
		zap.String("source_type", string(sourceType)),
		zap.String("source_id", sourceID),
		zap.Int("xp", amount),
		zap.Int("total_xp", agg.TotalXP),
	)
	return AwardResult{Event: stored, Delta: amount, Aggregate: agg}, nil
}

// AwardWorkout credits the workout formula once per workout.
func (l *Ledger) AwardWorkout(ctx context.Context, userID string, w Workout) (AwardResult, error) {
	if err := w.Validate(); err != nil {
		return AwardResult{}, err
	}
	return l.Award(ctx, userID, SourceWorkout, w.ID, CalculateWorkoutXp(w))
}

// AwardDailyLog credits a daily log once per log id. Later edits of the same
// log do not change the recorded amount.
func (l *Ledger) AwardDailyLog(ctx context.Context, userID string, log DailyLog) (AwardResult, error) {
	if strings.TrimSpace(log.ID) == "" {
		return AwardResult{}, invalid("id", "is required")
	}
	return l.Award(ctx, userID, SourceDaily, log.ID, CalculateDailyLogXp(log))
}

// AwardChallenge credits a challenge's reward once per (user, challenge).
func (l *Ledger) AwardChallenge(ctx context.Context, userID string, ch Challenge) (AwardResult, error) {
	return l.Award(ctx, userID, SourceChallenge, ch.ID, ch.XPReward)
}

// Aggregate returns the user's current aggregate, from cache when available.
func (l *Ledger) Aggregate(ctx context.Context, userID string) (Aggregate, error) {
	if strings.TrimSpace(userID) == "" {
		return Aggregate{}, ErrNoSession
	}
	agg, ok, err := l.cache.Get(ctx, userID)
	if err != nil {
		l.opts.logger.Warn("aggregate cache read failed", zap.String("user_id", userID), zap.Error(err))
	}
	if err == nil && ok {
		return agg, nil
	}
	return l.Recompute(ctx, userID)
}

// TotalXP returns the sum of the user's events.
func (l *Ledger) TotalXP(ctx context.Context, userID string) (int, error) {
	agg, err := l.Aggregate(ctx, userID)
	return agg.TotalXP, err
}

// Level returns the level derived from the user's total XP.
func (l *Ledger) Level(ctx context.Context, userID string) (int, error) {
	agg, err := l.Aggregate(ctx, userID)
	if err != nil {
		return 0, err
	}
	return agg.Level, nil
}

// Recompute rebuilds the aggregate from the event set and replaces the cached copy.
func (l *Ledger) Recompute(ctx context.Context, userID string) (Aggregate, error) {
	if strings.TrimSpace(userID) == "" {
		return Aggregate{}, ErrNoSession
	}
	events, err := l.events.ListByUser(ctx, userID)
	if err != nil {
		return Aggregate{}, transport("xp_events.list_by_user", err)
	}
	l.checkUniqueness(events)

	agg := AggregateFromEvents(userID, events)
	if err := l.cache.Set(ctx, agg); err != nil {
		l.opts.logger.Warn("aggregate cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return agg, nil
}

// Events returns a newest-first page of the user's ledger.
func (l *Ledger) Events(ctx context.Context, userID string, cursor *Cursor, limit int) ([]XpEvent, *Cursor, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, ErrNoSession
	}
	if limit <= 0 {
		limit = 20
	}
	events, next, err := l.events.PageByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, nil, transport("xp_events.page_by_user", err)
	}
	return events, next, nil
}

// RemoveBySource deletes every event produced by the source, across users,
// and invalidates the cached aggregates of the users it touched.
func (l *Ledger) RemoveBySource(ctx context.Context, sourceType SourceType, sourceID string) ([]XpEvent, error) {
	if !sourceType.Valid() {
		return nil, invalid("source_type", "is unknown")
	}
	if strings.TrimSpace(sourceID) == "" {
		return nil, invalid("source_id", "is required")
	}

	events, err := l.events.ListBySource(ctx, sourceType, sourceID)
	if err != nil {
		return nil, transport("xp_events.list_by_source", err)
	}

	removed := make([]XpEvent, 0, len(events))
	for _, ev := range events {
		if err := l.events.Delete(ctx, ev.ID); err != nil {
			l.invalidateUsers(ctx, removed)
			return removed, transport("xp_events.delete", err)
		}
		removed = append(removed, ev)
	}
	l.invalidateUsers(ctx, removed)
	observability.RecordEventsRemoved(string(sourceType), len(removed))
	return removed, nil
}

func (l *Ledger) replay(ctx context.Context, existing XpEvent) (AwardResult, error) {
	observability.RecordAwardReplay(string(existing.SourceType))
	agg, err := l.Aggregate(ctx, existing.UserID)
	if err != nil {
		return AwardResult{}, err
	}
	return AwardResult{Event: existing, Delta: 0, Replay: true, Aggregate: agg}, nil
}

// reloadAfterAward drops the cached aggregate and sums the user's events from
// the store. The cache stays empty until the next read repopulates it.
func (l *Ledger) reloadAfterAward(ctx context.Context, userID string, delta int) Aggregate {
	if err := l.cache.Invalidate(ctx, userID); err != nil {
		l.opts.logger.Warn("aggregate cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
	events, err := l.events.ListByUser(ctx, userID)
	if err != nil {
		l.opts.logger.Warn("aggregate reload after award failed", zap.String("user_id", userID), zap.Error(err))
		return Aggregate{UserID: userID, TotalXP: delta, Level: LevelFromXp(delta), EventCount: 1}
	}
	l.checkUniqueness(events)
	return AggregateFromEvents(userID, events)
}

func (l *Ledger) invalidateUsers(ctx context.Context, events []XpEvent) {
	seen := make(map[string]struct{})
	for _, ev := range events {
		if _, ok := seen[ev.UserID]; ok {
			continue
		}
		seen[ev.UserID] = struct{}{}
		if err := l.cache.Invalidate(ctx, ev.UserID); err != nil {
			l.opts.logger.Warn("aggregate cache invalidation failed", zap.String("user_id", ev.UserID), zap.Error(err))
		}
	}
}

// firstEvent picks the lowest id when the at-most-one invariant is broken.
func (l *Ledger) firstEvent(key SourceKey, events []XpEvent) XpEvent {
	if len(events) == 1 {
		return events[0]
	}
	reportViolation(l.opts.logger, "xp_events", key.String(), len(events))
	sorted := append([]XpEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted[0]
}

func (l *Ledger) checkUniqueness(events []XpEvent) {
	counts := make(map[SourceKey]int, len(events))
	for _, ev := range events {
		counts[ev.Key()]++
	}
	for key, n := range counts {
		if n > 1 {
			reportViolation(l.opts.logger, "xp_events", key.String(), n)
		}
	}
}

func reportViolation(logger *zap.Logger, collection, key string, count int) {
	violation := &ConsistencyViolation{Collection: collection, Key: key, Count: count}
	observability.RecordConsistencyViolation(collection)
	logger.Error("consistency violation", zap.Error(violation))
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (Aggregate, bool, error) { return Aggregate{}, false, nil }
func (noopCache) Set(context.Context, Aggregate) error                 { return nil }
func (noopCache) Invalidate(context.Context, string) error             { return nil }
