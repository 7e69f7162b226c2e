package domain

import (
	"context"
	"time"
)

// Cursor models the pagination token for ledger listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// XpEventRepository stores ledger events. InsertIfAbsent must be atomic on
// the (user, source type, source id) key: it returns the stored event and
// whether this call inserted it.
type XpEventRepository interface {
	FindBySource(ctx context.Context, key SourceKey) ([]XpEvent, error)
	InsertIfAbsent(ctx context.Context, event XpEvent) (XpEvent, bool, error)
	ListByUser(ctx context.Context, userID string) ([]XpEvent, error)
	PageByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]XpEvent, *Cursor, error)
	ListBySource(ctx context.Context, sourceType SourceType, sourceID string) ([]XpEvent, error)
	Delete(ctx context.Context, id string) error
}

// UserBadgeRepository stores earned badges, unique per (user, badge).
type UserBadgeRepository interface {
	ListByUser(ctx context.Context, userID string) ([]UserBadge, error)
	FindByBadge(ctx context.Context, userID, badgeID string) ([]UserBadge, error)
	InsertIfAbsent(ctx context.Context, badge UserBadge) (UserBadge, bool, error)
}

// ChallengeRepository reads challenge definitions.
type ChallengeRepository interface {
	Get(ctx context.Context, id string) (*Challenge, error)
	ListActive(ctx context.Context) ([]Challenge, error)
	Save(ctx context.Context, challenge Challenge) error
}

// UserChallengeRepository stores participations, unique per (user, challenge).
// MarkCompleted only transitions rows that are still active and reports
// whether it did.
type UserChallengeRepository interface {
	FindByChallenge(ctx context.Context, userID, challengeID string) ([]UserChallenge, error)
	InsertIfAbsent(ctx context.Context, uc UserChallenge) (UserChallenge, bool, error)
	ListByUser(ctx context.Context, userID string, status ChallengeStatus) ([]UserChallenge, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) (UserChallenge, bool, error)
}

// ActivityRepository is the workout and daily log collaborator.
// CreateWorkout inserts the workout unless its id is already stored and
// returns the stored row with whether this call inserted it. Delete methods
// report whether a record owned by the user was removed.
type ActivityRepository interface {
	ListWorkouts(ctx context.Context, userID string) ([]Workout, error)
	CreateWorkout(ctx context.Context, workout Workout) (Workout, bool, error)
	DeleteWorkout(ctx context.Context, userID, id string) (bool, error)
	ListDailyLogs(ctx context.Context, userID string) ([]DailyLog, error)
	FindDailyLogByDate(ctx context.Context, userID, date string) (*DailyLog, error)
	CreateDailyLog(ctx context.Context, log DailyLog) error
	UpdateDailyLog(ctx context.Context, log DailyLog) error
	DeleteDailyLog(ctx context.Context, userID, id string) (bool, error)
}

// AggregateCache holds derived aggregates. It is an optimisation only: a miss
// or an error falls back to recomputing from the ledger.
type AggregateCache interface {
	Get(ctx context.Context, userID string) (Aggregate, bool, error)
	Set(ctx context.Context, agg Aggregate) error
	Invalidate(ctx context.Context, userID string) error
}

// Repositories bundles the store collaborators.
type Repositories struct {
	XpEvents       XpEventRepository
	Badges         UserBadgeRepository
	Challenges     ChallengeRepository
	UserChallenges UserChallengeRepository
	Activities     ActivityRepository
}
