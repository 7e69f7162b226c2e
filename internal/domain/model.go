// Package domain holds the gamification ledger, badge engine, challenge
// progress and the consistency coordinator that ties them together.
package domain

import "time"

// DateLayout is the calendar date format used by workouts, daily logs and challenges.
const DateLayout = "2006-01-02"

// SourceType identifies which kind of activity produced an XP event.
type SourceType string

const (
	SourceWorkout   SourceType = "workout"
	SourceDaily     SourceType = "daily"
	SourceChallenge SourceType = "challenge"
)

// Valid reports whether the source type is one of the known kinds.
func (s SourceType) Valid() bool {
	switch s {
	case SourceWorkout, SourceDaily, SourceChallenge:
		return true
	}
	return false
}

// SourceKey uniquely identifies the activity behind an XP event.
type SourceKey struct {
	UserID     string
	SourceType SourceType
	SourceID   string
}

func (k SourceKey) String() string {
	return k.UserID + ":" + string(k.SourceType) + ":" + k.SourceID
}

// XpEvent credits XP to a user for exactly one source activity.
type XpEvent struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	XP         int        `json:"xp"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Key returns the source key of the event.
func (e XpEvent) Key() SourceKey {
	return SourceKey{UserID: e.UserID, SourceType: e.SourceType, SourceID: e.SourceID}
}

// Aggregate is the derived XP state of a user. It is never stored as a
// source of truth; it can always be rebuilt from the user's events.
type Aggregate struct {
	UserID     string `json:"user_id"`
	TotalXP    int    `json:"total_xp"`
	Level      int    `json:"level"`
	EventCount int    `json:"event_count"`
}

// AggregateFromEvents sums the events into an Aggregate.
func AggregateFromEvents(userID string, events []XpEvent) Aggregate {
	total := 0
	for _, ev := range events {
		total += ev.XP
	}
	return Aggregate{UserID: userID, TotalXP: total, Level: LevelFromXp(total), EventCount: len(events)}
}

// Badge is an entry of the static badge catalog.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Hint        string `json:"hint"`
	Icon        string `json:"icon"`
}

// UserBadge records that a user earned a badge. It is never revoked.
type UserBadge struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// ChallengeType selects how challenge progress is measured.
type ChallengeType string

const (
	ChallengeWorkoutsCount   ChallengeType = "workouts_count"
	ChallengeWorkoutsMinutes ChallengeType = "workouts_minutes"
	ChallengeRunDistanceKm   ChallengeType = "run_distance_km"
	ChallengeDailyWaterDays  ChallengeType = "daily_water_days"
)

// Challenge is a time-boxed goal. Challenges are managed outside the ledger
// and consumed read-only here.
type Challenge struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Type        ChallengeType `json:"type"`
	Target      float64       `json:"target"`
	ThresholdMl *float64      `json:"threshold_ml,omitempty"`
	StartDate   string        `json:"start_date"`
	EndDate     string        `json:"end_date"`
	XPReward    int           `json:"xp_reward"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
}

// ChallengeStatus is the state of a user's participation.
type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
)

// UserChallenge tracks a user's participation in a challenge. The
// active → completed transition is one-way.
type UserChallenge struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	ChallengeID string          `json:"challenge_id"`
	Status      ChallengeStatus `json:"status"`
	JoinedAt    time.Time       `json:"joined_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Workout carries the workout fields consumed by XP, badge and progress
// computation.
type Workout struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Date        string    `json:"date"`
	Type        string    `json:"type"`
	DurationMin float64   `json:"duration_min"`
	RPE         float64   `json:"rpe"`
	DistanceKm  *float64  `json:"distance_km,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Workout types with special meaning for rewards and progress.
const (
	WorkoutStrength = "strength"
	WorkoutRun      = "run"
)

// DailyLog is a per-day wellness record. Nil pointers mean "not recorded".
type DailyLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	SleepHrs  *float64  `json:"sleep_hrs,omitempty"`
	WaterMl   *float64  `json:"water_ml,omitempty"`
	Steps     *float64  `json:"steps,omitempty"`
	WeightKg  *float64  `json:"weight_kg,omitempty"`
	Mood      *float64  `json:"mood,omitempty"`
	Energy    *float64  `json:"energy,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
