package domain

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// WorkoutInput carries a workout to record. ID may be supplied by an
// upstream producer; otherwise one is generated.
type WorkoutInput struct {
	ID          string   `json:"id,omitempty"`
	Date        string   `json:"date"`
	Type        string   `json:"type"`
	DurationMin float64  `json:"duration_min"`
	RPE         float64  `json:"rpe"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// DailyLogInput carries the fields of a daily log for one date.
type DailyLogInput struct {
	Date     string   `json:"date"`
	SleepHrs *float64 `json:"sleep_hrs,omitempty"`
	WaterMl  *float64 `json:"water_ml,omitempty"`
	Steps    *float64 `json:"steps,omitempty"`
	WeightKg *float64 `json:"weight_kg,omitempty"`
	Mood     *float64 `json:"mood,omitempty"`
	Energy   *float64 `json:"energy,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// WorkoutOutcome is returned by RecordWorkout.
type WorkoutOutcome struct {
	Workout Workout     `json:"workout"`
	Award   AwardResult `json:"award"`
	Badges  []Badge     `json:"badges_unlocked"`
}

// DailyLogOutcome is returned by SaveDailyLog. Created is false when an
// existing log for the date was updated.
type DailyLogOutcome struct {
	Log     DailyLog    `json:"log"`
	Created bool        `json:"created"`
	Award   AwardResult `json:"award"`
	Badges  []Badge     `json:"badges_unlocked"`
}

// ChallengeOutcome is returned by CompleteChallenge.
type ChallengeOutcome struct {
	CompletionResult
	Badges []Badge `json:"badges_unlocked"`
}

// Progression summarises a user's XP state and badge collection.
type Progression struct {
	Aggregate Aggregate     `json:"aggregate"`
	Badges    []EarnedBadge `json:"badges"`
}

// Service wires the ledger, badge engine, coordinator and challenge manager
// into the user-facing pipelines. Each pipeline stops at the first failure;
// steps already applied stay applied.
type Service struct {
	Ledger      *Ledger
	Badges      *BadgeSyncer
	Coordinator *Coordinator
	Challenges  *Challenges

	activities ActivityRepository
	opts       options
}

// NewService builds every component over the same repositories.
func NewService(repos Repositories, cache AggregateCache, opts ...Option) *Service {
	ledger := NewLedger(repos.XpEvents, cache, opts...)
	return &Service{
		Ledger:      ledger,
		Badges:      NewBadgeSyncer(ledger, repos.Badges, repos.Activities, repos.UserChallenges, opts...),
		Coordinator: NewCoordinator(ledger, repos.Activities, opts...),
		Challenges:  NewChallenges(ledger, repos.Challenges, repos.UserChallenges, repos.Activities, opts...),
		activities:  repos.Activities,
		opts:        buildOptions(opts),
	}
}

// RecordWorkout stores the workout, credits its XP and syncs badges.
func (s *Service) RecordWorkout(ctx context.Context, userID string, in WorkoutInput) (WorkoutOutcome, error) {
	if strings.TrimSpace(userID) == "" {
		return WorkoutOutcome{}, ErrNoSession
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = s.opts.newID()
	}
	w := Workout{
		ID:          id,
		UserID:      userID,
		Date:        in.Date,
		Type:        strings.ToLower(strings.TrimSpace(in.Type)),
		DurationMin: in.DurationMin,
		RPE:         in.RPE,
		DistanceKm:  in.DistanceKm,
		Notes:       in.Notes,
		CreatedAt:   s.opts.now(),
	}
	if err := w.Validate(); err != nil {
		return WorkoutOutcome{}, err
	}
	stored, inserted, err := s.activities.CreateWorkout(ctx, w)
	if err != nil {
		return WorkoutOutcome{}, transport("workouts.create", err)
	}
	if !inserted {
		if stored.UserID != userID {
			return WorkoutOutcome{}, ErrActivityIDTaken
		}
		// replay of a stored workout: award what was persisted
		w = stored
	}

	out := WorkoutOutcome{Workout: w}
	award, err := s.Ledger.AwardWorkout(ctx, userID, w)
	if err != nil {
		return out, err
	}
	out.Award = award

	badges, err := s.Badges.EvaluateAndSync(ctx, userID)
	out.Badges = badges
	return out, err
}

// SaveDailyLog creates the log for the date or updates the existing one.
// XP is credited once per log: later edits keep the first amount.
func (s *Service) SaveDailyLog(ctx context.Context, userID string, in DailyLogInput) (DailyLogOutcome, error) {
	if strings.TrimSpace(userID) == "" {
		return DailyLogOutcome{}, ErrNoSession
	}
	log := DailyLog{
		UserID:   userID,
		Date:     in.Date,
		SleepHrs: in.SleepHrs,
		WaterMl:  in.WaterMl,
		Steps:    in.Steps,
		WeightKg: in.WeightKg,
		Mood:     in.Mood,
		Energy:   in.Energy,
		Notes:    in.Notes,
	}
	if err := log.Validate(); err != nil {
		return DailyLogOutcome{}, err
	}

	existing, err := s.activities.FindDailyLogByDate(ctx, userID, in.Date)
	if err != nil {
		return DailyLogOutcome{}, transport("daily_logs.find_by_date", err)
	}

	now := s.opts.now()
	out := DailyLogOutcome{}
	if existing == nil {
		log.ID = s.opts.newID()
		log.CreatedAt = now
		log.UpdatedAt = now
		if err := s.activities.CreateDailyLog(ctx, log); err != nil {
			if errors.Is(err, ErrDailyLogExists) {
				return DailyLogOutcome{}, err
			}
			return DailyLogOutcome{}, transport("daily_logs.create", err)
		}
		out.Created = true
	} else {
		log.ID = existing.ID
		log.CreatedAt = existing.CreatedAt
		log.UpdatedAt = now
		if err := s.activities.UpdateDailyLog(ctx, log); err != nil {
			return DailyLogOutcome{}, transport("daily_logs.update", err)
		}
	}
	out.Log = log

	award, err := s.Ledger.AwardDailyLog(ctx, userID, log)
	if err != nil {
		return out, err
	}
	out.Award = award

	badges, err := s.Badges.EvaluateAndSync(ctx, userID)
	out.Badges = badges
	return out, err
}

// DeleteActivity removes the activity and reconciles the ledger.
func (s *Service) DeleteActivity(ctx context.Context, userID string, sourceType SourceType, sourceID string) (CascadeResult, error) {
	return s.Coordinator.DeleteActivity(ctx, userID, sourceType, sourceID)
}

// CompleteChallenge completes the challenge and syncs badges, since a
// completion can unlock one.
func (s *Service) CompleteChallenge(ctx context.Context, userID, challengeID string) (ChallengeOutcome, error) {
	res, err := s.Challenges.Complete(ctx, userID, challengeID)
	out := ChallengeOutcome{CompletionResult: res}
	if err != nil {
		return out, err
	}
	badges, err := s.Badges.EvaluateAndSync(ctx, userID)
	out.Badges = badges
	return out, err
}

// Summary returns the user's aggregate and badge collection.
func (s *Service) Summary(ctx context.Context, userID string) (Progression, error) {
	agg, err := s.Ledger.Aggregate(ctx, userID)
	if err != nil {
		return Progression{}, err
	}
	badges, err := s.Badges.Earned(ctx, userID)
	if err != nil {
		return Progression{}, err
	}
	s.opts.logger.Debug("progression loaded", zap.String("user_id", userID), zap.Int("level", agg.Level))
	return Progression{Aggregate: agg, Badges: badges}, nil
}
