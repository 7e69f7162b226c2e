package domain

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Validate checks a challenge definition.
func (c Challenge) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return invalid("title", "is required")
	}
	if strings.TrimSpace(string(c.Type)) == "" {
		return invalid("type", "is required")
	}
	if c.StartDate == "" || c.EndDate == "" {
		return invalid("period", "start_date and end_date are required")
	}
	if err := validateDate("start_date", c.StartDate); err != nil {
		return err
	}
	if err := validateDate("end_date", c.EndDate); err != nil {
		return err
	}
	if c.EndDate < c.StartDate {
		return invalid("end_date", "must not be before start_date")
	}
	if math.IsNaN(c.Target) || math.IsInf(c.Target, 0) || c.Target <= 0 {
		return invalid("target", "must be > 0")
	}
	if c.XPReward < 0 {
		return invalid("xp_reward", "must be >= 0")
	}
	if c.Type == ChallengeDailyWaterDays {
		if c.ThresholdMl == nil || math.IsNaN(*c.ThresholdMl) || *c.ThresholdMl <= 0 {
			return invalid("threshold_ml", "must be > 0 for daily_water_days")
		}
	} else if c.ThresholdMl != nil {
		return invalid("threshold_ml", "only applies to daily_water_days")
	}
	return nil
}

// ChallengeView pairs a challenge with the user's participation and progress.
type ChallengeView struct {
	Challenge     Challenge      `json:"challenge"`
	Participation *UserChallenge `json:"participation,omitempty"`
	Progress      Progress       `json:"progress"`
}

// CompletionResult is returned by Complete.
type CompletionResult struct {
	Participation UserChallenge `json:"participation"`
	Progress      Progress      `json:"progress"`
	Award         AwardResult   `json:"award"`
}

// Challenges manages joining and completing challenges.
type Challenges struct {
	ledger         *Ledger
	challenges     ChallengeRepository
	userChallenges UserChallengeRepository
	activities     ActivityRepository
	opts           options
}

// NewChallenges constructs the challenge service.
func NewChallenges(ledger *Ledger, challenges ChallengeRepository, userChallenges UserChallengeRepository, activities ActivityRepository, opts ...Option) *Challenges {
	return &Challenges{
		ledger:         ledger,
		challenges:     challenges,
		userChallenges: userChallenges,
		activities:     activities,
		opts:           buildOptions(opts),
	}
}

// ListActive returns the active challenges.
func (s *Challenges) ListActive(ctx context.Context) ([]Challenge, error) {
	items, err := s.challenges.ListActive(ctx)
	if err != nil {
		return nil, transport("challenges.list_active", err)
	}
	return items, nil
}

// Create validates and stores a new challenge definition. An empty id is
// generated; a supplied id must not be stored yet.
func (s *Challenges) Create(ctx context.Context, ch Challenge) (Challenge, error) {
	ch.ID = strings.TrimSpace(ch.ID)
	ch.Title = strings.TrimSpace(ch.Title)
	if err := ch.Validate(); err != nil {
		return Challenge{}, err
	}
	if ch.ID == "" {
		ch.ID = s.opts.newID()
	} else {
		existing, err := s.challenges.Get(ctx, ch.ID)
		if err != nil {
			return Challenge{}, transport("challenges.get", err)
		}
		if existing != nil {
			return Challenge{}, ErrChallengeExists
		}
	}
	ch.CreatedAt = s.opts.now()
	if err := s.challenges.Save(ctx, ch); err != nil {
		return Challenge{}, transport("challenges.save", err)
	}
	s.opts.logger.Info("challenge created",
		zap.String("challenge_id", ch.ID),
		zap.String("type", string(ch.Type)),
		zap.Bool("active", ch.IsActive),
	)
	return ch, nil
}

// SetActive opens or closes a challenge for joining. Existing participations
// are untouched.
func (s *Challenges) SetActive(ctx context.Context, challengeID string, active bool) (Challenge, error) {
	ch, err := s.get(ctx, challengeID)
	if err != nil {
		return Challenge{}, err
	}
	if ch.IsActive == active {
		return *ch, nil
	}
	ch.IsActive = active
	if err := s.challenges.Save(ctx, *ch); err != nil {
		return Challenge{}, transport("challenges.save", err)
	}
	return *ch, nil
}

// Join enrolls the user once per challenge.
func (s *Challenges) Join(ctx context.Context, userID, challengeID string) (UserChallenge, error) {
	if strings.TrimSpace(userID) == "" {
		return UserChallenge{}, ErrNoSession
	}
	ch, err := s.get(ctx, challengeID)
	if err != nil {
		return UserChallenge{}, err
	}
	if !ch.IsActive {
		return UserChallenge{}, ErrChallengeInactive
	}

	if existing, err := s.participation(ctx, userID, challengeID); err != nil || existing != nil {
		if err != nil {
			return UserChallenge{}, err
		}
		return *existing, nil
	}

	uc := UserChallenge{
		ID:          s.opts.newID(),
		UserID:      userID,
		ChallengeID: challengeID,
		Status:      ChallengeActive,
		JoinedAt:    s.opts.now(),
	}
	stored, _, err := s.userChallenges.InsertIfAbsent(ctx, uc)
	if err != nil {
		return UserChallenge{}, transport("user_challenges.insert", err)
	}
	return stored, nil
}

// Progress measures the challenge for the user.
func (s *Challenges) Progress(ctx context.Context, userID, challengeID string) (ChallengeView, error) {
	if strings.TrimSpace(userID) == "" {
		return ChallengeView{}, ErrNoSession
	}
	ch, err := s.get(ctx, challengeID)
	if err != nil {
		return ChallengeView{}, err
	}
	uc, err := s.participation(ctx, userID, challengeID)
	if err != nil {
		return ChallengeView{}, err
	}
	progress, err := s.measure(ctx, userID, *ch)
	if err != nil {
		return ChallengeView{}, err
	}
	return ChallengeView{Challenge: *ch, Participation: uc, Progress: progress}, nil
}

// Complete marks a joined challenge completed once its target is reached and
// credits the reward. Completing twice is a no-op with a zero delta.
func (s *Challenges) Complete(ctx context.Context, userID, challengeID string) (CompletionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return CompletionResult{}, ErrNoSession
	}
	ch, err := s.get(ctx, challengeID)
	if err != nil {
		return CompletionResult{}, err
	}
	uc, err := s.participation(ctx, userID, challengeID)
	if err != nil {
		return CompletionResult{}, err
	}
	if uc == nil {
		return CompletionResult{}, ErrNotJoined
	}

	progress, err := s.measure(ctx, userID, *ch)
	if err != nil {
		return CompletionResult{}, err
	}

	if uc.Status == ChallengeActive {
		if !progress.IsComplete {
			return CompletionResult{Participation: *uc, Progress: progress}, ErrChallengeIncomplete
		}
		updated, _, err := s.userChallenges.MarkCompleted(ctx, uc.ID, s.opts.now())
		if err != nil {
			return CompletionResult{}, transport("user_challenges.mark_completed", err)
		}
		uc = &updated
	}

	award, err := s.ledger.AwardChallenge(ctx, userID, *ch)
	if err != nil {
		return CompletionResult{}, err
	}
	if award.Delta > 0 {
		s.opts.logger.Info("challenge completed",
			zap.String("user_id", userID),
			zap.String("challenge_id", challengeID),
			zap.Int("xp", award.Delta),
		)
	}
	return CompletionResult{Participation: *uc, Progress: progress, Award: award}, nil
}

func (s *Challenges) measure(ctx context.Context, userID string, ch Challenge) (Progress, error) {
	workouts, err := s.activities.ListWorkouts(ctx, userID)
	if err != nil {
		return Progress{}, transport("workouts.list", err)
	}
	logs, err := s.activities.ListDailyLogs(ctx, userID)
	if err != nil {
		return Progress{}, transport("daily_logs.list", err)
	}
	progress := ComputeProgress(ch, Activities{Workouts: workouts, DailyLogs: logs})
	if progress.Unsupported {
		s.opts.logger.Warn("unsupported challenge type",
			zap.String("challenge_id", ch.ID),
			zap.String("type", string(ch.Type)),
		)
	}
	return progress, nil
}

func (s *Challenges) get(ctx context.Context, challengeID string) (*Challenge, error) {
	if strings.TrimSpace(challengeID) == "" {
		return nil, invalid("challenge_id", "is required")
	}
	ch, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, transport("challenges.get", err)
	}
	if ch == nil {
		return nil, ErrChallengeNotFound
	}
	return ch, nil
}

func (s *Challenges) participation(ctx context.Context, userID, challengeID string) (*UserChallenge, error) {
	rows, err := s.userChallenges.FindByChallenge(ctx, userID, challengeID)
	if err != nil {
		return nil, transport("user_challenges.find", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		reportViolation(s.opts.logger, "user_challenges", userID+":"+challengeID, len(rows))
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	}
	uc := rows[0]
	return &uc, nil
}
