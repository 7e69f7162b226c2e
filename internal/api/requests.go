package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"example.com/gamification/internal/domain"
)

// WorkoutRequest is the payload for POST /v1/workouts.
type WorkoutRequest struct {
	ID          string   `json:"id,omitempty" validate:"omitempty,max=64"`
	Date        string   `json:"date" validate:"required,datetime=2006-01-02"`
	Type        string   `json:"type" validate:"required,max=32"`
	DurationMin float64  `json:"duration_min" validate:"gte=0,lte=1440"`
	RPE         float64  `json:"rpe" validate:"gte=0,lte=10"`
	DistanceKm  *float64 `json:"distance_km,omitempty" validate:"omitempty,gt=0"`
	Notes       string   `json:"notes,omitempty" validate:"max=2000"`
}

func (r WorkoutRequest) toInput() domain.WorkoutInput {
	return domain.WorkoutInput{
		ID:          r.ID,
		Date:        r.Date,
		Type:        r.Type,
		DurationMin: r.DurationMin,
		RPE:         r.RPE,
		DistanceKm:  r.DistanceKm,
		Notes:       r.Notes,
	}
}

// DailyLogRequest is the payload for POST /v1/daily-logs.
type DailyLogRequest struct {
	Date     string   `json:"date" validate:"required,datetime=2006-01-02"`
	SleepHrs *float64 `json:"sleep_hrs,omitempty" validate:"omitempty,gte=0,lte=24"`
	WaterMl  *float64 `json:"water_ml,omitempty" validate:"omitempty,gte=0,lte=6000"`
	Steps    *float64 `json:"steps,omitempty" validate:"omitempty,gte=0,lte=100000"`
	WeightKg *float64 `json:"weight_kg,omitempty" validate:"omitempty,gte=20,lte=300"`
	Mood     *float64 `json:"mood,omitempty" validate:"omitempty,gte=1,lte=5"`
	Energy   *float64 `json:"energy,omitempty" validate:"omitempty,gte=1,lte=5"`
	Notes    string   `json:"notes,omitempty" validate:"max=2000"`
}

func (r DailyLogRequest) toInput() domain.DailyLogInput {
	return domain.DailyLogInput{
		Date:     r.Date,
		SleepHrs: r.SleepHrs,
		WaterMl:  r.WaterMl,
		Steps:    r.Steps,
		WeightKg: r.WeightKg,
		Mood:     r.Mood,
		Energy:   r.Energy,
		Notes:    r.Notes,
	}
}

// ChallengeRequest is the payload for POST /v1/challenges. IsActive
// defaults to true.
type ChallengeRequest struct {
	ID          string   `json:"id,omitempty" validate:"omitempty,max=64"`
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description,omitempty" validate:"max=2000"`
	Type        string   `json:"type" validate:"required,oneof=workouts_count workouts_minutes run_distance_km daily_water_days"`
	Target      float64  `json:"target" validate:"gt=0"`
	ThresholdMl *float64 `json:"threshold_ml,omitempty" validate:"omitempty,gt=0"`
	StartDate   string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	XPReward    int      `json:"xp_reward" validate:"gte=0,lte=10000"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

func (r ChallengeRequest) toChallenge() domain.Challenge {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return domain.Challenge{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Type:        domain.ChallengeType(r.Type),
		Target:      r.Target,
		ThresholdMl: r.ThresholdMl,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		XPReward:    r.XPReward,
		IsActive:    active,
	}
}

// ChallengeStateRequest is the payload for PATCH /v1/challenges/{id}.
type ChallengeStateRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// XpEventsResponse is one page of the caller's ledger.
type XpEventsResponse struct {
	Items      []domain.XpEvent `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// BadgesResponse lists the catalog with the caller's award state.
type BadgesResponse struct {
	Items []domain.EarnedBadge `json:"items"`
}

// SyncBadgesResponse lists the badges unlocked by a sync.
type SyncBadgesResponse struct {
	Unlocked []domain.Badge `json:"unlocked"`
}

// ChallengesResponse lists active challenges.
type ChallengesResponse struct {
	Items []domain.Challenge `json:"items"`
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
