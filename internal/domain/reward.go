package domain

import (
	"math"
	"strings"
	"time"
)

const (
	workoutBaseXP         = 10
	workoutDurationCap    = 12
	workoutStrengthBonus  = 5
	xpPerLevel            = 100
	dailyLogFullXP        = 10
	dailyLogPartialXP     = 5
	dailyLogFullFields    = 3
	dailyLogPartialFields = 2
)

// CalculateWorkoutXp returns the XP earned by a workout. Non-finite duration
// or RPE values contribute no bonus.
func CalculateWorkoutXp(w Workout) int {
	duration := finiteOrZero(w.DurationMin)
	rpe := finiteOrZero(w.RPE)

	durationBonus := int(math.Floor(duration / 5))
	if durationBonus > workoutDurationCap {
		durationBonus = workoutDurationCap
	}

	rpeBonus := 0
	switch {
	case rpe >= 9:
		rpeBonus = 15
	case rpe >= 7 && rpe <= 8:
		rpeBonus = 10
	case rpe >= 4 && rpe <= 6:
		rpeBonus = 5
	}

	typeBonus := 0
	if w.Type == WorkoutStrength {
		typeBonus = workoutStrengthBonus
	}

	return workoutBaseXP + durationBonus + rpeBonus + typeBonus
}

// CalculateDailyLogXp rewards filling in sleep, water and steps.
func CalculateDailyLogXp(log DailyLog) int {
	filled := 0
	for _, v := range []*float64{log.SleepHrs, log.WaterMl, log.Steps} {
		if v != nil {
			filled++
		}
	}
	switch {
	case filled >= dailyLogFullFields:
		return dailyLogFullXP
	case filled >= dailyLogPartialFields:
		return dailyLogPartialXP
	default:
		return 0
	}
}

// LevelFromXp maps total XP onto the level staircase: every 100 XP is one level, starting at 1.
func LevelFromXp(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/xpPerLevel + 1
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Validate checks the workout fields the ledger and progress calculator rely on.
func (w Workout) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return invalid("id", "is required")
	}
	if err := validateDate("date", w.Date); err != nil {
		return err
	}
	if strings.TrimSpace(w.Type) == "" {
		return invalid("type", "is required")
	}
	if w.DurationMin < 0 {
		return invalid("duration_min", "must be >= 0")
	}
	if w.RPE < 0 || w.RPE > 10 {
		return invalid("rpe", "must be between 0 and 10")
	}
	if w.DistanceKm != nil {
		if math.IsNaN(*w.DistanceKm) || math.IsInf(*w.DistanceKm, 0) || *w.DistanceKm <= 0 {
			return invalid("distance_km", "must be > 0")
		}
	}
	return nil
}

// Validate applies the daily log ranges.
func (l DailyLog) Validate() error {
	if err := validateDate("date", l.Date); err != nil {
		return err
	}
	checks := []struct {
		field    string
		value    *float64
		min, max float64
	}{
		{"sleep_hrs", l.SleepHrs, 0, 24},
		{"water_ml", l.WaterMl, 0, 6000},
		{"steps", l.Steps, 0, 100000},
		{"weight_kg", l.WeightKg, 20, 300},
		{"mood", l.Mood, 1, 5},
		{"energy", l.Energy, 1, 5},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		v := *c.value
		if math.IsNaN(v) || math.IsInf(v, 0) || v < c.min || v > c.max {
			return invalid(c.field, "out of range")
		}
	}
	return nil
}

func validateDate(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return invalid(field, "must be YYYY-MM-DD")
	}
	return nil
}
