package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Activities are the user's records a challenge is measured against.
type Activities struct {
	Workouts  []Workout
	DailyLogs []DailyLog
}

// Progress is the measured state of a challenge.
type Progress struct {
	Current     float64 `json:"current"`
	Target      float64 `json:"target"`
	IsComplete  bool    `json:"is_complete"`
	Label       string  `json:"label"`
	Unsupported bool    `json:"unsupported,omitempty"`
}

// ComputeProgress measures a challenge over the activities dated inside its
// inclusive [StartDate, EndDate] range. YYYY-MM-DD strings compare
// chronologically, so the range check is a plain string comparison.
func ComputeProgress(ch Challenge, acts Activities) Progress {
	target := finiteOrZero(ch.Target)
	if ch.StartDate == "" || ch.EndDate == "" {
		return Progress{Target: target, Label: "no period defined"}
	}

	inRange := func(date string) bool {
		return date >= ch.StartDate && date <= ch.EndDate
	}

	switch ch.Type {
	case ChallengeWorkoutsCount:
		count := 0
		for _, w := range acts.Workouts {
			if inRange(w.Date) {
				count++
			}
		}
		current := float64(count)
		return Progress{
			Current:    current,
			Target:     target,
			IsComplete: current >= target,
			Label:      fmt.Sprintf("%d/%s workouts", count, formatNumber(target)),
		}

	case ChallengeWorkoutsMinutes:
		current := 0.0
		for _, w := range acts.Workouts {
			if inRange(w.Date) {
				current += finiteOrZero(w.DurationMin)
			}
		}
		return Progress{
			Current:    current,
			Target:     target,
			IsComplete: current >= target,
			Label:      fmt.Sprintf("%s/%s min", formatNumber(current), formatNumber(target)),
		}

	case ChallengeRunDistanceKm:
		current := 0.0
		for _, w := range acts.Workouts {
			if w.Type != WorkoutRun || !inRange(w.Date) || w.DistanceKm == nil {
				continue
			}
			current += finiteOrZero(*w.DistanceKm)
		}
		// rounding is for the label only; completion uses the raw sum
		shown := math.Round(current*10) / 10
		return Progress{
			Current:    current,
			Target:     target,
			IsComplete: current >= target,
			Label:      fmt.Sprintf("%s/%s km", formatNumber(shown), formatNumber(target)),
		}
	}

	return Progress{Target: target, Label: "unsupported challenge type", Unsupported: true}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
