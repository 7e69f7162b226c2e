// Package events defines the event payloads exchanged over Kafka.
package events

import "time"

// ActivityCreated is consumed when an upstream tracker accepts a workout.
// RPE and DistanceKm are optional; trackers that do not collect them omit
// the fields.
type ActivityCreated struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	StartedAt    time.Time `json:"started_at"`
	DurationMin  int       `json:"duration_min"`
	RPE          *float64  `json:"rpe,omitempty"`
	DistanceKm   *float64  `json:"distance_km,omitempty"`
	Source       string    `json:"source"`
	Version      string    `json:"version"`
}

// ActivityDeleted is consumed when an upstream workout or daily log was removed.
// SourceType is "workout" or "daily".
type ActivityDeleted struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	SourceType string    `json:"source_type"`
	DeletedAt  time.Time `json:"deleted_at"`
}
