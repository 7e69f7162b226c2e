package events

import "time"

// XpAwarded is published when a new ledger event is recorded.
type XpAwarded struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	XP         int       `json:"xp"`
	CreatedAt  time.Time `json:"created_at"`
}

// XpRevoked is published when cascade cleanup deletes a ledger event.
type XpRevoked struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	XP         int       `json:"xp"`
	RevokedAt  time.Time `json:"revoked_at"`
}

// BadgeUnlocked is published once per (user, badge).
type BadgeUnlocked struct {
	UserID   string    `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// ChallengeCompleted is published when a participation moves to completed.
type ChallengeCompleted struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Event types written to the outbox.
const (
	TypeXpAwarded          = "xp.awarded"
	TypeXpRevoked          = "xp.revoked"
	TypeBadgeUnlocked      = "badge.unlocked"
	TypeChallengeCompleted = "challenge.completed"
	TypeActivityCreated    = "activity.created"
	TypeActivityDeleted    = "activity.deleted"
)
