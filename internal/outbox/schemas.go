package outbox

// xpLedgerSchema covers both xp.awarded and xp.revoked, which share a topic
// and therefore a subject.
const xpLedgerSchema = `{
  "type": "object",
  "title": "XpLedgerEvent",
  "properties": {
    "event_id": {"type": "string"},
    "user_id": {"type": "string"},
    "source_type": {"type": "string", "enum": ["workout", "daily", "challenge"]},
    "source_id": {"type": "string"},
    "xp": {"type": "integer", "minimum": 0},
    "created_at": {"type": "string", "format": "date-time"},
    "revoked_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "user_id", "source_type", "source_id", "xp"],
  "additionalProperties": false
}`

const badgeUnlockedSchema = `{
  "type": "object",
  "title": "BadgeUnlocked",
  "properties": {
    "user_id": {"type": "string"},
    "badge_id": {"type": "string"},
    "earned_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "badge_id", "earned_at"],
  "additionalProperties": false
}`

const challengeCompletedSchema = `{
  "type": "object",
  "title": "ChallengeCompleted",
  "properties": {
    "user_id": {"type": "string"},
    "challenge_id": {"type": "string"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "challenge_id", "completed_at"],
  "additionalProperties": false
}`
