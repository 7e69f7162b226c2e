package domain

// Badge identifiers in catalog order.
const (
	BadgeFirstLog          = "first_log"
	BadgeSevenLogs         = "seven_logs"
	BadgeFirstWorkout      = "first_workout"
	BadgeRun10Km           = "run_10km"
	BadgeLevel5            = "level_5"
	BadgeChallengeComplete = "challenge_complete"
)

var badgeCatalog = []Badge{
	{ID: BadgeFirstLog, Name: "First Step", Description: "You created your first daily log.", Hint: "Create 1 daily log.", Icon: "🗓️"},
	{ID: BadgeSevenLogs, Name: "Consistency", Description: "You created 7 daily logs.", Hint: "Create 7 daily logs.", Icon: "🔥"},
	{ID: BadgeFirstWorkout, Name: "On the Move", Description: "You logged your first workout.", Hint: "Log 1 workout.", Icon: "🏋️"},
	{ID: BadgeRun10Km, Name: "Runner", Description: "You ran 10 km in total.", Hint: "Run a total of 10 km.", Icon: "🏃"},
	{ID: BadgeLevel5, Name: "Level 5", Description: "You reached level 5.", Hint: "Reach level 5.", Icon: "⭐"},
	{ID: BadgeChallengeComplete, Name: "Challenger", Description: "You completed a challenge.", Hint: "Complete 1 challenge.", Icon: "🎯"},
}

// BadgeCatalog returns a copy of the static badge catalog in declared order.
func BadgeCatalog() []Badge {
	out := make([]Badge, len(badgeCatalog))
	copy(out, badgeCatalog)
	return out
}

// BadgeByID looks a badge up in the catalog.
func BadgeByID(id string) (Badge, bool) {
	for _, b := range badgeCatalog {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// BadgeStats are the aggregate counters badge rules are evaluated against.
// A zero Level is read as level 1.
type BadgeStats struct {
	DailyLogsCount           int
	WorkoutsCount            int
	RunDistanceKmTotal       float64
	Level                    int
	CompletedChallengesCount int
}

type badgeRule struct {
	id   string
	test func(BadgeStats) bool
}

// rules follow catalog order so the output order is stable.
var badgeRules = []badgeRule{
	{BadgeFirstLog, func(s BadgeStats) bool { return s.DailyLogsCount >= 1 }},
	{BadgeSevenLogs, func(s BadgeStats) bool { return s.DailyLogsCount >= 7 }},
	{BadgeFirstWorkout, func(s BadgeStats) bool { return s.WorkoutsCount >= 1 }},
	{BadgeRun10Km, func(s BadgeStats) bool { return finiteOrZero(s.RunDistanceKmTotal) >= 10 }},
	{BadgeLevel5, func(s BadgeStats) bool { return s.Level >= 5 }},
	{BadgeChallengeComplete, func(s BadgeStats) bool { return s.CompletedChallengesCount >= 1 }},
}

// EvaluateBadges returns the ids of badges whose condition holds and which
// are not in earned. Already earned ids are skipped whether or not their
// condition still holds.
func EvaluateBadges(stats BadgeStats, earned []string) []string {
	if stats.Level <= 0 {
		stats.Level = 1
	}
	have := make(map[string]struct{}, len(earned))
	for _, id := range earned {
		have[id] = struct{}{}
	}

	unlocked := make([]string, 0)
	for _, rule := range badgeRules {
		if _, ok := have[rule.id]; ok {
			continue
		}
		if rule.test(stats) {
			unlocked = append(unlocked, rule.id)
		}
	}
	return unlocked
}
