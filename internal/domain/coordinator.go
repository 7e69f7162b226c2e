package domain

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// CascadeResult reports what a deletion cascade removed and the
// reconciled aggregates of the affected users.
type CascadeResult struct {
	SourceType SourceType  `json:"source_type"`
	SourceID   string      `json:"source_id"`
	Removed    []XpEvent   `json:"removed"`
	Aggregates []Aggregate `json:"aggregates"`
}

// Coordinator keeps the ledger consistent with activity deletions. Badges
// are never revoked here.
type Coordinator struct {
	ledger     *Ledger
	activities ActivityRepository
	opts       options
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(ledger *Ledger, activities ActivityRepository, opts ...Option) *Coordinator {
	return &Coordinator{ledger: ledger, activities: activities, opts: buildOptions(opts)}
}

// DeleteActivity deletes the user's workout or daily log, then cleans up and
// reconciles the ledger. The steps are not atomic as a whole: a failure after
// the activity delete leaves the ledger as it is.
func (c *Coordinator) DeleteActivity(ctx context.Context, userID string, sourceType SourceType, sourceID string) (CascadeResult, error) {
	if strings.TrimSpace(userID) == "" {
		return CascadeResult{}, ErrNoSession
	}
	if strings.TrimSpace(sourceID) == "" {
		return CascadeResult{}, invalid("source_id", "is required")
	}

	var (
		deleted bool
		err     error
	)
	switch sourceType {
	case SourceWorkout:
		deleted, err = c.activities.DeleteWorkout(ctx, userID, sourceID)
		err = transport("workouts.delete", err)
	case SourceDaily:
		deleted, err = c.activities.DeleteDailyLog(ctx, userID, sourceID)
		err = transport("daily_logs.delete", err)
	default:
		return CascadeResult{}, invalid("source_type", "must be workout or daily")
	}
	if err != nil {
		return CascadeResult{}, err
	}
	if !deleted {
		return CascadeResult{}, ErrActivityNotFound
	}

	return c.reconcile(ctx, sourceType, sourceID, userID)
}

// OnActivityDeleted cleans up after an activity that was already deleted
// elsewhere.
func (c *Coordinator) OnActivityDeleted(ctx context.Context, sourceType SourceType, sourceID string) (CascadeResult, error) {
	if sourceType != SourceWorkout && sourceType != SourceDaily {
		return CascadeResult{}, invalid("source_type", "must be workout or daily")
	}
	return c.reconcile(ctx, sourceType, sourceID, "")
}

func (c *Coordinator) reconcile(ctx context.Context, sourceType SourceType, sourceID, callerID string) (CascadeResult, error) {
	result := CascadeResult{SourceType: sourceType, SourceID: sourceID}

	removed, err := c.ledger.RemoveBySource(ctx, sourceType, sourceID)
	result.Removed = removed
	if err != nil {
		return result, err
	}

	users := affectedUsers(removed, callerID)
	for _, userID := range users {
		// full recompute rather than subtracting the removed amount
		agg, err := c.ledger.Recompute(ctx, userID)
		if err != nil {
			return result, err
		}
		result.Aggregates = append(result.Aggregates, agg)
	}

	c.opts.logger.Info("activity cascade complete",
		zap.String("source_type", string(sourceType)),
		zap.String("source_id", sourceID),
		zap.Int("events_removed", len(removed)),
		zap.Strings("users", users),
	)
	return result, nil
}

func affectedUsers(events []XpEvent, callerID string) []string {
	seen := make(map[string]struct{})
	if callerID != "" {
		seen[callerID] = struct{}{}
	}
	for _, ev := range events {
		seen[ev.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
