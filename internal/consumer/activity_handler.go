package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/events"
)

// ActivityHandler credits and revokes XP for workouts and daily logs tracked
// by an upstream activity service.
type ActivityHandler struct {
	svc    *domain.Service
	logger *zap.Logger
}

// NewActivityHandler constructs a handler over the gamification service.
func NewActivityHandler(svc *domain.Service, logger *zap.Logger) *ActivityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityHandler{svc: svc, logger: logger}
}

// Handle applies one event. Events that can never succeed are acknowledged
// and counted; store failures are returned so the record is not committed.
func (h *ActivityHandler) Handle(ctx context.Context, msg Message) error {
	var err error
	switch msg.EventType {
	case events.TypeActivityCreated:
		err = h.created(ctx, msg)
	case events.TypeActivityDeleted:
		err = h.deleted(ctx, msg)
	default:
		recordSkipped(msg, "unsupported")
		return nil
	}

	if err != nil && !domain.IsTransport(err) {
		h.logger.Warn("activity event rejected",
			zap.String("event_type", msg.EventType),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		recordSkipped(msg, "rejected")
		return nil
	}
	return err
}

func (h *ActivityHandler) created(ctx context.Context, msg Message) error {
	var evt events.ActivityCreated
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	if evt.StartedAt.IsZero() {
		return errors.New("started_at is required")
	}

	in := domain.WorkoutInput{
		ID:          evt.ActivityID,
		Date:        evt.StartedAt.UTC().Format(domain.DateLayout),
		Type:        evt.ActivityType,
		DurationMin: float64(evt.DurationMin),
		DistanceKm:  evt.DistanceKm,
	}
	if evt.RPE != nil {
		in.RPE = *evt.RPE
	}

	out, err := h.svc.RecordWorkout(ctx, evt.UserID, in)
	if err != nil {
		return err
	}
	h.logger.Debug("activity credited",
		zap.String("user_id", evt.UserID),
		zap.String("activity_id", evt.ActivityID),
		zap.Int("xp", out.Award.Delta),
		zap.Bool("replay", out.Award.Replay),
	)
	return nil
}

func (h *ActivityHandler) deleted(ctx context.Context, msg Message) error {
	var evt events.ActivityDeleted
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	sourceType := domain.SourceType(evt.SourceType)
	if sourceType == "" {
		sourceType = domain.SourceWorkout
	}

	if evt.UserID != "" {
		_, err := h.svc.DeleteActivity(ctx, evt.UserID, sourceType, evt.ActivityID)
		if err == nil || !errors.Is(err, domain.ErrActivityNotFound) {
			return err
		}
	}
	// no local copy: only the ledger needs cleaning
	_, err := h.svc.Coordinator.OnActivityDeleted(ctx, sourceType, evt.ActivityID)
	return err
}
