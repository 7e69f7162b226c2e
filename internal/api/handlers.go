// Package api exposes HTTP handlers for the gamification service.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"example.com/gamification/internal/auth"
	"example.com/gamification/internal/domain"
	"example.com/gamification/internal/persistence"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, validate: newValidator(), logger: logger}
}

// RegisterRoutes wires the authenticated /v1 endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/me/progression", h.progression)
		r.Get("/me/xp-events", h.xpEvents)

		r.Post("/workouts", h.recordWorkout)
		r.Post("/daily-logs", h.saveDailyLog)
		r.Delete("/activities/{sourceType}/{sourceID}", h.deleteActivity)

		r.Get("/badges", h.badges)
		r.Post("/badges/sync", h.syncBadges)

		r.Route("/challenges", func(r chi.Router) {
			r.Get("/", h.listChallenges)
			r.Post("/", h.createChallenge)
			r.Patch("/{id}", h.setChallengeState)
			r.Post("/{id}/join", h.joinChallenge)
			r.Get("/{id}/progress", h.challengeProgress)
			r.Post("/{id}/complete", h.completeChallenge)
		})
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) progression(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationRead)
	if !ok {
		return
	}
	progression, err := h.service.Summary(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progression)
}

func (h *Handler) xpEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationRead)
	if !ok {
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	events, next, err := h.service.Ledger.Events(r.Context(), userID, cursor, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, XpEventsResponse{Items: events, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) recordWorkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationWrite)
	if !ok {
		return
	}
	var req WorkoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.RecordWorkout(r.Context(), userID, req.toInput())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if out.Award.Replay {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

func (h *Handler) saveDailyLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationWrite)
	if !ok {
		return
	}
	var req DailyLogRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.service.SaveDailyLog(r.Context(), userID, req.toInput())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationWrite)
	if !ok {
		return
	}
	sourceType := domain.SourceType(chi.URLParam(r, "sourceType"))
	sourceID := chi.URLParam(r, "sourceID")

	result, err := h.service.DeleteActivity(r.Context(), userID, sourceType, sourceID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) badges(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationRead)
	if !ok {
		return
	}
	earned, err := h.service.Badges.Earned(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BadgesResponse{Items: earned})
}

func (h *Handler) syncBadges(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationWrite)
	if !ok {
		return
	}
	unlocked, err := h.service.Badges.EvaluateAndSync(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncBadgesResponse{Unlocked: unlocked})
}

func (h *Handler) listChallenges(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, auth.ScopeGamificationRead); !ok {
		return
	}
	items, err := h.service.Challenges.ListActive(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChallengesResponse{Items: items})
}

func (h *Handler) createChallenge(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, auth.ScopeGamificationAdmin); !ok {
		return
	}
	var req ChallengeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ch, err := h.service.Challenges.Create(r.Context(), req.toChallenge())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

func (h *Handler) setChallengeState(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, auth.ScopeGamificationAdmin); !ok {
		return
	}
	var req ChallengeStateRequest
	if !h.decode(w, r, &req) {
		return
	}
	ch, err := h.service.Challenges.SetActive(r.Context(), chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Handler) joinChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationWrite)
	if !ok {
		return
	}
	uc, err := h.service.Challenges.Join(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, uc)
}

func (h *Handler) challengeProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationRead)
	if !ok {
		return
	}
	view, err := h.service.Challenges.Progress(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) completeChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorize(w, r, auth.ScopeGamificationWrite)
	if !ok {
		return
	}
	out, err := h.service.CompleteChallenge(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// authorize resolves the caller and checks the scope.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Subject == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if !auth.Permits(claims, scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return "", false
	}
	return claims.Subject, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return false
	}
	return true
}
