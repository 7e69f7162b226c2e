package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"example.com/gamification/internal/auth"
	"example.com/gamification/internal/domain"
)

// writeDomainError maps a service error onto a status and problem type.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrActivityNotFound), errors.Is(err, domain.ErrChallengeNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrChallengeInactive),
		errors.Is(err, domain.ErrNotJoined),
		errors.Is(err, domain.ErrChallengeIncomplete),
		errors.Is(err, domain.ErrDailyLogExists),
		errors.Is(err, domain.ErrActivityIDTaken),
		errors.Is(err, domain.ErrChallengeExists):
		return http.StatusConflict, "conflict"
	case domain.IsTransport(err):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// writeAuthError renders failures from the bearer-token middleware.
func writeAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	detail := "invalid bearer token"
	if errors.Is(err, auth.ErrMissingToken) {
		detail = "missing bearer token"
	}
	writeError(w, http.StatusUnauthorized, "unauthorized", detail)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
