package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/gamification/internal/auth"
	"example.com/gamification/internal/logging"
)

// NewRouter assembles the middleware stack and routes. /healthz and /metrics
// are served without authentication.
func NewRouter(h *Handler, authCfg auth.Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(authCfg, writeAuthError).Wrap)
		h.RegisterRoutes(r)
	})
	return r
}
