package auth

import (
	"net/http"

	authlib "example.com/gamification/internal/platform/authlib"
)

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware. Liveness and metrics stay public;
// onError renders rejected requests.
func NewMiddleware(cfg Config, onError func(http.ResponseWriter, *http.Request, error)) Middleware {
	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	return Middleware{inner: authlib.NewMiddleware(cfg, skipper, onError)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
