package auth

import (
	"net/http"
	"strings"
)

// Skipper exempts a request from authentication.
type Skipper func(r *http.Request) bool

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware rejects requests without a valid bearer token and stores the
// claims of accepted ones on the request context.
type Middleware struct {
	cfg     Config
	skip    Skipper
	onError ErrorWriter
}

// NewMiddleware builds a Middleware. skip and onError may be nil; the
// default error writer answers 401 with a plain text body.
func NewMiddleware(cfg Config, skip Skipper, onError ErrorWriter) Middleware {
	if skip == nil {
		skip = func(*http.Request) bool { return false }
	}
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return Middleware{cfg: cfg, skip: skip, onError: onError}
}

// Wrap applies the middleware to next.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r) {
			next.ServeHTTP(w, r)
			return
		}
		token, err := bearerToken(r)
		var claims *Claims
		if err == nil {
			claims, err = Parse(token, m.cfg)
		}
		if err != nil {
			m.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrInvalidToken
	}
	return token, nil
}
