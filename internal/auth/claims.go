// Package auth adapts the shared bearer-token library to the gamification API.
package auth

import (
	"context"

	authlib "example.com/gamification/internal/platform/authlib"
)

type (
	// Claims is the verified caller identity.
	Claims = authlib.Claims
	// Config holds token verification settings.
	Config = authlib.Config
)

// Token errors, for status mapping.
var (
	ErrMissingToken = authlib.ErrMissingToken
	ErrInvalidToken = authlib.ErrInvalidToken
)

// FromContext returns the claims of an authenticated request.
func FromContext(ctx context.Context) (*Claims, bool) {
	return authlib.FromContext(ctx)
}
