package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermits(t *testing.T) {
	scoped := func(scopes ...string) *Claims {
		c := &Claims{Subject: "user-1", Scopes: map[string]struct{}{}}
		for _, s := range scopes {
			c.Scopes[s] = struct{}{}
		}
		return c
	}

	assert.True(t, Permits(scoped(ScopeGamificationRead), ScopeGamificationRead))
	assert.True(t, Permits(scoped(ScopeGamificationWrite), ScopeGamificationRead))
	assert.False(t, Permits(scoped(ScopeGamificationRead), ScopeGamificationWrite))
	assert.False(t, Permits(scoped(), ScopeGamificationRead))
	assert.True(t, Permits(scoped(ScopeGamificationAdmin), ScopeGamificationAdmin))
	assert.False(t, Permits(scoped(ScopeGamificationAdmin), ScopeGamificationWrite))
	assert.False(t, Permits(scoped(ScopeGamificationWrite), ScopeGamificationAdmin))
	assert.False(t, Permits(nil, ScopeGamificationWrite))
}
