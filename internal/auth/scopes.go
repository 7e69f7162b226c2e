package auth

// OAuth scopes accepted by the gamification API.
const (
	ScopeGamificationRead  = "gamification:read"
	ScopeGamificationWrite = "gamification:write"
	// ScopeGamificationAdmin manages challenge definitions. It grants nothing else.
	ScopeGamificationAdmin = "gamification:admin"
)

// Permits reports whether claims grant scope. The write scope includes read.
func Permits(claims *Claims, scope string) bool {
	if claims.HasScope(scope) {
		return true
	}
	return scope == ScopeGamificationRead && claims.HasScope(ScopeGamificationWrite)
}
