package middleware

import "net/http"

// SessionChecker reports whether a manager session is currently open.
type SessionChecker interface {
	Authenticated() bool
}

// RequireManager rejects requests that arrive without an open manager
// session. The session is device-wide, so there is no per-request token;
// the gate's stored session is the single source of truth.
func RequireManager(sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessions.Authenticated() {
				http.Error(w, "Manager session required", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
