package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/railmon/powerstats/internal/log"
)

// extractToken pulls the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// authorizeToken returns true if got matches expected using a
// constant-time comparison. Empty tokens never authorize.
func authorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// requireAuth enforces bearer authentication on the API routes when a
// token is configured. An empty configured token leaves the API open;
// the probes and /metrics are mounted outside this middleware either way.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		token := s.cfg.APIToken
		s.mu.RUnlock()

		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		logger := log.WithComponentFromContext(r.Context(), "auth")

		reqToken := extractToken(r)
		if reqToken == "" {
			logger.Warn().Str("event", "auth.missing_header").Msg("authorization header missing")
			respondError(w, r, http.StatusUnauthorized, errUnauthorized)
			return
		}

		if !authorizeToken(reqToken, token) {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid api token")
			respondError(w, r, http.StatusUnauthorized, errUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
