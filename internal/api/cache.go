package api

import (
	"encoding/json"
	"net/http"

	"github.com/railmon/powerstats/internal/log"
)

// cacheKey derives the response cache key from the request. The query
// string is included so parameterized endpoints do not collide.
func cacheKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return "api:" + r.URL.Path
	}
	return "api:" + r.URL.Path + "?" + r.URL.RawQuery
}

// serveCached writes a JSON payload from the response cache, rendering
// and storing it on a miss. Only successful payloads are cached; error
// responses always bypass the cache.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, render func() any) {
	key := cacheKey(r)

	if body, ok := s.cache.Get(key); ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
		return
	}

	body, err := json.Marshal(render())
	if err != nil {
		log.WithComponentFromContext(r.Context(), "api").Error().
			Err(err).
			Str("event", "api.encode_error").
			Msg("failed to render payload")
		respondError(w, r, http.StatusInternalServerError, errInternal)
		return
	}

	s.mu.RLock()
	ttl := s.cfg.Cache.TTL
	s.mu.RUnlock()
	if ttl > 0 {
		s.cache.Set(key, body, ttl)
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
