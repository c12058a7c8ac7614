package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	powerstats "github.com/railmon/powerstats"
	"github.com/railmon/powerstats/internal/jobs"
	"github.com/railmon/powerstats/internal/log"
)

const (
	defaultHistoryLimit = 60
	maxHistoryLimit     = 1000
)

// handleSnapshot returns the latest complete snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.poller.Latest()
	if !ok {
		s.respondPending(w, r)
		return
	}
	s.serveCached(w, r, func() any { return snap })
}

// handleMeters returns the energy meter channel descriptors.
func (s *Server) handleMeters(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.poller.Latest()
	if !ok {
		s.respondPending(w, r)
		return
	}
	s.serveCached(w, r, func() any {
		meters := make([]powerstats.EnergyMeter, len(snap.Meters))
		for i, m := range snap.Meters {
			meters[i] = m.Meter
		}
		return meters
	})
}

// handleConsumers returns the energy consumer descriptors.
func (s *Server) handleConsumers(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.poller.Latest()
	if !ok {
		s.respondPending(w, r)
		return
	}
	s.serveCached(w, r, func() any {
		consumers := make([]powerstats.EnergyConsumer, len(snap.Consumers))
		for i, c := range snap.Consumers {
			consumers[i] = c.Consumer
		}
		return consumers
	})
}

// handleEntities returns the power entity descriptors with their
// state lists. Empty on the system service backend.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.poller.Latest()
	if !ok {
		s.respondPending(w, r)
		return
	}
	s.serveCached(w, r, func() any {
		entities := make([]powerstats.PowerEntity, len(snap.Entities))
		for i, e := range snap.Entities {
			entities[i] = e.Entity
		}
		return entities
	})
}

// handleHistory returns stored snapshots, newest first for limit
// queries and oldest first for range queries. ?since/?until (RFC 3339)
// select a range; otherwise ?limit picks the newest snapshots.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, http.StatusNotFound, errHistoryDisabled)
		return
	}

	q := r.URL.Query()
	if q.Has("since") || q.Has("until") {
		since, until, err := parseHistoryRange(q.Get("since"), q.Get("until"))
		if err != nil {
			respondError(w, r, http.StatusBadRequest, errInvalidInput, err.Error())
			return
		}
		snaps, err := s.history.Range(r.Context(), since, until)
		if err != nil {
			s.respondHistoryError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, snaps)
		return
	}

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, http.StatusBadRequest, errInvalidInput, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	snaps, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.respondHistoryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snaps)
}

func parseHistoryRange(since, until string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC()

	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("since: %w", err)
		}
		from = t
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("until: %w", err)
		}
		to = t
	}
	if !from.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("until precedes since")
	}
	return from, to, nil
}

func (s *Server) respondHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	log.WithComponentFromContext(r.Context(), "api").Error().
		Err(err).
		Str("event", "api.history_failed").
		Msg("history query failed")
	respondError(w, r, http.StatusInternalServerError, errInternal)
}

// handleRefresh triggers a poll cycle immediately. A cycle already in
// flight answers 409 with a Retry-After hint instead of queueing.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	start := time.Now()

	st, err := s.poller.PollNow(r.Context())
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		w.Header().Set("Retry-After", "30")
		respondError(w, r, http.StatusConflict, errPollInProgress)
		return
	case err != nil:
		logger.Error().
			Err(err).
			Str("event", "api.refresh_failed").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("manual refresh failed")
		respondError(w, r, http.StatusBadGateway, errHubUnavailable, err.Error())
		return
	}

	// Fresh data invalidates every cached payload.
	s.cache.Clear()

	logger.Info().
		Str("event", "api.refresh").
		Str("backend", st.Backend).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("manual refresh completed")
	writeJSON(w, r, http.StatusOK, st)
}

// respondPending answers 503 with a Retry-After of one poll interval.
func (s *Server) respondPending(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	interval := s.cfg.PollInterval
	s.mu.RUnlock()

	retry := int(interval / time.Second)
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	respondError(w, r, http.StatusServiceUnavailable, errSnapshotPending)
}
