// Package api provides the powerstats HTTP API server: snapshot and
// descriptor endpoints, history queries, on-demand poll triggers and
// the health and metrics surfaces.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/railmon/powerstats/internal/api/middleware"
	"github.com/railmon/powerstats/internal/cache"
	"github.com/railmon/powerstats/internal/config"
	"github.com/railmon/powerstats/internal/health"
	"github.com/railmon/powerstats/internal/jobs"
	"github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/store"
)

// Options wires the server's collaborators.
type Options struct {
	Config config.Config
	Poller *jobs.Poller
	// History serves /api/v1/history; nil returns 404 there.
	History *store.History
	// Cache holds rendered payloads for hot endpoints; nil disables caching.
	Cache  cache.Cache
	Health *health.Manager
}

// Server is the powerstats HTTP API server.
type Server struct {
	mu      sync.RWMutex
	cfg     config.Config
	poller  *jobs.Poller
	history *store.History
	cache   cache.Cache
	health  *health.Manager
	handler http.Handler
	logger  zerolog.Logger
}

// NewServer builds the server and its router. The poller and health
// manager are required; history and cache are optional.
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:     opts.Config,
		poller:  opts.Poller,
		history: opts.History,
		cache:   opts.Cache,
		health:  opts.Health,
		logger:  log.WithComponent("api"),
	}
	if s.cache == nil {
		s.cache = cache.NewNoop()
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ApplyConfig swaps the fields that are safe to change on a live
// server: cache TTL and API token. Everything else needs a restart.
func (s *Server) ApplyConfig(cfg config.Config) {
	s.mu.Lock()
	s.cfg.Cache.TTL = cfg.Cache.TTL
	s.cfg.APIToken = cfg.APIToken
	s.mu.Unlock()
}

func (s *Server) routes() http.Handler {
	r := s.newRouter()
	s.registerPublicRoutes(r)
	s.registerAPIRoutes(r)
	return r
}

func (s *Server) newRouter() chi.Router {
	tracingService := ""
	if s.cfg.OTLPEndpoint != "" {
		tracingService = "powerstats-api"
	}
	return middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:     true,
		TracingService:    tracingService,
		EnableLogging:     true,
		EnableRateLimit:   s.cfg.RateLimit.Requests > 0,
		RateLimitRequests: s.cfg.RateLimit.Requests,
		RateLimitWindow:   s.cfg.RateLimit.Window,
	})
}

// registerPublicRoutes mounts the probes and the scrape endpoint.
// These stay reachable without a token so orchestrators and Prometheus
// keep working when auth is enabled.
func (s *Server) registerPublicRoutes(r chi.Router) {
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

func (s *Server) registerAPIRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/meters", s.handleMeters)
		r.Get("/consumers", s.handleConsumers)
		r.Get("/entities", s.handleEntities)
		r.Get("/history", s.handleHistory)
		r.With(middleware.RefreshRateLimit()).Post("/refresh", s.handleRefresh)
	})
}

// Serve runs the HTTP server until ctx is canceled, then drains
// in-flight requests for up to 10 seconds.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("event", "api.listening").Str("addr", s.cfg.Listen).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info().Str("event", "api.shutdown").Msg("draining http api")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
