package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	powerstats "github.com/railmon/powerstats"
	"github.com/railmon/powerstats/internal/cache"
	"github.com/railmon/powerstats/internal/config"
	"github.com/railmon/powerstats/internal/health"
	"github.com/railmon/powerstats/internal/jobs"
	"github.com/railmon/powerstats/internal/store"
)

// stubSource serves a canned snapshot, optionally failing or blocking.
type stubSource struct {
	calls   atomic.Int32
	snap    *powerstats.Snapshot
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *stubSource) Snapshot(ctx context.Context) (*powerstats.Snapshot, error) {
	s.calls.Add(1)
	if s.started != nil {
		select {
		case s.started <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	snap := *s.snap
	snap.TakenAt = time.Now().UTC()
	return &snap, nil
}

func testSnapshot() *powerstats.Snapshot {
	tenSec := 10 * time.Second
	return &powerstats.Snapshot{
		TakenAt: time.Now().UTC(),
		Backend: powerstats.BackendVendorHAL,
		Meters: []powerstats.MeterSnapshot{{
			Meter: powerstats.EnergyMeter{ID: 0, Name: "S2S_VDD_CPU", Subsystem: "cpu"},
			Reading: powerstats.EnergyMeterReading{
				Timestamp: time.Hour,
				Duration:  &tenSec,
				EnergyUWs: 1_500_000,
			},
		}},
		Consumers: []powerstats.ConsumerSnapshot{{
			Consumer: powerstats.EnergyConsumer{ID: 0, Name: "CPUCL0", Type: powerstats.ConsumerCPUCluster},
			Reading: powerstats.EnergyConsumerReading{
				Timestamp: time.Hour,
				EnergyUWs: 1_200_000,
			},
		}},
		Entities: []powerstats.EntityResidency{{
			Entity: powerstats.PowerEntity{
				ID:     0,
				Name:   "GPU",
				States: []powerstats.PowerState{{ID: 0, Name: "ACTIVE"}},
			},
			Residency: []powerstats.StateResidency{{
				StateID:         0,
				TotalTime:       90 * time.Second,
				TotalEntryCount: 12,
			}},
		}},
	}
}

type fixture struct {
	srv    *Server
	source *stubSource
	poller *jobs.Poller
	cache  cache.Cache
}

func newFixture(t *testing.T, mutate func(*config.Config), pollOpts jobs.Options) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.PollInterval = 30 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	source := &stubSource{snap: testSnapshot()}
	poller := jobs.NewPoller(source, pollOpts)

	respCache := cache.NewMemory(0)
	t.Cleanup(func() { _ = respCache.Close() })

	srv := NewServer(Options{
		Config: cfg,
		Poller: poller,
		Cache:  respCache,
		Health: health.NewManager("test"),
	})

	return &fixture{srv: srv, source: source, poller: poller, cache: respCache}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (f *fixture) poll(t *testing.T) {
	t.Helper()
	if _, err := f.poller.PollNow(context.Background()); err != nil {
		t.Fatalf("seed poll failed: %v", err)
	}
}

func TestProbesAreUnauthenticated(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.APIToken = "secret-token"
	}, jobs.Options{})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := f.get(t, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200 without token, got %d", path, rec.Code)
		}
	}
}

func TestAuthEnforcedOnAPIRoutes(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.APIToken = "secret-token"
	}, jobs.Options{})
	f.poll(t)

	// No token
	rec := f.get(t, "/api/v1/snapshot")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Wrong token
	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}

	// Right token
	req = httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
}

func TestAuthDisabledByEmptyToken(t *testing.T) {
	f := newFixture(t, nil, jobs.Options{})
	f.poll(t)

	rec := f.get(t, "/api/v1/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected open API without token, got %d", rec.Code)
	}
}

func TestRequestIDOnResponses(t *testing.T) {
	f := newFixture(t, nil, jobs.Options{})
	f.poll(t)

	rec := f.get(t, "/api/v1/snapshot")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request ID header on API response")
	}
}

func TestApplyConfigSwapsToken(t *testing.T) {
	f := newFixture(t, nil, jobs.Options{})
	f.poll(t)

	cfg := config.Default()
	cfg.APIToken = "rotated"
	f.srv.ApplyConfig(cfg)

	rec := f.get(t, "/api/v1/snapshot")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after token rotation, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)
	req.Header.Set("Authorization", "Bearer rotated")
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with rotated token, got %d", rec.Code)
	}
}

func TestServeShutsDownOnContextCancel(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Listen = "127.0.0.1:0"
	}, jobs.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// mustOpenHistory creates a throwaway badger-backed history store.
func mustOpenHistory(t *testing.T) *store.History {
	t.Helper()
	h, err := store.Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}
