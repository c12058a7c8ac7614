// Command powerstatsd polls device power telemetry from the hub and
// exports it over HTTP: JSON API, Prometheus metrics, local history
// and an optional long-term archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	powerstats "github.com/railmon/powerstats"
	"github.com/railmon/powerstats/internal/api"
	"github.com/railmon/powerstats/internal/archive"
	"github.com/railmon/powerstats/internal/cache"
	"github.com/railmon/powerstats/internal/config"
	"github.com/railmon/powerstats/internal/health"
	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/jobs"
	"github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/metrics"
	"github.com/railmon/powerstats/internal/store"
	"github.com/railmon/powerstats/internal/telemetry"
	"github.com/railmon/powerstats/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("powerstatsd %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	log.Configure(log.Config{
		Level:   "info",
		Service: "powerstats",
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --config wins; otherwise pick up <data-dir>/config.yaml when present.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		dataDir := strings.TrimSpace(config.ParseString("POWERSTATS_DATA_DIR", "./data"))
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			effectiveConfigPath = autoPath
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	log.Reconfigure(log.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "powerstats",
		Version: version.Version,
	})

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.Listen).
		Msg("starting powerstatsd")

	logger.Info().Msgf("→ Hub: %s (backend: %s)", cfg.HubAddr, cfg.Backend)
	logger.Info().Msgf("→ Poll interval: %s", cfg.PollInterval)
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	if cfg.History.Enabled {
		logger.Info().Msgf("→ History: enabled (retention: %s)", cfg.History.Retention)
	} else {
		logger.Info().Msg("→ History: disabled")
	}
	if cfg.Archive.Enabled {
		logger.Info().Msgf("→ Archive: %s", archivePath(cfg))
	}
	if cfg.APIToken != "" {
		logger.Info().Msg("→ API token: configured")
	} else {
		logger.Warn().Msg("→ API token: NOT configured (API is open). Set POWERSTATS_API_TOKEN to enable auth.")
	}
	if cfg.OTLPEndpoint != "" {
		logger.Info().Msgf("→ Tracing: OTLP to %s", cfg.OTLPEndpoint)
	}

	if err := run(ctx, cfg, effectiveConfigPath, loader); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon failed")
	}

	logger.Info().Msg("daemon exiting")
}

func run(ctx context.Context, cfg config.Config, configPath string, loader *config.Loader) error {
	logger := log.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		ServiceName:    "powerstats",
		ServiceVersion: version.Version,
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRate:   1,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	conn, source, err := connectHub(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	var history *store.History
	if cfg.History.Enabled {
		history, err = store.Open(filepath.Join(cfg.DataDir, "history"), cfg.History.Retention)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer func() { _ = history.Close() }()
	}

	var arch *archive.Archive
	if cfg.Archive.Enabled {
		arch, err = archive.Open(archivePath(cfg))
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() { _ = arch.Close() }()
	}

	snapshotFile := cfg.SnapshotFile
	if snapshotFile == "" {
		snapshotFile = filepath.Join(cfg.DataDir, "snapshot.json")
	}

	respCache, redisCache := buildCache(cfg, logger)
	defer func() { _ = respCache.Close() }()

	poller := jobs.NewPoller(source, jobs.Options{
		Interval:     cfg.PollInterval,
		History:      history,
		Archive:      arch,
		SnapshotFile: snapshotFile,
	})

	healthMgr := health.NewManager(version.Version)
	healthMgr.RegisterChecker(health.NewHubChecker(func(ctx context.Context) error {
		_, err := conn.ListServices(ctx)
		return err
	}))
	healthMgr.RegisterChecker(health.NewPollChecker(3*cfg.PollInterval, poller.LastPoll))
	healthMgr.RegisterChecker(health.NewSnapshotFileChecker(snapshotFile))
	if redisCache != nil {
		healthMgr.RegisterChecker(health.NewCacheChecker(redisCache.HealthCheck))
	}

	apiServer := api.NewServer(api.Options{
		Config:  cfg,
		Poller:  poller,
		History: history,
		Cache:   respCache,
		Health:  healthMgr,
	})

	holder := config.NewHolder(cfg, loader, configPath)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("config watcher unavailable, hot reload disabled")
	}
	defer holder.Stop()

	updates := make(chan config.Config, 1)
	holder.RegisterListener(updates)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return apiServer.Serve(gctx)
	})
	g.Go(func() error {
		applyConfigUpdates(gctx, updates, poller, apiServer)
		return nil
	})

	return g.Wait()
}

// connectHub dials the hub with exponential backoff until it succeeds
// or ctx is done, then selects the telemetry backend.
func connectHub(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*ipc.Conn, *powerstats.PowerStats, error) {
	backoff := time.Second
	const maxBackoff = 15 * time.Second

	for {
		conn, source, err := tryConnect(ctx, cfg)
		if err == nil {
			logger.Info().
				Str("event", "hub.connected").
				Str(log.FieldHubAddr, cfg.HubAddr).
				Str(log.FieldBackend, string(source.Backend())).
				Msg("connected to power hub")
			return conn, source, nil
		}

		logger.Warn().
			Err(err).
			Str("event", "hub.connect_retry").
			Str(log.FieldHubAddr, cfg.HubAddr).
			Dur("backoff", backoff).
			Msg("hub unavailable, retrying")

		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("connect hub: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// tryConnect makes one dial and backend selection attempt.
func tryConnect(ctx context.Context, cfg config.Config) (*ipc.Conn, *powerstats.PowerStats, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := ipc.DialContext(attemptCtx, cfg.HubAddr)
	if err != nil {
		return nil, nil, err
	}
	conn.SetObserver(metrics.Transaction)

	var source *powerstats.PowerStats
	switch cfg.Backend {
	case "hal":
		source, err = powerstats.NewWithBackend(attemptCtx, conn, powerstats.BackendVendorHAL)
	case "system":
		source, err = powerstats.NewWithBackend(attemptCtx, conn, powerstats.BackendSystemService)
	default:
		source, err = powerstats.New(attemptCtx, conn)
	}
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, source, nil
}

func archivePath(cfg config.Config) string {
	if cfg.Archive.Path != "" {
		return cfg.Archive.Path
	}
	return filepath.Join(cfg.DataDir, "archive.db")
}

// buildCache creates the response cache. A redis backend that cannot
// be reached at startup degrades to the in-memory cache with a
// warning; the API keeps serving either way.
func buildCache(cfg config.Config, logger zerolog.Logger) (cache.Cache, *cache.RedisCache) {
	if cfg.Cache.Backend == "redis" {
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, log.WithComponent("cache"))
		if err == nil {
			return redisCache, redisCache
		}
		logger.Warn().
			Err(err).
			Str("event", "cache.redis_unavailable").
			Msg("redis unreachable, falling back to in-memory cache")
	}
	return cache.NewMemory(time.Minute), nil
}

// applyConfigUpdates applies the live-reloadable settings after each
// successful config reload: poll interval, log level and format, cache
// TTL and the api token.
func applyConfigUpdates(ctx context.Context, updates <-chan config.Config, poller *jobs.Poller, apiServer *api.Server) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg := <-updates:
			poller.SetInterval(newCfg.PollInterval)
			log.Reconfigure(log.Config{
				Level:   newCfg.Log.Level,
				Format:  newCfg.Log.Format,
				Service: "powerstats",
				Version: version.Version,
			})
			apiServer.ApplyConfig(newCfg)
		}
	}
}
