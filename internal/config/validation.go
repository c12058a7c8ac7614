package config

import (
	"fmt"
	"time"

	"github.com/railmon/powerstats/internal/validate"
)

// Validate checks a resolved configuration and reports every problem
// at once.
func Validate(cfg Config) error {
	v := validate.New()

	v.SocketAddr("hub_addr", cfg.HubAddr)
	v.OneOf("backend", cfg.Backend, []string{"auto", "hal", "system"})
	v.MinDuration("poll_interval", cfg.PollInterval, time.Second)
	v.ListenAddr("listen", cfg.Listen)
	v.Directory("data_dir", cfg.DataDir, false)
	v.NotEmpty("snapshot_file", cfg.SnapshotFile)

	if cfg.History.Enabled {
		v.MinDuration("history.retention", cfg.History.Retention, time.Minute)
	}
	if cfg.Archive.Enabled {
		v.NotEmpty("archive.path", cfg.Archive.Path)
	}

	v.OneOf("cache.backend", cfg.Cache.Backend, []string{"memory", "redis"})
	v.MinDuration("cache.ttl", cfg.Cache.TTL, time.Second)
	if cfg.Cache.Backend == "redis" {
		v.ListenAddr("cache.redis_addr", cfg.Cache.RedisAddr)
		v.Range("cache.redis_db", cfg.Cache.RedisDB, 0, 15)
	}

	v.OneOf("log.level", cfg.Log.Level, []string{"trace", "debug", "info", "warn", "error"})
	v.OneOf("log.format", cfg.Log.Format, []string{"json", "console"})

	v.Positive("rate_limit.requests", cfg.RateLimit.Requests)
	v.MinDuration("rate_limit.window", cfg.RateLimit.Window, time.Second)

	if err := v.Err(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
