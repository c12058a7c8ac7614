// Package config loads and validates the powerstats daemon
// configuration with precedence ENV > file > defaults. The optional
// YAML file is parsed strictly (unknown keys fail), environment
// variables use the POWERSTATS_ prefix, and a Holder supports hot
// reloading the file via fsnotify.
package config

import "time"

// Config is the fully resolved daemon configuration.
type Config struct {
	// HubAddr is the power hub socket, "unix://<path>" or
	// "tcp://<host:port>".
	HubAddr string

	// Backend selects the telemetry backend: "auto", "hal" or "system".
	Backend string

	// PollInterval is the snapshot poll period.
	PollInterval time.Duration

	// Listen is the HTTP API listen address.
	Listen string

	// DataDir holds the history store, archive and snapshot file.
	DataDir string

	// SnapshotFile is where the latest snapshot is written atomically.
	// Empty means <DataDir>/snapshot.json.
	SnapshotFile string

	History   HistoryConfig
	Archive   ArchiveConfig
	Cache     CacheConfig
	Log       LogConfig
	RateLimit RateLimitConfig

	// OTLPEndpoint enables trace export when non-empty.
	OTLPEndpoint string

	// APIToken enables bearer auth on the API when non-empty.
	APIToken string

	// Version is stamped by the binary, not configurable.
	Version string
}

// HistoryConfig controls the local badger history store.
type HistoryConfig struct {
	Enabled   bool
	Retention time.Duration
}

// ArchiveConfig controls the sqlite long-term archive.
type ArchiveConfig struct {
	Enabled bool
	// Path of the sqlite file. Empty means <DataDir>/archive.db.
	Path string
}

// CacheConfig controls response caching for hot API endpoints.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisDB       int
	RedisPassword string
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig controls API request throttling.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Default returns the built-in defaults, the lowest-precedence layer.
func Default() Config {
	return Config{
		HubAddr:      "unix:///tmp/powerhub.sock",
		Backend:      "auto",
		PollInterval: 30 * time.Second,
		Listen:       ":8080",
		DataDir:      "./data",
		History: HistoryConfig{
			Enabled:   true,
			Retention: 7 * 24 * time.Hour,
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			TTL:       15 * time.Second,
			RedisAddr: "127.0.0.1:6379",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
		},
	}
}
