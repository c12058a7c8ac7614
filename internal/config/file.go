package config

import (
	"fmt"
	"time"
)

// FileConfig mirrors the YAML config file. Durations are Go duration
// strings ("30s", "1h"). Booleans and integers use pointers so an
// explicit false/zero can be told apart from an absent key.
type FileConfig struct {
	HubAddr      string `yaml:"hubAddr,omitempty"`
	Backend      string `yaml:"backend,omitempty"`
	PollInterval string `yaml:"pollInterval,omitempty"`
	Listen       string `yaml:"listen,omitempty"`
	DataDir      string `yaml:"dataDir,omitempty"`
	SnapshotFile string `yaml:"snapshotFile,omitempty"`

	History   HistoryFileConfig   `yaml:"history,omitempty"`
	Archive   ArchiveFileConfig   `yaml:"archive,omitempty"`
	Cache     CacheFileConfig     `yaml:"cache,omitempty"`
	Log       LogFileConfig       `yaml:"log,omitempty"`
	RateLimit RateLimitFileConfig `yaml:"rateLimit,omitempty"`

	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	APIToken     string `yaml:"apiToken,omitempty"`
}

// HistoryFileConfig is the history section of the config file.
type HistoryFileConfig struct {
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Retention string `yaml:"retention,omitempty"`
}

// ArchiveFileConfig is the archive section of the config file.
type ArchiveFileConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// CacheFileConfig is the cache section of the config file.
type CacheFileConfig struct {
	Backend       string `yaml:"backend,omitempty"`
	TTL           string `yaml:"ttl,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisDB       *int   `yaml:"redisDb,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
}

// LogFileConfig is the log section of the config file.
type LogFileConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// RateLimitFileConfig is the rate limit section of the config file.
type RateLimitFileConfig struct {
	Requests *int   `yaml:"requests,omitempty"`
	Window   string `yaml:"window,omitempty"`
}

// mergeFile applies the set fields of a parsed config file onto cfg.
func mergeFile(cfg *Config, file *FileConfig) error {
	if file.HubAddr != "" {
		cfg.HubAddr = file.HubAddr
	}
	if file.Backend != "" {
		cfg.Backend = file.Backend
	}
	if err := mergeDuration(&cfg.PollInterval, "pollInterval", file.PollInterval); err != nil {
		return err
	}
	if file.Listen != "" {
		cfg.Listen = file.Listen
	}
	if file.DataDir != "" {
		cfg.DataDir = file.DataDir
	}
	if file.SnapshotFile != "" {
		cfg.SnapshotFile = file.SnapshotFile
	}

	if file.History.Enabled != nil {
		cfg.History.Enabled = *file.History.Enabled
	}
	if err := mergeDuration(&cfg.History.Retention, "history.retention", file.History.Retention); err != nil {
		return err
	}

	if file.Archive.Enabled != nil {
		cfg.Archive.Enabled = *file.Archive.Enabled
	}
	if file.Archive.Path != "" {
		cfg.Archive.Path = file.Archive.Path
	}

	if file.Cache.Backend != "" {
		cfg.Cache.Backend = file.Cache.Backend
	}
	if err := mergeDuration(&cfg.Cache.TTL, "cache.ttl", file.Cache.TTL); err != nil {
		return err
	}
	if file.Cache.RedisAddr != "" {
		cfg.Cache.RedisAddr = file.Cache.RedisAddr
	}
	if file.Cache.RedisDB != nil {
		cfg.Cache.RedisDB = *file.Cache.RedisDB
	}
	if file.Cache.RedisPassword != "" {
		cfg.Cache.RedisPassword = file.Cache.RedisPassword
	}

	if file.Log.Level != "" {
		cfg.Log.Level = file.Log.Level
	}
	if file.Log.Format != "" {
		cfg.Log.Format = file.Log.Format
	}

	if file.RateLimit.Requests != nil {
		cfg.RateLimit.Requests = *file.RateLimit.Requests
	}
	if err := mergeDuration(&cfg.RateLimit.Window, "rateLimit.window", file.RateLimit.Window); err != nil {
		return err
	}

	if file.OTLPEndpoint != "" {
		cfg.OTLPEndpoint = file.OTLPEndpoint
	}
	if file.APIToken != "" {
		cfg.APIToken = file.APIToken
	}
	return nil
}

func mergeDuration(dst *time.Duration, field, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}
