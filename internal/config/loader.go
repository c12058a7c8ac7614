package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader resolves configuration with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only
// operation.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration: defaults, then the config file (if
// any), then POWERSTATS_ environment overrides, then validation.
func (l *Loader) Load() (Config, error) {
	cfg := Default()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFile(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	// DataDir must be absolute before derived paths are built from it.
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.SnapshotFile == "" {
		cfg.SnapshotFile = filepath.Join(cfg.DataDir, "snapshot.json")
	}
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = filepath.Join(cfg.DataDir, "archive.db")
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile parses a YAML config file strictly: unknown fields, multiple
// documents and trailing content are errors.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- config file paths come from the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// mergeEnv applies POWERSTATS_ environment overrides, the highest
// precedence layer.
func (l *Loader) mergeEnv(cfg *Config) {
	cfg.HubAddr = ParseString("POWERSTATS_HUB_ADDR", cfg.HubAddr)
	cfg.Backend = ParseString("POWERSTATS_BACKEND", cfg.Backend)
	cfg.PollInterval = ParseDuration("POWERSTATS_POLL_INTERVAL", cfg.PollInterval)
	cfg.Listen = ParseString("POWERSTATS_LISTEN", cfg.Listen)
	cfg.DataDir = ParseString("POWERSTATS_DATA_DIR", cfg.DataDir)
	cfg.SnapshotFile = ParseString("POWERSTATS_SNAPSHOT_FILE", cfg.SnapshotFile)

	cfg.History.Enabled = ParseBool("POWERSTATS_HISTORY_ENABLED", cfg.History.Enabled)
	cfg.History.Retention = ParseDuration("POWERSTATS_HISTORY_RETENTION", cfg.History.Retention)

	cfg.Archive.Enabled = ParseBool("POWERSTATS_ARCHIVE_ENABLED", cfg.Archive.Enabled)
	cfg.Archive.Path = ParseString("POWERSTATS_ARCHIVE_PATH", cfg.Archive.Path)

	cfg.Cache.Backend = ParseString("POWERSTATS_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = ParseDuration("POWERSTATS_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = ParseString("POWERSTATS_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisDB = ParseInt("POWERSTATS_REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.RedisPassword = ParseString("POWERSTATS_REDIS_PASSWORD", cfg.Cache.RedisPassword)

	cfg.Log.Level = ParseString("POWERSTATS_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = ParseString("POWERSTATS_LOG_FORMAT", cfg.Log.Format)

	cfg.RateLimit.Requests = ParseInt("POWERSTATS_RATE_LIMIT", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = ParseDuration("POWERSTATS_RATE_WINDOW", cfg.RateLimit.Window)

	cfg.OTLPEndpoint = ParseString("POWERSTATS_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.APIToken = ParseString("POWERSTATS_API_TOKEN", cfg.APIToken)
}
