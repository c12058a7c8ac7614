package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/railmon/powerstats/internal/validate"
)

func TestMain(m *testing.M) {
	// Scrub POWERSTATS_ vars so the host environment cannot leak into
	// precedence tests.
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, "POWERSTATS_") {
			kv := strings.SplitN(e, "=", 2)
			if err := os.Unsetenv(kv[0]); err != nil {
				panic("failed to unset env: " + err.Error())
			}
		}
	}
	os.Exit(m.Run())
}

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "powerstats.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("POWERSTATS_DATA_DIR", dir)

	cfg, err := NewLoader("", "v-test").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HubAddr != "unix:///tmp/powerhub.sock" {
		t.Errorf("HubAddr = %q", cfg.HubAddr)
	}
	if cfg.Backend != "auto" {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if want := filepath.Join(dir, "snapshot.json"); cfg.SnapshotFile != want {
		t.Errorf("SnapshotFile = %q, want %q", cfg.SnapshotFile, want)
	}
	if want := filepath.Join(dir, "archive.db"); cfg.Archive.Path != want {
		t.Errorf("Archive.Path = %q, want %q", cfg.Archive.Path, want)
	}
	if !cfg.History.Enabled || cfg.History.Retention != 7*24*time.Hour {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTL != 15*time.Second {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.RateLimit.Requests != 100 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Version != "v-test" {
		t.Errorf("Version = %q", cfg.Version)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
hubAddr: tcp://127.0.0.1:7600
backend: hal
pollInterval: 10s
listen: 127.0.0.1:9090
dataDir: `+dir+`
history:
  enabled: false
archive:
  enabled: true
cache:
  backend: redis
  ttl: 45s
  redisAddr: 127.0.0.1:6390
  redisDb: 2
log:
  level: debug
  format: console
rateLimit:
  requests: 20
  window: 30s
`)

	cfg, err := NewLoader(path, "v-test").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HubAddr != "tcp://127.0.0.1:7600" {
		t.Errorf("HubAddr = %q", cfg.HubAddr)
	}
	if cfg.Backend != "hal" {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.Listen != "127.0.0.1:9090" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled should be false")
	}
	if !cfg.Archive.Enabled {
		t.Error("Archive.Enabled should be true")
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.TTL != 45*time.Second {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Cache.RedisAddr != "127.0.0.1:6390" || cfg.Cache.RedisDB != 2 {
		t.Errorf("Cache redis = %+v", cfg.Cache)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.RateLimit.Requests != 20 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
backend: hal
pollInterval: 10s
dataDir: `+dir+`
`)
	t.Setenv("POWERSTATS_BACKEND", "system")
	t.Setenv("POWERSTATS_POLL_INTERVAL", "5s")

	cfg, err := NewLoader(path, "v-test").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "system" {
		t.Errorf("Backend = %q, env should beat file", cfg.Backend)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, env should beat file", cfg.PollInterval)
	}
}

func TestStrictFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
dataDir: `+dir+`
bouquets: [premium]
`)
	_, err := NewLoader(path, "v-test").Load()
	if err == nil {
		t.Fatal("unknown key should fail strict parse")
	}
	if !strings.Contains(err.Error(), "strict config parse") {
		t.Errorf("error = %v, want strict parse error", err)
	}
}

func TestFileRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `
dataDir: `+dir+`
pollInterval: banana
`)
	_, err := NewLoader(path, "v-test").Load()
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("error = %v, want invalid duration", err)
	}
}

func TestFileRejectsMultipleDocuments(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "dataDir: "+dir+"\n---\nlisten: :9\n")
	_, err := NewLoader(path, "v-test").Load()
	if err == nil || !strings.Contains(err.Error(), "multiple documents") {
		t.Fatalf("error = %v, want multiple documents error", err)
	}
}

func TestUnsupportedConfigFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "powerstats.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewLoader(path, "v-test").Load()
	if err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Fatalf("error = %v, want unsupported format", err)
	}
}

func TestMissingFileFails(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), "v-test").Load()
	if err == nil {
		t.Fatal("missing config file should fail")
	}
}

func TestEmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "")
	t.Setenv("POWERSTATS_DATA_DIR", dir)

	cfg, err := NewLoader(path, "v-test").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "auto" || cfg.PollInterval != 30*time.Second {
		t.Errorf("empty file should keep defaults, got %+v", cfg)
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	t.Setenv("POWERSTATS_DATA_DIR", t.TempDir())
	t.Setenv("POWERSTATS_BACKEND", "dbus")
	t.Setenv("POWERSTATS_POLL_INTERVAL", "200ms")
	t.Setenv("POWERSTATS_CACHE_BACKEND", "etcd")

	_, err := NewLoader("", "v-test").Load()
	if err == nil {
		t.Fatal("invalid config should fail validation")
	}
	var verr validate.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if got := len(verr.Errors()); got != 3 {
		t.Errorf("got %d validation errors, want 3: %v", got, err)
	}
	for _, field := range []string{"backend", "poll_interval", "cache.backend"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q should mention %s", err.Error(), field)
		}
	}
}

func TestRedisSettingsValidatedOnlyForRedisBackend(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("POWERSTATS_DATA_DIR", dir)
	t.Setenv("POWERSTATS_REDIS_DB", "99")

	// Memory backend: redis_db out of range is ignored.
	if _, err := NewLoader("", "v-test").Load(); err != nil {
		t.Fatalf("memory backend should ignore redis settings: %v", err)
	}

	t.Setenv("POWERSTATS_CACHE_BACKEND", "redis")
	_, err := NewLoader("", "v-test").Load()
	if err == nil || !strings.Contains(err.Error(), "cache.redis_db") {
		t.Fatalf("redis backend should validate redis_db: %v", err)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Run("string empty env means default", func(t *testing.T) {
		t.Setenv("POWERSTATS_TEST_STR", "")
		if got := ParseString("POWERSTATS_TEST_STR", "fallback"); got != "fallback" {
			t.Errorf("got %q", got)
		}
	})
	t.Run("int invalid means default", func(t *testing.T) {
		t.Setenv("POWERSTATS_TEST_INT", "twelve")
		if got := ParseInt("POWERSTATS_TEST_INT", 7); got != 7 {
			t.Errorf("got %d", got)
		}
	})
	t.Run("int valid", func(t *testing.T) {
		t.Setenv("POWERSTATS_TEST_INT", "12")
		if got := ParseInt("POWERSTATS_TEST_INT", 7); got != 12 {
			t.Errorf("got %d", got)
		}
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("POWERSTATS_TEST_DUR", "90s")
		if got := ParseDuration("POWERSTATS_TEST_DUR", time.Second); got != 90*time.Second {
			t.Errorf("got %v", got)
		}
	})
	t.Run("bool variants", func(t *testing.T) {
		for raw, want := range map[string]bool{
			"true": true, "1": true, "yes": true, "YES": true,
			"false": false, "0": false, "no": false,
		} {
			t.Setenv("POWERSTATS_TEST_BOOL", raw)
			if got := ParseBool("POWERSTATS_TEST_BOOL", !want); got != want {
				t.Errorf("ParseBool(%q) = %v, want %v", raw, got, want)
			}
		}
	})
	t.Run("bool invalid means default", func(t *testing.T) {
		t.Setenv("POWERSTATS_TEST_BOOL", "maybe")
		if got := ParseBool("POWERSTATS_TEST_BOOL", true); got != true {
			t.Errorf("got %v", got)
		}
	})
}
