package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/railmon/powerstats/internal/log"
)

// Holder holds the active configuration with atomic reload. Reads are
// lock-protected snapshots; a reload either swaps in a fully valid new
// config or keeps the old one untouched.
type Holder struct {
	mu         sync.RWMutex
	current    Config
	loader     *Loader
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	listenerMu sync.RWMutex
	listeners  []chan<- Config
}

// NewHolder creates a holder around an initial, already validated
// configuration.
func NewHolder(initial Config, loader *Loader, configPath string) *Holder {
	return &Holder{
		current:    initial,
		loader:     loader,
		configPath: configPath,
		logger:     log.WithComponent("config"),
		listeners:  make([]chan<- Config, 0),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads the configuration again and swaps it in. Load validates,
// so on any failure the old configuration stays active.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str(log.FieldEvent, "config.reload_success").
		Msg("configuration reloaded")
	return nil
}

// StartWatcher watches the config file and reloads on changes. A
// no-op when the holder was built without a config file.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}

	h.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str(log.FieldPath, h.configPath).
		Msg("watching config file for changes")

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	// Editors produce bursts of writes; debounce so each save reloads once.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			_ = h.watcher.Close()
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			// Write and Create cover in-place writes and rename-over saves.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				h.logger.Debug().
					Str(log.FieldEvent, "config.file_changed").
					Str("op", event.Op.String()).
					Msg("config file changed")
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str(log.FieldEvent, "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(log.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop closes the file watcher if one is running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel that receives the new config
// after every successful reload. The send is non-blocking; size the
// channel accordingly. The caller keeps ownership of the channel.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.listenerMu.Lock()
	defer h.listenerMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notifyListeners(newCfg Config) {
	h.listenerMu.RLock()
	defer h.listenerMu.RUnlock()

	for _, ch := range h.listeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str(log.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges reports what changed. Poll interval, log settings, cache
// TTL and the api token take effect live; everything else needs a
// restart.
func (h *Holder) logChanges(old, newCfg Config) {
	if old.PollInterval != newCfg.PollInterval {
		h.logger.Info().
			Dur("old", old.PollInterval).
			Dur("new", newCfg.PollInterval).
			Msg("config changed: poll interval")
	}
	if old.Log != newCfg.Log {
		h.logger.Info().
			Str("old", old.Log.Level+"/"+old.Log.Format).
			Str("new", newCfg.Log.Level+"/"+newCfg.Log.Format).
			Msg("config changed: log settings")
	}
	if old.Cache.TTL != newCfg.Cache.TTL {
		h.logger.Info().
			Dur("old", old.Cache.TTL).
			Dur("new", newCfg.Cache.TTL).
			Msg("config changed: cache TTL")
	}
	if old.APIToken != newCfg.APIToken {
		h.logger.Info().Msg("config changed: api token rotated")
	}

	restartRequired := []struct {
		field   string
		changed bool
	}{
		{"hub_addr", old.HubAddr != newCfg.HubAddr},
		{"backend", old.Backend != newCfg.Backend},
		{"listen", old.Listen != newCfg.Listen},
		{"data_dir", old.DataDir != newCfg.DataDir},
		{"snapshot_file", old.SnapshotFile != newCfg.SnapshotFile},
		{"history", old.History != newCfg.History},
		{"archive", old.Archive != newCfg.Archive},
		{"cache.backend", old.Cache.Backend != newCfg.Cache.Backend},
		{"cache.redis", old.Cache.RedisAddr != newCfg.Cache.RedisAddr ||
			old.Cache.RedisDB != newCfg.Cache.RedisDB ||
			old.Cache.RedisPassword != newCfg.Cache.RedisPassword},
		{"rate_limit", old.RateLimit != newCfg.RateLimit},
		{"otlp_endpoint", old.OTLPEndpoint != newCfg.OTLPEndpoint},
	}
	for _, f := range restartRequired {
		if f.changed {
			h.logger.Warn().
				Str(log.FieldEvent, "config.restart_required").
				Str("field", f.field).
				Msg("config changed, restart required to apply")
		}
	}
}
