package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/railmon/powerstats/internal/config"
	"github.com/railmon/powerstats/internal/log"
)

// PerformStartupChecks validates the environment before the daemon
// starts serving. Config syntax is already validated by the loader;
// this covers what only the runtime environment can answer.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}

	if cfg.Archive.Enabled {
		if err := checkArchiveDir(logger, cfg.Archive.Path); err != nil {
			return fmt.Errorf("archive directory check failed: %w", err)
		}
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Check write permissions by creating a temp file
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("✓ Data directory is writable")
	return nil
}

func checkArchiveDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return fmt.Errorf("archive enabled but no path configured")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to ensure archive directory %s: %w", dir, err)
	}

	logger.Info().Str("path", path).Msg("✓ Archive directory available")
	return nil
}
