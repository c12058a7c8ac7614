package health

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railmon/powerstats/internal/config"
)

func TestStartupChecksPass(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.Archive.Enabled = true
	cfg.Archive.Path = filepath.Join(dataDir, "archive", "archive.db")

	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	// Archive parent directory must exist afterwards.
	assert.DirExists(t, filepath.Join(dataDir, "archive"))
}

func TestStartupChecksMissingDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "does-not-exist")

	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data directory")
}

func TestStartupChecksArchiveWithoutPath(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Archive.Enabled = true
	cfg.Archive.Path = ""

	err := PerformStartupChecks(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive")
}
