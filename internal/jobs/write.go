package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/renameio/v2"

	"github.com/railmon/powerstats"
	"github.com/railmon/powerstats/internal/log"
)

// writeSnapshotFile persists the snapshot with atomic + durable
// semantics: renameio fsyncs the temp file before renaming it over
// the target, so readers never see a partial file.
func writeSnapshotFile(ctx context.Context, path string, snap *powerstats.Snapshot) error {
	logger := log.WithContext(ctx, log.WithComponent("jobs"))

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending snapshot file: %w", err)
	}
	defer func() {
		// renameio removes the temp file if it was not committed.
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending snapshot file")
		}
	}()

	enc := json.NewEncoder(pendingFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("write snapshot data: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace snapshot file: %w", err)
	}

	return nil
}
