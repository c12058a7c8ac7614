// Package store keeps a local history of telemetry snapshots in a
// badger database. Keys are "snap:<unix-nano>" so iteration order is
// chronological; values are JSON; badger's TTL handles retention.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/railmon/powerstats"
)

const keyPrefix = "snap:"

// History is a snapshot history store on badger.
type History struct {
	db        *badger.DB
	retention time.Duration
}

// Open opens (or creates) the history database at path. Snapshots
// older than retention expire; zero retention keeps everything.
func Open(path string, retention time.Duration) (*History, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &History{db: db, retention: retention}, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

func snapKey(ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, ts.UnixNano()))
}

// Append stores a snapshot keyed by its TakenAt timestamp.
func (h *History) Append(_ context.Context, snap *powerstats.Snapshot) error {
	buf, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	err = h.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(snapKey(snap.TakenAt), buf)
		if h.retention > 0 {
			entry = entry.WithTTL(h.retention)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns up to n snapshots, newest first.
func (h *History) Recent(ctx context.Context, n int) ([]powerstats.Snapshot, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []powerstats.Snapshot
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// 0xFF sorts after every zero-padded decimal digit.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(keyPrefix)) && len(out) < n; it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			var snap powerstats.Snapshot
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	return out, nil
}

// Range returns snapshots taken in [from, to], oldest first.
func (h *History) Range(ctx context.Context, from, to time.Time) ([]powerstats.Snapshot, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("store: range: to %s before from %s", to, from)
	}
	toNano := to.UnixNano()

	var out []powerstats.Snapshot
	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(snapKey(from)); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			item := it.Item()
			ts, err := strconv.ParseInt(string(item.Key()[len(keyPrefix):]), 10, 64)
			if err != nil {
				return fmt.Errorf("malformed key %q: %w", item.Key(), err)
			}
			if ts > toNano {
				break
			}
			var snap powerstats.Snapshot
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			}); err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: range: %w", err)
	}
	return out, nil
}
