// Package archive persists individual readings to a SQLite database
// for long-term, queryable storage. One row per meter or consumer
// reading; exports stream as CSV or JSON.
package archive

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/railmon/powerstats"
)

const schemaVersion = "1"

// Kinds of archived readings.
const (
	KindMeter    = "meter"
	KindConsumer = "consumer"
)

// Reading is one archived row.
type Reading struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	ID         int32     `json:"id"`
	Name       string    `json:"name"`
	EnergyUWs  int64     `json:"energy_uws"`
	DurationMs *int64    `json:"duration_ms,omitempty"`
}

// Archive is a SQLite-backed reading archive.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive database at path and applies the
// schema. It refuses databases written by an incompatible version.
func Open(path string) (*Archive, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: ping database: %w", err)
	}

	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return a, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS readings (
		ts INTEGER NOT NULL,
		kind TEXT NOT NULL CHECK(kind IN ('meter', 'consumer')),
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		energy_uws INTEGER NOT NULL,
		duration_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);
	CREATE INDEX IF NOT EXISTS idx_readings_kind_id ON readings(kind, id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return err
	}

	var version string
	err := a.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = a.db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, schemaVersion)
		return err
	case err != nil:
		return err
	case version != schemaVersion:
		return fmt.Errorf("unsupported schema version %s (want %s)", version, schemaVersion)
	}
	return nil
}

// Insert archives all readings of a snapshot in one transaction.
func (a *Archive) Insert(ctx context.Context, snap *powerstats.Snapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (ts, kind, id, name, energy_uws, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("archive: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ts := snap.TakenAt.UnixNano()
	for _, m := range snap.Meters {
		var dur sql.NullInt64
		if d := m.Reading.Duration; d != nil {
			dur = sql.NullInt64{Int64: d.Milliseconds(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, ts, KindMeter,
			m.Meter.ID, m.Meter.Name, m.Reading.EnergyUWs, dur); err != nil {
			return fmt.Errorf("archive: insert meter %d: %w", m.Meter.ID, err)
		}
	}
	for _, c := range snap.Consumers {
		if _, err := stmt.ExecContext(ctx, ts, KindConsumer,
			c.Consumer.ID, c.Consumer.Name, c.Reading.EnergyUWs, sql.NullInt64{}); err != nil {
			return fmt.Errorf("archive: insert consumer %d: %w", c.Consumer.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Prune deletes readings taken before the cutoff and reports how many
// rows were removed.
func (a *Archive) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM readings WHERE ts < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive: prune: %w", err)
	}
	return n, nil
}

// Count reports how many readings fall in [from, to]. kind filters to
// "meter" or "consumer"; empty means both.
func (a *Archive) Count(ctx context.Context, from, to time.Time, kind string) (int64, error) {
	if kind != "" && kind != KindMeter && kind != KindConsumer {
		return 0, fmt.Errorf("archive: unknown kind %q", kind)
	}
	q := `SELECT COUNT(*) FROM readings WHERE ts >= ? AND ts <= ?`
	args := []any{from.UnixNano(), to.UnixNano()}
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	var n int64
	if err := a.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}

func (a *Archive) query(ctx context.Context, from, to time.Time, kind string) (*sql.Rows, error) {
	if kind != "" && kind != KindMeter && kind != KindConsumer {
		return nil, fmt.Errorf("archive: unknown kind %q", kind)
	}
	q := `
	SELECT ts, kind, id, name, energy_uws, duration_ms
	FROM readings
	WHERE ts >= ? AND ts <= ?`
	args := []any{from.UnixNano(), to.UnixNano()}
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY ts, kind, id`

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	return rows, nil
}

func scanReading(rows *sql.Rows) (Reading, error) {
	var (
		r   Reading
		ts  int64
		dur sql.NullInt64
	)
	if err := rows.Scan(&ts, &r.Kind, &r.ID, &r.Name, &r.EnergyUWs, &dur); err != nil {
		return r, err
	}
	r.Time = time.Unix(0, ts).UTC()
	if dur.Valid {
		r.DurationMs = &dur.Int64
	}
	return r, nil
}

// ExportOption configures an export.
type ExportOption func(*exportOptions)

type exportOptions struct {
	progress func(rows int64)
}

// WithProgress registers fn to be called with the running row count
// while an export streams.
func WithProgress(fn func(rows int64)) ExportOption {
	return func(o *exportOptions) { o.progress = fn }
}

func applyExportOptions(opts []ExportOption) exportOptions {
	var o exportOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ExportCSV streams readings in [from, to] as CSV. kind filters to
// "meter" or "consumer"; empty means both.
func (a *Archive) ExportCSV(ctx context.Context, w io.Writer, from, to time.Time, kind string, opts ...ExportOption) error {
	o := applyExportOptions(opts)
	rows, err := a.query(ctx, from, to, kind)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "kind", "id", "name", "energy_uws", "duration_ms"}); err != nil {
		return fmt.Errorf("archive: export csv: %w", err)
	}
	var n int64
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return fmt.Errorf("archive: export csv: %w", err)
		}
		durField := ""
		if r.DurationMs != nil {
			durField = strconv.FormatInt(*r.DurationMs, 10)
		}
		record := []string{
			r.Time.Format(time.RFC3339Nano),
			r.Kind,
			strconv.FormatInt(int64(r.ID), 10),
			r.Name,
			strconv.FormatInt(r.EnergyUWs, 10),
			durField,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("archive: export csv: %w", err)
		}
		n++
		if o.progress != nil {
			o.progress(n)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("archive: export csv: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("archive: export csv: %w", err)
	}
	return nil
}

// ExportJSON streams readings in [from, to] as a JSON array.
func (a *Archive) ExportJSON(ctx context.Context, w io.Writer, from, to time.Time, kind string, opts ...ExportOption) error {
	o := applyExportOptions(opts)
	rows, err := a.query(ctx, from, to, kind)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if _, err := io.WriteString(w, "["); err != nil {
		return fmt.Errorf("archive: export json: %w", err)
	}
	first := true
	var n int64
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return fmt.Errorf("archive: export json: %w", err)
		}
		buf, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("archive: export json: %w", err)
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return fmt.Errorf("archive: export json: %w", err)
			}
		}
		first = false
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("archive: export json: %w", err)
		}
		n++
		if o.progress != nil {
			o.progress(n)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("archive: export json: %w", err)
	}
	if _, err := io.WriteString(w, "]\n"); err != nil {
		return fmt.Errorf("archive: export json: %w", err)
	}
	return nil
}
