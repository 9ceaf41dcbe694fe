// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/downlink/lib/digest"
)

const schema = `
CREATE TABLE IF NOT EXISTS landings (
	id          TEXT PRIMARY KEY,
	target      TEXT NOT NULL,
	source      TEXT NOT NULL,
	output      TEXT NOT NULL,
	digest      TEXT NOT NULL,
	compression TEXT NOT NULL,
	slot        INTEGER,
	marker      INTEGER NOT NULL DEFAULT 0,
	reference   TEXT NOT NULL DEFAULT '',
	metadata    BLOB,
	landed_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS landings_target_digest ON landings (target, digest);
CREATE INDEX IF NOT EXISTS landings_target_slot ON landings (target, slot);
CREATE INDEX IF NOT EXISTS landings_landed_at ON landings (landed_at);
`

// Entry is one landed segment.
type Entry struct {
	// ID is assigned by Record when empty.
	ID string

	Target string

	// Source is the landed file as it arrived; Output is the file the
	// pipeline produced from it.
	Source string
	Output string

	Digest      digest.Hash
	Compression string

	// Slot is the aligned time slot, or the zero Time when the target
	// does not align.
	Slot time.Time

	// Marker is true for the completion segment of a slot.
	Marker bool

	// Reference is the reference file transition caused by this
	// segment: "generated", "touched" or empty.
	Reference string

	Metadata map[string]any
	LandedAt time.Time
}

// SlotSummary aggregates the entries of one time slot.
type SlotSummary struct {
	Slot     time.Time
	Segments int
	Complete bool
	First    time.Time
	Last     time.Time
}

// Config holds the parameters for opening a Ledger.
type Config struct {
	// Path is the database file. Its parent directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	Logger *slog.Logger
}

// Ledger is a SQLite-backed record of landed segments. Safe for
// concurrent use.
type Ledger struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates or opens the ledger database at cfg.Path.
func Open(cfg Config) (*Ledger, error) {
	if cfg.Path == "" {
		return nil, errors.New("ledger: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s: %w", cfg.Path, err)
	}

	ledger := &Ledger{pool: pool, logger: logger, path: cfg.Path}

	// Take one connection now so schema or pragma failures surface
	// from Open rather than from the first Record.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: preparing %s: %w", cfg.Path, err)
	}
	pool.Put(conn)

	logger.Info("ledger opened", "path", cfg.Path, "pool_size", poolSize)
	return ledger, nil
}

// Close closes the pool. Blocks until borrowed connections are
// returned.
func (l *Ledger) Close() error {
	if err := l.pool.Close(); err != nil {
		return fmt.Errorf("ledger: closing %s: %w", l.path, err)
	}
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("ledger: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("ledger: creating schema: %w", err)
	}
	return nil
}

// Record stores entry and returns it with ID and LandedAt filled in
// when they were empty.
func (l *Ledger) Record(ctx context.Context, entry Entry) (Entry, error) {
	if entry.Target == "" {
		return Entry{}, errors.New("ledger: entry has no target")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.LandedAt.IsZero() {
		entry.LandedAt = time.Now()
	}

	metadata, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: encoding metadata for %s: %w", entry.Source, err)
	}

	conn, err := l.pool.Take(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: record: %w", err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.Execute(conn, `INSERT INTO landings
		(id, target, source, output, digest, compression, slot, marker, reference, metadata, landed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			entry.ID,
			entry.Target,
			entry.Source,
			entry.Output,
			entry.Digest.String(),
			entry.Compression,
			nullableTime(entry.Slot),
			boolInt(entry.Marker),
			entry.Reference,
			nullableBlob(metadata),
			entry.LandedAt.UnixNano(),
		},
	})
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: inserting %s: %w", entry.Source, err)
	}
	l.logger.Debug("recorded landing",
		"target", entry.Target,
		"source", entry.Source,
		"digest", entry.Digest.String(),
	)
	return entry, nil
}

// Seen reports whether content with hash was already recorded for
// target.
func (l *Ledger) Seen(ctx context.Context, target string, hash digest.Hash) (bool, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger: seen: %w", err)
	}
	defer l.pool.Put(conn)

	seen := false
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM landings WHERE target = ? AND digest = ? LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{target, hash.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				seen = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("ledger: querying digest: %w", err)
	}
	return seen, nil
}

// Slots summarizes the newest limit slots of target, newest first.
// Entries without a slot are not included. A non-positive limit
// returns every slot.
func (l *Ledger) Slots(ctx context.Context, target string, limit int) ([]SlotSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: slots: %w", err)
	}
	defer l.pool.Put(conn)

	var summaries []SlotSummary
	err = sqlitex.Execute(conn,
		`SELECT slot, COUNT(*), MAX(marker), MIN(landed_at), MAX(landed_at)
		FROM landings
		WHERE target = ? AND slot IS NOT NULL
		GROUP BY slot
		ORDER BY slot DESC
		LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{target, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summaries = append(summaries, SlotSummary{
					Slot:     time.Unix(0, stmt.ColumnInt64(0)).UTC(),
					Segments: stmt.ColumnInt(1),
					Complete: stmt.ColumnInt(2) != 0,
					First:    time.Unix(0, stmt.ColumnInt64(3)).UTC(),
					Last:     time.Unix(0, stmt.ColumnInt64(4)).UTC(),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: querying slots: %w", err)
	}
	return summaries, nil
}

// Recent returns the newest limit entries of target, newest first.
func (l *Ledger) Recent(ctx context.Context, target string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent: %w", err)
	}
	defer l.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn,
		`SELECT id, target, source, output, digest, compression, slot, marker, reference, metadata, landed_at
		FROM landings
		WHERE target = ?
		ORDER BY landed_at DESC
		LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{target, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry, err := scanEntry(stmt)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("ledger: querying entries: %w", err)
	}
	return entries, nil
}

func scanEntry(stmt *sqlite.Stmt) (Entry, error) {
	hash, err := digest.Parse(stmt.ColumnText(4))
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s: %w", stmt.ColumnText(0), err)
	}
	entry := Entry{
		ID:          stmt.ColumnText(0),
		Target:      stmt.ColumnText(1),
		Source:      stmt.ColumnText(2),
		Output:      stmt.ColumnText(3),
		Digest:      hash,
		Compression: stmt.ColumnText(5),
		Marker:      stmt.ColumnInt(7) != 0,
		Reference:   stmt.ColumnText(8),
		LandedAt:    time.Unix(0, stmt.ColumnInt64(10)).UTC(),
	}
	if !stmt.ColumnIsNull(6) {
		entry.Slot = time.Unix(0, stmt.ColumnInt64(6)).UTC()
	}
	if !stmt.ColumnIsNull(9) {
		blob := make([]byte, stmt.ColumnLen(9))
		stmt.ColumnBytes(9, blob)
		entry.Metadata, err = decodeMetadata(blob)
		if err != nil {
			return Entry{}, fmt.Errorf("entry %s: decoding metadata: %w", entry.ID, err)
		}
	}
	return entry, nil
}

// Prune deletes entries landed before cutoff and returns how many
// were removed.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	conn, err := l.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledger: prune: %w", err)
	}
	defer l.pool.Put(conn)

	err = sqlitex.Execute(conn, `DELETE FROM landings WHERE landed_at < ?`, &sqlitex.ExecOptions{
		Args: []any{cutoff.UnixNano()},
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: pruning: %w", err)
	}
	removed := int64(conn.Changes())
	if removed > 0 {
		l.logger.Info("pruned ledger", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func nullableBlob(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
