package crashlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const DefaultMaxEntries = 5

// Entry is one recorded abnormal reset.
type Entry struct {
	Timestamp   time.Time
	Uptime      time.Duration
	Reason      string
	FreeHeap    uint64
	MinFreeHeap uint64
}

const schemaEntries = `
CREATE TABLE IF NOT EXISTS crash_entries (
    slot INTEGER PRIMARY KEY,
    recorded_at TIMESTAMP NOT NULL,
    uptime_s INTEGER NOT NULL,
    reason TEXT NOT NULL,
    free_heap INTEGER NOT NULL,
    min_free_heap INTEGER NOT NULL
);
`

const schemaMeta = `
CREATE TABLE IF NOT EXISTS crash_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    write_index INTEGER NOT NULL,
    count INTEGER NOT NULL,
    clean_shutdown BOOLEAN NOT NULL
);
`

// Store keeps a fixed-size ring of crash entries plus a clean-shutdown
// marker in a SQLite file. Old entries are overwritten in slot order once
// the ring is full.
type Store struct {
	db         *sql.DB
	maxEntries int
}

// Open opens or creates the store at path and ensures the schema exists.
func Open(path string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db, maxEntries: maxEntries}, nil
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{schemaEntries, schemaMeta} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.Exec(`
		INSERT INTO crash_meta (id, write_index, count, clean_shutdown)
		VALUES (1, 0, 0, 1)
		ON CONFLICT(id) DO NOTHING
	`); err != nil {
		return fmt.Errorf("seed crash_meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends e at the current write index, advancing the ring.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var writeIndex, count int
	if err := tx.QueryRowContext(ctx,
		`SELECT write_index, count FROM crash_meta WHERE id = 1`).Scan(&writeIndex, &count); err != nil {
		return fmt.Errorf("read crash_meta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO crash_entries (slot, recorded_at, uptime_s, reason, free_heap, min_free_heap)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			recorded_at = excluded.recorded_at,
			uptime_s = excluded.uptime_s,
			reason = excluded.reason,
			free_heap = excluded.free_heap,
			min_free_heap = excluded.min_free_heap
	`,
		writeIndex,
		e.Timestamp.Format("2006-01-02 15:04:05"),
		int64(e.Uptime/time.Second),
		e.Reason,
		e.FreeHeap,
		e.MinFreeHeap,
	); err != nil {
		return fmt.Errorf("insert crash entry: %w", err)
	}

	writeIndex = (writeIndex + 1) % s.maxEntries
	if count < s.maxEntries {
		count++
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE crash_meta SET write_index = ?, count = ? WHERE id = 1`,
		writeIndex, count); err != nil {
		return fmt.Errorf("advance crash_meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record transaction: %w", err)
	}
	return nil
}

// List returns stored entries newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recorded_at, uptime_s, reason, free_heap, min_free_heap
		FROM crash_entries
		ORDER BY recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query crash entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			recorded string
			uptimeS  int64
		)
		if err := rows.Scan(&recorded, &uptimeS, &e.Reason, &e.FreeHeap, &e.MinFreeHeap); err != nil {
			return nil, fmt.Errorf("scan crash entry: %w", err)
		}
		if ts, perr := time.Parse("2006-01-02 15:04:05", recorded); perr == nil {
			e.Timestamp = ts.UTC()
		}
		e.Uptime = time.Duration(uptimeS) * time.Second
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count reports how many slots hold entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM crash_meta WHERE id = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read crash_meta count: %w", err)
	}
	return count, nil
}

// MarkDirty clears the clean-shutdown marker. Call it once the process is
// up; a boot that finds the marker still cleared knows the previous run
// ended abnormally.
func (s *Store) MarkDirty(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crash_meta SET clean_shutdown = 0 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("clear clean-shutdown marker: %w", err)
	}
	return nil
}

// MarkClean sets the clean-shutdown marker during orderly teardown.
func (s *Store) MarkClean(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crash_meta SET clean_shutdown = 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("set clean-shutdown marker: %w", err)
	}
	return nil
}

// WasCleanShutdown reports whether the previous run set the marker.
func (s *Store) WasCleanShutdown(ctx context.Context) (bool, error) {
	var clean bool
	err := s.db.QueryRowContext(ctx,
		`SELECT clean_shutdown FROM crash_meta WHERE id = 1`).Scan(&clean)
	if err != nil {
		return false, fmt.Errorf("read clean-shutdown marker: %w", err)
	}
	return clean, nil
}
