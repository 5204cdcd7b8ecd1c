package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/okian/tops/internal/domain/model"
)

const sqliteDriver = "sqlite"

// Ordering used for loads and eviction; the reverse picks the lowest ranked row.
const (
	rankOrder   = "value DESC, updated_at ASC, id ASC"
	evictOrder  = "value ASC, updated_at DESC, id DESC"
	schemaBoard = `
		CREATE TABLE IF NOT EXISTS top_entries (
			top TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY(top, id)
		)`
	schemaBoardIdx = `CREATE INDEX IF NOT EXISTS top_entries_value_idx ON top_entries (top, value)`
	schemaSnap     = `
		CREATE TABLE IF NOT EXISTS top_snapshots (
			top TEXT NOT NULL,
			id TEXT NOT NULL,
			value REAL NOT NULL,
			taken_at INTEGER NOT NULL,
			PRIMARY KEY(top, id)
		)`
	schemaMeta = `
		CREATE TABLE IF NOT EXISTS top_timed_meta (
			top TEXT PRIMARY KEY,
			start_time INTEGER NOT NULL,
			next_reset_time INTEGER NOT NULL,
			last_reset_time INTEGER
		)`
)

type cachedSize struct {
	n  int
	at time.Time
}

// SQLiteStore is a PersistentStore on an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	opts options

	// writeMu serializes check-then-write sequences so the eviction policy
	// sees a consistent board.
	writeMu sync.Mutex

	sizeMu sync.Mutex
	sizes  map[string]cachedSize

	closeOnce sync.Once
	closed    bool
	closedMu  sync.RWMutex
}

var _ PersistentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the schema.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, o.busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, opts: o, sizes: make(map[string]cachedSize)}
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if !s.Available() {
		return ErrStoreClosed
	}
	for _, stmt := range []string{schemaBoard, schemaBoardIdx, schemaSnap, schemaMeta} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closedMu.Lock()
		s.closed = true
		s.closedMu.Unlock()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteStore) Available() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return !s.closed
}

func (s *SQLiteStore) check(top string) error {
	if !s.Available() {
		return ErrStoreClosed
	}
	if top == "" {
		return ErrInvalidTop
	}
	return nil
}

func (s *SQLiteStore) invalidate(top string) {
	s.sizeMu.Lock()
	delete(s.sizes, top)
	s.sizeMu.Unlock()
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countRows(ctx context.Context, q queryer, top string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM top_entries WHERE top = ?`, top).Scan(&n)
	return n, err
}

func minValue(ctx context.Context, q queryer, top string) (float64, bool, error) {
	var v sql.NullFloat64
	if err := q.QueryRowContext(ctx, `SELECT MIN(value) FROM top_entries WHERE top = ?`, top).Scan(&v); err != nil {
		return 0, false, err
	}
	return v.Float64, v.Valid, nil
}

func exists(ctx context.Context, q queryer, top string, id model.Identifier) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM top_entries WHERE top = ? AND id = ?`, top, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

const upsertEntry = `
	INSERT INTO top_entries (top, id, name, value, updated_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(top, id) DO UPDATE SET name = excluded.name, value = excluded.value, updated_at = excluded.updated_at`

const evictLowest = `
	DELETE FROM top_entries WHERE top = ? AND id = (
		SELECT id FROM top_entries WHERE top = ? ORDER BY ` + evictOrder + ` LIMIT 1)`

func (s *SQLiteStore) Load(ctx context.Context, top string) (out []model.Entry, err error) {
	defer observe(sqliteDriver, "load", time.Now(), &err)
	if err = s.check(top); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, value, updated_at FROM top_entries WHERE top = ? ORDER BY `+rankOrder, top)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out = make([]model.Entry, 0)
	for rows.Next() {
		var (
			rawID   string
			e       model.Entry
			updated int64
		)
		if err = rows.Scan(&rawID, &e.Name, &e.Value, &updated); err != nil {
			return nil, err
		}
		if e.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("load %s: bad identifier %q: %w", top, rawID, err)
		}
		e.LastUpdated = fromMillis(updated)
		e.Position = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, top string, id model.Identifier, name string, value float64, maxSize int) (saved bool, err error) {
	defer observe(sqliteDriver, "save", time.Now(), &err)
	if maxSize <= 0 {
		return false, ErrInvalidSize
	}
	if err = s.check(top); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer s.invalidate(top)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !saved {
			_ = tx.Rollback()
		}
	}()

	size, err := countRows(ctx, tx, top)
	if err != nil {
		return false, err
	}
	if size >= maxSize {
		present, perr := exists(ctx, tx, top, id)
		if perr != nil {
			return false, perr
		}
		low, ok, merr := minValue(ctx, tx, top)
		if merr != nil {
			return false, merr
		}
		if !present && ok && value <= low {
			return false, nil
		}
	}

	if _, err = tx.ExecContext(ctx, upsertEntry, top, id.String(), name, value, millis(s.opts.now())); err != nil {
		return false, err
	}
	if size, err = countRows(ctx, tx, top); err != nil {
		return false, err
	}
	if size > maxSize {
		if _, err = tx.ExecContext(ctx, evictLowest, top, top); err != nil {
			return false, err
		}
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, top string, entries []BatchEntry, maxSize int) (err error) {
	defer observe(sqliteDriver, "save_batch", time.Now(), &err)
	if maxSize <= 0 {
		return ErrInvalidSize
	}
	if err = s.check(top); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer s.invalidate(top)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertEntry)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := millis(s.opts.now())
	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx, top, e.ID.String(), e.Name, e.Value, ts); err != nil {
			return err
		}
	}

	size, err := countRows(ctx, tx, top)
	if err != nil {
		return err
	}
	if excess := size - maxSize; excess > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM top_entries WHERE top = ? AND id IN (
				SELECT id FROM top_entries WHERE top = ? ORDER BY `+evictOrder+` LIMIT ?)`, top, top, excess)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) MinValue(ctx context.Context, top string) (float64, bool, error) {
	if err := s.check(top); err != nil {
		return 0, false, err
	}
	return minValue(ctx, s.db, top)
}

// Size returns the entry count, served from a short-lived cache.
func (s *SQLiteStore) Size(ctx context.Context, top string) (n int, err error) {
	if err = s.check(top); err != nil {
		return 0, err
	}
	now := time.Now()
	s.sizeMu.Lock()
	if c, ok := s.sizes[top]; ok && now.Sub(c.at) < s.opts.sizeCacheTTL {
		s.sizeMu.Unlock()
		return c.n, nil
	}
	s.sizeMu.Unlock()

	defer observe(sqliteDriver, "size", now, &err)
	if n, err = countRows(ctx, s.db, top); err != nil {
		return 0, err
	}
	s.sizeMu.Lock()
	s.sizes[top] = cachedSize{n: n, at: now}
	s.sizeMu.Unlock()
	return n, nil
}

func (s *SQLiteStore) Entry(ctx context.Context, top string, id model.Identifier) (model.Entry, bool, error) {
	if err := s.check(top); err != nil {
		return model.Entry{}, false, err
	}
	var (
		e       = model.Entry{ID: id}
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT e.name, e.value, e.updated_at,
			(SELECT COUNT(*) + 1 FROM top_entries g WHERE g.top = e.top AND (g.value > e.value
				OR (g.value = e.value AND (g.updated_at < e.updated_at
					OR (g.updated_at = e.updated_at AND g.id < e.id)))))
		FROM top_entries e WHERE e.top = ? AND e.id = ?`, top, id.String()).Scan(&e.Name, &e.Value, &updated, &e.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entry{}, false, nil
	}
	if err != nil {
		return model.Entry{}, false, err
	}
	e.LastUpdated = fromMillis(updated)
	return e, true, nil
}

func (s *SQLiteStore) Position(ctx context.Context, top string, id model.Identifier) (pos int, err error) {
	defer observe(sqliteDriver, "position", time.Now(), &err)
	e, ok, err := s.Entry(ctx, top, id)
	if err != nil {
		return -1, err
	}
	if !ok {
		return -1, nil
	}
	return e.Position, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, top string, id model.Identifier) error {
	if err := s.check(top); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer s.invalidate(top)
	_, err := s.db.ExecContext(ctx, `DELETE FROM top_entries WHERE top = ? AND id = ?`, top, id.String())
	return err
}

func (s *SQLiteStore) Clear(ctx context.Context, top string) (err error) {
	defer observe(sqliteDriver, "clear", time.Now(), &err)
	if err = s.check(top); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	defer s.invalidate(top)
	_, err = s.db.ExecContext(ctx, `DELETE FROM top_entries WHERE top = ?`, top)
	return err
}

func (s *SQLiteStore) Snapshot(ctx context.Context, top string, id model.Identifier) (float64, bool, error) {
	if err := s.check(top); err != nil {
		return 0, false, err
	}
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM top_snapshots WHERE top = ? AND id = ?`, top, id.String()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) SetSnapshot(ctx context.Context, top string, id model.Identifier, value float64) error {
	if err := s.check(top); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO top_snapshots (top, id, value, taken_at) VALUES (?, ?, ?, ?)`,
		top, id.String(), value, millis(s.opts.now()))
	return err
}

func (s *SQLiteStore) SaveSnapshots(ctx context.Context, top string, values map[model.Identifier]float64) (err error) {
	defer observe(sqliteDriver, "save_snapshots", time.Now(), &err)
	if err = s.check(top); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO top_snapshots (top, id, value, taken_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(top, id) DO UPDATE SET value = excluded.value, taken_at = excluded.taken_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := millis(s.opts.now())
	for id, v := range values {
		if _, err = stmt.ExecContext(ctx, top, id.String(), v, ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Snapshots(ctx context.Context, top string) (map[model.Identifier]float64, error) {
	if err := s.check(top); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, value FROM top_snapshots WHERE top = ?`, top)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.Identifier]float64)
	for rows.Next() {
		var (
			rawID string
			v     float64
		)
		if err := rows.Scan(&rawID, &v); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearSnapshots(ctx context.Context, top string) error {
	if err := s.check(top); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM top_snapshots WHERE top = ?`, top)
	return err
}

func (s *SQLiteStore) SaveMeta(ctx context.Context, top string, meta TimedMeta) error {
	if err := s.check(top); err != nil {
		return err
	}
	var last sql.NullInt64
	if meta.LastResetTime != nil {
		last = sql.NullInt64{Int64: millis(*meta.LastResetTime), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO top_timed_meta (top, start_time, next_reset_time, last_reset_time) VALUES (?, ?, ?, ?)
		ON CONFLICT(top) DO UPDATE SET start_time = excluded.start_time,
			next_reset_time = excluded.next_reset_time, last_reset_time = excluded.last_reset_time`,
		top, millis(meta.StartTime), millis(meta.NextResetTime), last)
	return err
}

func (s *SQLiteStore) LoadMeta(ctx context.Context, top string) (TimedMeta, bool, error) {
	if err := s.check(top); err != nil {
		return TimedMeta{}, false, err
	}
	var (
		start, next int64
		last        sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT start_time, next_reset_time, last_reset_time FROM top_timed_meta WHERE top = ?`, top).
		Scan(&start, &next, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return TimedMeta{}, false, nil
	}
	if err != nil {
		return TimedMeta{}, false, err
	}
	meta := TimedMeta{StartTime: fromMillis(start), NextResetTime: fromMillis(next)}
	if last.Valid {
		t := fromMillis(last.Int64)
		meta.LastResetTime = &t
	}
	return meta, true, nil
}
