package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/okian/hatch/internal/domain/model"

	_ "modernc.org/sqlite"
)

const sqliteStore = "sqlite"

// SQLite holds the database shared by the SQLite talent and session stores.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock
}

// OpenSQLite opens (creating if needed) the database at path and ensures
// the schema exists.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; sqlite serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	o := buildOptions(opts)
	s := &SQLite{db: db, clock: o.clock}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS talents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  white_stars INTEGER NOT NULL DEFAULT 0,
  progress REAL NOT NULL DEFAULT 0,
  progress_target REAL NOT NULL,
  streak_count INTEGER NOT NULL DEFAULT 0,
  total_seconds REAL NOT NULL DEFAULT 0,
  streak_obtained INTEGER NOT NULL DEFAULT 0,
  expiring INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS sessions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  talent_id INTEGER NOT NULL,
  start_ns INTEGER NOT NULL,
  end_ns INTEGER,
  progress_obtained REAL NOT NULL DEFAULT 0,
  progress_target REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sessions_talent ON sessions (talent_id);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Talents returns the TalentStore backed by this database.
func (s *SQLite) Talents() *SQLiteTalentStore { return &SQLiteTalentStore{db: s.db} }

// Sessions returns the SessionStore backed by this database.
func (s *SQLite) Sessions() *SQLiteSessionStore {
	return &SQLiteSessionStore{db: s.db, clock: s.clock}
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SQLiteTalentStore is a TalentStore over SQLite.
type SQLiteTalentStore struct {
	db *sql.DB
}

const talentColumns = `id, user_id, name, white_stars, progress, progress_target, streak_count, total_seconds, streak_obtained, expiring`

type scanner interface {
	Scan(dest ...any) error
}

func scanTalent(row scanner) (model.Talent, error) {
	var t model.Talent
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.WhiteStars, &t.Progress, &t.ProgressTarget,
		&t.StreakCount, &t.TotalSeconds, &t.StreakObtained, &t.Expiring)
	return t, err
}

// Create implements TalentStore.
func (s *SQLiteTalentStore) Create(ctx context.Context, t model.Talent) (_ model.Talent, err error) {
	defer observe(sqliteStore, "talent_create", time.Now(), &err)
	const stmt = `
INSERT INTO talents (user_id, name, white_stars, progress, progress_target, streak_count, total_seconds, streak_obtained, expiring)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	res, err := s.db.ExecContext(ctx, stmt, t.UserID, t.Name, t.WhiteStars, t.Progress, t.ProgressTarget,
		t.StreakCount, t.TotalSeconds, t.StreakObtained, t.Expiring)
	if err != nil {
		return model.Talent{}, fmt.Errorf("insert talent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Talent{}, fmt.Errorf("talent id: %w", err)
	}
	t.ID = id
	return t, nil
}

// List implements TalentStore.
func (s *SQLiteTalentStore) List(ctx context.Context) (_ []model.Talent, err error) {
	defer observe(sqliteStore, "talent_list", time.Now(), &err)
	rows, err := s.db.QueryContext(ctx, `SELECT `+talentColumns+` FROM talents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list talents: %w", err)
	}
	defer rows.Close()

	out := []model.Talent{}
	for rows.Next() {
		t, err := scanTalent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan talent: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list talents: %w", err)
	}
	return out, nil
}

// Get implements TalentStore.
func (s *SQLiteTalentStore) Get(ctx context.Context, id int64) (_ model.Talent, err error) {
	defer observe(sqliteStore, "talent_get", time.Now(), &err)
	row := s.db.QueryRowContext(ctx, `SELECT `+talentColumns+` FROM talents WHERE id = ?`, id)
	t, err := scanTalent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Talent{}, fmt.Errorf("talent %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Talent{}, fmt.Errorf("get talent %d: %w", id, err)
	}
	return t, nil
}

// Update implements TalentStore.
func (s *SQLiteTalentStore) Update(ctx context.Context, t model.Talent) (_ model.Talent, err error) {
	defer observe(sqliteStore, "talent_update", time.Now(), &err)
	if err := updateTalent(ctx, s.db, t); err != nil {
		return model.Talent{}, err
	}
	return t, nil
}

// UpdateAll implements TalentStore.
func (s *SQLiteTalentStore) UpdateAll(ctx context.Context, talents []model.Talent) (err error) {
	defer observe(sqliteStore, "talent_update_all", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update all: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range talents {
		if err := updateTalent(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update all: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateTalent(ctx context.Context, db execer, t model.Talent) error {
	const stmt = `
UPDATE talents SET
  user_id=?, name=?, white_stars=?, progress=?, progress_target=?,
  streak_count=?, total_seconds=?, streak_obtained=?, expiring=?
WHERE id=?;
`
	res, err := db.ExecContext(ctx, stmt, t.UserID, t.Name, t.WhiteStars, t.Progress, t.ProgressTarget,
		t.StreakCount, t.TotalSeconds, t.StreakObtained, t.Expiring, t.ID)
	if err != nil {
		return fmt.Errorf("update talent %d: %w", t.ID, err)
	}
	return affectedOne(res, "talent", t.ID)
}

// Delete implements TalentStore.
func (s *SQLiteTalentStore) Delete(ctx context.Context, id int64) (err error) {
	defer observe(sqliteStore, "talent_delete", time.Now(), &err)
	res, err := s.db.ExecContext(ctx, `DELETE FROM talents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete talent %d: %w", id, err)
	}
	return affectedOne(res, "talent", id)
}

// Count implements TalentStore.
func (s *SQLiteTalentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM talents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count talents: %w", err)
	}
	return n, nil
}

// SQLiteSessionStore is a SessionStore over SQLite. Timestamps are stored
// as unix nanoseconds; a NULL end means the session is open.
type SQLiteSessionStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

const sessionColumns = `id, user_id, talent_id, start_ns, end_ns, progress_obtained, progress_target`

func scanSession(row scanner) (model.Session, error) {
	var (
		s     model.Session
		start int64
		end   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.TalentID, &start, &end, &s.ProgressObtained, &s.ProgressTarget); err != nil {
		return model.Session{}, err
	}
	s.Start = time.Unix(0, start)
	if end.Valid {
		e := time.Unix(0, end.Int64)
		s.End = &e
	}
	return s, nil
}

func endNanos(s model.Session) sql.NullInt64 {
	if s.End == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: s.End.UnixNano(), Valid: true}
}

// Exchange implements SessionStore.
func (s *SQLiteSessionStore) Exchange(ctx context.Context, t model.Talent) (_ model.Session, err error) {
	defer observe(sqliteStore, "session_exchange", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, fmt.Errorf("begin exchange: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var open int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM sessions WHERE talent_id = ? AND end_ns IS NULL LIMIT 1`, t.ID).Scan(&open)
	switch {
	case err == nil:
		return model.Session{}, fmt.Errorf("talent %d session %d: %w", t.ID, open, ErrOpenSession)
	case !errors.Is(err, sql.ErrNoRows):
		return model.Session{}, fmt.Errorf("find open session: %w", err)
	}

	session := model.NewSession(0, t, s.clock.Now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (user_id, talent_id, start_ns, end_ns, progress_obtained, progress_target) VALUES (?, ?, ?, NULL, 0, ?)`,
		session.UserID, session.TalentID, session.Start.UnixNano(), session.ProgressTarget)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	if session.ID, err = res.LastInsertId(); err != nil {
		return model.Session{}, fmt.Errorf("session id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Session{}, fmt.Errorf("commit exchange: %w", err)
	}
	return session, nil
}

// Update implements SessionStore.
func (s *SQLiteSessionStore) Update(ctx context.Context, session model.Session) (_ model.Session, err error) {
	defer observe(sqliteStore, "session_update", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Session{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var end sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT end_ns FROM sessions WHERE id = ?`, session.ID).Scan(&end)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %d: %w", session.ID, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %d: %w", session.ID, err)
	}
	if end.Valid {
		return model.Session{}, fmt.Errorf("session %d: %w", session.ID, ErrSessionClosed)
	}

	const stmt = `
UPDATE sessions SET user_id=?, talent_id=?, start_ns=?, end_ns=?, progress_obtained=?, progress_target=?
WHERE id=?;
`
	if _, err := tx.ExecContext(ctx, stmt, session.UserID, session.TalentID, session.Start.UnixNano(),
		endNanos(session), session.ProgressObtained, session.ProgressTarget, session.ID); err != nil {
		return model.Session{}, fmt.Errorf("update session %d: %w", session.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Session{}, fmt.Errorf("commit update: %w", err)
	}
	return session.Clone(), nil
}

// Get implements SessionStore.
func (s *SQLiteSessionStore) Get(ctx context.Context, id int64) (_ model.Session, err error) {
	defer observe(sqliteStore, "session_get", time.Now(), &err)
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %d: %w", id, err)
	}
	return session, nil
}

// List implements SessionStore.
func (s *SQLiteSessionStore) List(ctx context.Context) (_ []model.Session, err error) {
	defer observe(sqliteStore, "session_list", time.Now(), &err)
	return s.query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY id`)
}

// ListByTalent implements SessionStore.
func (s *SQLiteSessionStore) ListByTalent(ctx context.Context, talentID int64) (_ []model.Session, err error) {
	defer observe(sqliteStore, "session_list_by_talent", time.Now(), &err)
	return s.query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE talent_id = ? ORDER BY id`, talentID)
}

func (s *SQLiteSessionStore) query(ctx context.Context, q string, args ...any) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []model.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func affectedOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
