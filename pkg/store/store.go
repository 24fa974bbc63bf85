package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"time"
)

// ErrNotFound is returned when no view is stored under a path. It matches
// fs.ErrNotExist so callers can treat the store like a filesystem.
var ErrNotFound = fmt.Errorf("store: view not found: %w", fs.ErrNotExist)

// now stamps writes; tests replace it.
var now = time.Now

// SetupSchema creates the views table. It is idempotent.
func SetupSchema(db *sql.DB) error {
	const schemaViews = `
CREATE TABLE IF NOT EXISTS views (
    view_path TEXT PRIMARY KEY,
    body BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
`
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaViews); err != nil {
		return fmt.Errorf("could not create views schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Entry describes one stored view.
type Entry struct {
	Path      string    `json:"path"`
	Size      int       `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes view templates in SQLite through prepared
// statements. All methods are concurrent-safe.
type Store struct {
	db         *sql.DB
	logger     *slog.Logger
	stmtExists *sql.Stmt
	stmtGet    *sql.Stmt
	stmtMod    *sql.Stmt
	stmtPut    *sql.Stmt
	stmtDelete *sql.Stmt
	stmtList   *sql.Stmt
}

// New prepares the store's statements. SetupSchema must have run on db.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{db: db, logger: logger}

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtExists, `SELECT 1 FROM views WHERE view_path = ?;`},
		{&s.stmtGet, `SELECT body FROM views WHERE view_path = ?;`},
		{&s.stmtMod, `SELECT updated_at FROM views WHERE view_path = ?;`},
		{&s.stmtPut, `INSERT INTO views (view_path, body, updated_at) VALUES (?, ?, ?) ON CONFLICT(view_path) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at;`},
		{&s.stmtDelete, `DELETE FROM views WHERE view_path = ?;`},
		{&s.stmtList, `SELECT view_path, length(body), updated_at FROM views ORDER BY view_path;`},
	}
	for _, st := range stmts {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to prepare statement %q: %w", st.query, err)
		}
		*st.dst = stmt
	}
	return s, nil
}

// Close releases the prepared statements. The database stays open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{s.stmtExists, s.stmtGet, s.stmtMod, s.stmtPut, s.stmtDelete, s.stmtList} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// Key normalizes a path into the form views are stored under.
func Key(p string) string {
	return path.Clean("/" + p)
}

// Exists implements view.Filesystem.
func (s *Store) Exists(p string) bool {
	var one int
	err := s.stmtExists.QueryRow(Key(p)).Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("View existence check failed", "path", p, "error", err)
	}
	return err == nil
}

// ReadFile implements engines.Source.
func (s *Store) ReadFile(p string) ([]byte, error) {
	return s.Get(context.Background(), p)
}

// ModTime implements engines.ModTimer.
func (s *Store) ModTime(p string) (time.Time, error) {
	var nanos int64
	err := s.stmtMod.QueryRow(Key(p)).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("view [%s]: %w", p, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read view timestamp [%s]: %w", p, err)
	}
	return time.Unix(0, nanos), nil
}

// Get returns the body stored under p.
func (s *Store) Get(ctx context.Context, p string) ([]byte, error) {
	var body []byte
	err := s.stmtGet.QueryRowContext(ctx, Key(p)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("view [%s]: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read view [%s]: %w", p, err)
	}
	return body, nil
}

// Put creates or replaces the view stored under p.
func (s *Store) Put(ctx context.Context, p string, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	if _, err := s.stmtPut.ExecContext(ctx, Key(p), body, now().UnixNano()); err != nil {
		return fmt.Errorf("failed to store view [%s]: %w", p, err)
	}
	s.logger.DebugContext(ctx, "View stored", "path", Key(p), "size", len(body))
	return nil
}

// Delete removes the view stored under p. Deleting a missing view returns
// ErrNotFound.
func (s *Store) Delete(ctx context.Context, p string) error {
	res, err := s.stmtDelete.ExecContext(ctx, Key(p))
	if err != nil {
		return fmt.Errorf("failed to delete view [%s]: %w", p, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete view [%s]: %w", p, err)
	}
	if n == 0 {
		return fmt.Errorf("view [%s]: %w", p, ErrNotFound)
	}
	return nil
}

// List returns every stored view ordered by path.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.stmtList.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	entries := []Entry{}
	for rows.Next() {
		var (
			e     Entry
			nanos int64
		)
		if err = rows.Scan(&e.Path, &e.Size, &nanos); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(0, nanos)
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
