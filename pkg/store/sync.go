package store

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/natefinch/atomic"
)

// Import copies every file under dir whose extension is listed in exts
// into the store, keyed under prefix. An empty exts imports every file.
// It returns the number of views stored.
//
// A file dir/emails/welcome.tmpl imported with prefix "/views" is stored
// as "/views/emails/welcome.tmpl". All files are written in a single
// transaction.
func (s *Store) Import(ctx context.Context, dir, prefix string, exts ...string) (int, error) {
	type file struct {
		key  string
		body []byte
	}
	var files []file

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(p), ".")
		if len(exts) > 0 && !slices.Contains(exts, ext) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, file{key: Key(path.Join(prefix, filepath.ToSlash(rel))), body: body})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read views from %s: %w", dir, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	put := tx.StmtContext(ctx, s.stmtPut)
	for _, f := range files {
		if _, err = put.ExecContext(ctx, f.key, f.body, now().UnixNano()); err != nil {
			return 0, fmt.Errorf("failed to store view [%s]: %w", f.key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Views imported", "dir", dir, "prefix", prefix, "count", len(files))
	return len(files), nil
}

// Export writes every stored view under dir, recreating the directory
// structure of its key. Files are replaced atomically.
func (s *Store) Export(ctx context.Context, dir string) (int, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	for _, e := range entries {
		body, err := s.Get(ctx, e.Path)
		if err != nil {
			return 0, err
		}
		dst := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(e.Path, "/")))
		if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return 0, fmt.Errorf("failed to create directory for %s: %w", dst, err)
		}
		if err = atomic.WriteFile(dst, bytes.NewReader(body)); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", dst, err)
		}
	}

	s.logger.InfoContext(ctx, "Views exported", "dir", dir, "count", len(entries))
	return len(entries), nil
}
