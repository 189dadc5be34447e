// Package cache keeps file fingerprints keyed by (path, size, mtime) so
// unchanged files are not re-read or re-parsed on every run.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"itp/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_cache (
	path TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	mtime INTEGER NOT NULL,
	fingerprint BLOB NOT NULL
);
`

// FileCache is a SQLite side table of file fingerprints.
type FileCache struct {
	db *sql.DB
}

// Open opens or creates the cache database at {dir}/files.db
func Open(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "files.db"))
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// one writer; hashing workers serialize on the connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying cache schema: %w", err)
	}
	return &FileCache{db: db}, nil
}

// Close closes the cache database.
func (c *FileCache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the cached fingerprint for path if size and mtime still match.
func (c *FileCache) Get(path string, info os.FileInfo) (domain.FileFingerprint, bool, error) {
	var size, mtime int64
	var blob []byte
	err := c.db.QueryRow(
		"SELECT size, mtime, fingerprint FROM file_cache WHERE path = ?",
		path,
	).Scan(&size, &mtime, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FileFingerprint{}, false, nil
	}
	if err != nil {
		return domain.FileFingerprint{}, false, err
	}

	if size != info.Size() || mtime != info.ModTime().UnixNano() {
		return domain.FileFingerprint{}, false, nil // stale
	}

	var fp domain.FileFingerprint
	if err := json.Unmarshal(blob, &fp); err != nil {
		return domain.FileFingerprint{}, false, fmt.Errorf("decoding cached fingerprint of %s: %w", path, err)
	}
	if fp.Functions == nil {
		fp.Functions = map[string]string{}
	}
	if fp.Calls == nil {
		fp.Calls = map[string][]string{}
	}
	return fp, true, nil
}

// Put stores the fingerprint of path for the given stat.
func (c *FileCache) Put(path string, info os.FileInfo, fp domain.FileFingerprint) error {
	blob, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO file_cache (path, size, mtime, fingerprint)
		 VALUES (?, ?, ?, ?)`,
		path, info.Size(), info.ModTime().UnixNano(), blob,
	)
	return err
}

// Prune removes entries whose path is not in keep and returns how many were
// removed.
func (c *FileCache) Prune(keep map[string]bool) (int, error) {
	rows, err := c.db.Query("SELECT path FROM file_cache")
	if err != nil {
		return 0, err
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		if !keep[path] {
			stale = append(stale, path)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := c.db.Begin()
	if err != nil {
		return 0, err
	}
	for _, path := range stale {
		if _, err := tx.Exec("DELETE FROM file_cache WHERE path = ?", path); err != nil {
			tx.Rollback()
			return 0, err
		}
	}
	return len(stale), tx.Commit()
}

// Clear removes all entries from the cache.
func (c *FileCache) Clear() error {
	_, err := c.db.Exec("DELETE FROM file_cache")
	return err
}

// Len returns the number of cached files.
func (c *FileCache) Len() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM file_cache").Scan(&n)
	return n, err
}
