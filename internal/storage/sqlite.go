package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite" // SQLite driver.

	"itp/internal/domain"
)

// SQLiteRepository keeps the state as one zstd compressed JSON value in a
// key/value table. The key is derived from the absolute workspace root so a
// database moved between workspaces never mixes their state.
type SQLiteRepository struct {
	db  *sql.DB
	key string

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Open opens or creates the state database at path for the workspace root.
func Open(path, root string) (*SQLiteRepository, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, err
	}

	repo := &SQLiteRepository{
		db:      db,
		key:     StateKey(absRoot),
		encoder: encoder,
		decoder: decoder,
	}
	if err := repo.migrate(); err != nil {
		repo.Close()
		return nil, fmt.Errorf("migrate state db: %w", err)
	}
	return repo, nil
}

// StateKey returns the session key of a workspace root.
func StateKey(absRoot string) string {
	return fmt.Sprintf("session:%016x", xxhash.Sum64String(absRoot))
}

func (r *SQLiteRepository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_state (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	r.decoder.Close()
	if err := r.encoder.Close(); err != nil {
		r.db.Close()
		return err
	}
	return r.db.Close()
}

// Load reads the committed state.
func (r *SQLiteRepository) Load(ctx context.Context) (*domain.State, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM session_state WHERE key = ?`, r.key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	data, err := r.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress state: %w", err)
	}
	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if state.Fingerprint == nil {
		state.Fingerprint = domain.WorkspaceFingerprint{}
	}
	return &state, nil
}

// Save overwrites the state in a single transaction.
func (r *SQLiteRepository) Save(ctx context.Context, state *domain.State) (err error) {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	blob := r.encoder.EncodeAll(data, nil)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		r.key, blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return tx.Commit()
}

// Clear deletes the state of this workspace.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session_state WHERE key = ?`, r.key)
	return err
}
