package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite" // SQLite driver.

	"itp/internal/domain"
)

// SQLStore keeps one row per snapshot. The auto-increment sequence column
// preserves append order.
type SQLStore struct {
	db *sql.DB
}

var schemas = map[string][]string{
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			taken_at INTEGER NOT NULL,
			commit_sha TEXT NOT NULL DEFAULT '',
			branch TEXT NOT NULL DEFAULT '',
			payload BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);`,
	},
	"mysql": {
		"CREATE TABLE IF NOT EXISTS snapshots (" +
			"seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY," +
			"id VARCHAR(36) NOT NULL UNIQUE," +
			"taken_at BIGINT NOT NULL," +
			"commit_sha VARCHAR(64) NOT NULL DEFAULT ''," +
			"branch VARCHAR(255) NOT NULL DEFAULT ''," +
			"payload LONGBLOB NOT NULL," +
			"INDEX idx_snapshots_taken_at (taken_at)" +
			")",
	},
}

// OpenSQLStore connects with driver ("sqlite" or "mysql") and creates the
// snapshots table when missing.
func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	stmts, ok := schemas[driver]
	if !ok {
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("unsupported history driver %q", driver)}
	}
	if dsn == "" {
		return nil, &domain.ConfigurationError{Reason: "history dsn is empty"}
	}

	if driver == "sqlite" && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create history table: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

// MySQLDSNFromEnv builds a DSN from the DB_HOST, DB_PORT, DB_USERNAME,
// DB_PASSWORD and DB_DATABASE variables, as loaded from the workspace .env.
func MySQLDSNFromEnv() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = envOr("DB_HOST", "127.0.0.1") + ":" + envOr("DB_PORT", "3306")
	cfg.User = envOr("DB_USERNAME", "root")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = envOr("DB_DATABASE", "itp")
	return cfg.FormatDSN()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Save appends snap in its own transaction.
func (s *SQLStore) Save(ctx context.Context, snap domain.Snapshot) (err error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, taken_at, commit_sha, branch, payload) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.Timestamp.UnixNano(), snap.Commit, snap.Branch, payload,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return tx.Commit()
}

// Snapshots returns the last n snapshots in append order, or all when n <= 0.
func (s *SQLStore) Snapshots(ctx context.Context, n int) ([]domain.Snapshot, error) {
	if n <= 0 {
		return s.query(ctx, `SELECT payload FROM snapshots ORDER BY seq`)
	}
	return s.query(ctx,
		`SELECT payload FROM (SELECT seq, payload FROM snapshots ORDER BY seq DESC LIMIT ?) recent ORDER BY seq`,
		n,
	)
}

// SnapshotsByDate returns snapshots taken within [start, end].
func (s *SQLStore) SnapshotsByDate(ctx context.Context, start, end time.Time) ([]domain.Snapshot, error) {
	return s.query(ctx,
		`SELECT payload FROM snapshots WHERE taken_at >= ? AND taken_at <= ? ORDER BY seq`,
		start.UnixNano(), end.UnixNano(),
	)
}

// Clear deletes every snapshot.
func (s *SQLStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`)
	return err
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.Snapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("parse snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
