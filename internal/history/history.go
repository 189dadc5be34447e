// Package history keeps an append-only log of result snapshots and derives
// trends from it.
package history

import (
	"context"
	"fmt"
	"time"

	"itp/internal/config"
	"itp/internal/domain"
)

// Store is an append-only snapshot log. Snapshots are returned in the order
// they were appended.
type Store interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	// Snapshots returns the last n snapshots, or all of them when n <= 0.
	Snapshots(ctx context.Context, n int) ([]domain.Snapshot, error)
	// SnapshotsByDate returns snapshots taken within [start, end].
	SnapshotsByDate(ctx context.Context, start, end time.Time) ([]domain.Snapshot, error)
	Clear(ctx context.Context) error
	Close() error
}

// Open returns the store selected by the configuration
func Open(cfg *config.Config) (Store, error) {
	switch cfg.History.Backend {
	case "json":
		return NewFileStore(cfg.GetHistoryPath()), nil
	case "sql":
		dsn := cfg.GetHistoryDSN()
		if dsn == "" && cfg.History.Driver == "mysql" {
			dsn = MySQLDSNFromEnv()
		}
		return OpenSQLStore(cfg.History.Driver, dsn)
	default:
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("unknown history backend %q", cfg.History.Backend)}
	}
}

func lastN(snaps []domain.Snapshot, n int) []domain.Snapshot {
	if n <= 0 || n >= len(snaps) {
		return snaps
	}
	return snaps[len(snaps)-n:]
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
