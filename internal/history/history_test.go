package history

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itp/internal/config"
	"itp/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshotAt(day int, passed, failed int) domain.Snapshot {
	table := domain.ResultTable{}
	for i := 0; i < passed; i++ {
		table.Set(domain.TestID{File: "t_test.py", Name: "test_p" + string(rune('a'+i))}, domain.TestResult{Passed: true})
	}
	for i := 0; i < failed; i++ {
		table.Set(domain.TestID{File: "t_test.py", Name: "test_f" + string(rune('a'+i))}, domain.TestResult{Passed: false})
	}
	snap := domain.NewSnapshot(&domain.State{Results: table}, base.AddDate(0, 0, day))
	snap.Commit = "abc123"
	return snap
}

func stores(t *testing.T) map[string]Store {
	dir := t.TempDir()
	sqlStore, err := OpenSQLStore("sqlite", filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"file": NewFileStore(filepath.Join(dir, "history.json")),
		"sql":  sqlStore,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			empty, err := store.Snapshots(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, empty, "missing log reads as empty")

			// appended out of timestamp order on purpose
			days := []int{0, 2, 1, 5}
			var ids []string
			for _, d := range days {
				snap := snapshotAt(d, d+1, 1)
				ids = append(ids, snap.ID)
				require.NoError(t, store.Save(ctx, snap))
			}

			all, err := store.Snapshots(ctx, 0)
			require.NoError(t, err)
			require.Len(t, all, 4)
			for i, snap := range all {
				assert.Equal(t, ids[i], snap.ID, "append order is kept")
			}
			assert.True(t, all[1].Timestamp.Equal(base.AddDate(0, 0, 2)))
			assert.Equal(t, "abc123", all[0].Commit)

			last, err := store.Snapshots(ctx, 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, ids[2:], []string{last[0].ID, last[1].ID})

			ranged, err := store.SnapshotsByDate(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
			require.NoError(t, err)
			require.Len(t, ranged, 2, "range is inclusive on both ends")
			assert.Equal(t, ids[1], ranged[0].ID)
			assert.Equal(t, ids[2], ranged[1].ID)

			require.NoError(t, store.Clear(ctx))
			all, err = store.Snapshots(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "history.json"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, store.Save(ctx, snapshotAt(i, 1, 0)))
		}(i)
	}
	wg.Wait()

	all, err := store.Snapshots(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestOpen(t *testing.T) {
	cfg := config.New()
	cfg.ProjectPath = t.TempDir()

	store, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)
	store.Close()

	cfg.History.Backend = "sql"
	store, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, store)
	store.Close()

	cfg.History.Backend = "ftp"
	_, err = Open(cfg)
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMySQLDSNFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_USERNAME", "ci")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_DATABASE", "itp_history")

	assert.Equal(t, "ci:secret@tcp(db.internal:3307)/itp_history", MySQLDSNFromEnv())
}

func TestProcessor_Trend(t *testing.T) {
	p := NewProcessor()
	first := snapshotAt(0, 3, 1)
	first.Coverage = &domain.CoverageReport{Totals: domain.CoverageSummary{PercentCovered: 80}}
	second := snapshotAt(1, 4, 0)
	second.Coverage = &domain.CoverageReport{Totals: domain.CoverageSummary{PercentCovered: 85.5}}
	third := snapshotAt(2, 4, 2)

	trend := p.Trend([]domain.Snapshot{first, second, third})

	require.Len(t, trend, 3)
	assert.Equal(t, Summary{ID: first.ID, Timestamp: first.Timestamp, Commit: "abc123", Total: 4, Passed: 3, Failed: 1, Coverage: 80}, trend[0].Summary)
	assert.Zero(t, trend[0].DeltaPassed)

	assert.Equal(t, 1, trend[1].DeltaPassed)
	assert.Equal(t, -1, trend[1].DeltaFailed)
	assert.InDelta(t, 5.5, trend[1].DeltaCoverage, 1e-9)

	assert.Equal(t, 0.0, trend[2].Coverage, "snapshot without coverage")
	assert.Equal(t, 2, trend[2].DeltaFailed)

	assert.Equal(t, trend[0].Summary, p.Summarize(first), "summaries are pure")
}
