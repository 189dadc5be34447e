package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itp/internal/analyzer"
	"itp/internal/config"
	"itp/internal/discovery"
	"itp/internal/domain"
	"itp/internal/execution"
	"itp/internal/fingerprint"
	"itp/internal/history"
	"itp/internal/logger"
	"itp/internal/parser"
	"itp/internal/storage"
)

// fakeExecutor writes a pytest-json-report and a coverage report for the
// selected tests instead of starting a process.
type fakeExecutor struct {
	mu       sync.Mutex
	dir      string
	all      []domain.TestID
	outcomes map[string]string // node id -> outcome, default "passed"
	covered  []int
	cancel   bool
	err      error
	// selected id -> reported parametrized cases
	expand   map[domain.TestID][]domain.TestID
	started  chan struct{}
	release  chan struct{}
	calls    []domain.Selection
}

func newFakeExecutor(t *testing.T, all ...domain.TestID) *fakeExecutor {
	return &fakeExecutor{
		dir:      t.TempDir(),
		all:      all,
		outcomes: map[string]string{},
		covered:  []int{1, 2},
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, sel domain.Selection, _ execution.ProgressReporter) (*execution.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sel)
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	if f.cancel {
		return &execution.Outcome{Cancelled: true}, nil
	}
	if f.err != nil {
		return nil, f.err
	}

	var tests []domain.TestID
	if sel.All {
		tests = f.all
	}
	for _, id := range sel.Tests {
		if cases, ok := f.expand[id]; ok {
			tests = append(tests, cases...)
			continue
		}
		tests = append(tests, id)
	}
	var entries []map[string]interface{}
	for _, id := range tests {
		outcome := f.outcomes[id.String()]
		if outcome == "" {
			outcome = "passed"
		}
		entries = append(entries, map[string]interface{}{
			"nodeid":  id.String(),
			"outcome": outcome,
			"call":    map[string]interface{}{"duration": 0.1, "outcome": outcome},
		})
	}
	reportPath := filepath.Join(f.dir, "report.json")
	if err := writeJSON(reportPath, map[string]interface{}{"tests": entries}); err != nil {
		return nil, err
	}

	coveragePath := filepath.Join(f.dir, "coverage.json")
	cov := map[string]interface{}{
		"files": map[string]interface{}{
			"a.py": map[string]interface{}{
				"executed_lines": f.covered,
				"excluded_lines": []int{},
				"missing_lines":  []int{},
			},
		},
	}
	if err := writeJSON(coveragePath, cov); err != nil {
		return nil, err
	}

	return &execution.Outcome{ExitCode: 0, ReportPath: reportPath, CoveragePath: coveragePath}, nil
}

func (f *fakeExecutor) selections() []domain.Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Selection(nil), f.calls...)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

const (
	sourceV1 = "def helper():\n    return 1\n"
	sourceV2 = "def helper():\n    return 2\n"
	testsV1  = "from a import helper\n\ndef test_helper():\n    assert helper()\n\ndef test_other():\n    assert True\n"
)

var (
	testHelper = domain.TestID{File: "a_test.py", Name: "test_helper"}
	testOther  = domain.TestID{File: "a_test.py", Name: "test_other"}
)

type fixture struct {
	root     string
	session  *Session
	executor *fakeExecutor
	repo     *storage.SQLiteRepository
	history  *history.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	write(t, root, "a.py", sourceV1)
	write(t, root, "a_test.py", testsV1)

	cfg := config.New()
	cfg.ProjectPath = root

	scanner := discovery.NewScanner(discovery.Options{
		SkipDirs:     cfg.PathsToIgnore,
		Extensions:   cfg.SourceExtensions,
		TestPatterns: cfg.TestFilePatterns,
	})
	hasher := fingerprint.NewHasher(scanner, analyzer.NewPythonAnalyzer(), nil, 2, logger.Discard)

	repo, err := storage.Open(filepath.Join(t.TempDir(), "state.db"), root)
	require.NoError(t, err)
	store := history.NewFileStore(filepath.Join(t.TempDir(), "history.json"))

	executor := newFakeExecutor(t, testHelper, testOther)
	s := New(cfg, hasher, repo, executor, parser.NewResultParser(logger.Discard), store, logger.Discard)
	t.Cleanup(func() { s.Close() })

	return &fixture{root: root, session: s, executor: executor, repo: repo, history: store}
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
}

func TestSession_IncrementalRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, first.Plan.Selection.All, "no prior state means a full run")
	assert.Equal(t, 2, first.State.Results.Len())
	require.NotNil(t, first.State.Coverage)
	assert.Equal(t, []int{1, 2}, first.State.Coverage.Files["a.py"].Covered)

	write(t, f.root, "a.py", sourceV2)
	f.executor.outcomes[testHelper.String()] = "failed"

	second, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.False(t, second.Plan.Selection.All)
	assert.Equal(t, []domain.TestID{testHelper}, second.Plan.Selection.Tests)

	helper, ok := second.State.Results.Get(testHelper)
	require.True(t, ok)
	assert.False(t, helper.Passed)
	other, ok := second.State.Results.Get(testOther)
	require.True(t, ok, "merge keeps tests outside the selection")
	assert.True(t, other.Passed)

	write(t, f.root, "a.py", "VALUE = 1\n")
	write(t, f.root, "a_test.py", "def test_other():\n    assert True\n")

	third, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, third.Skipped)
	assert.Len(t, f.executor.selections(), 2, "nothing to run after deleting functions")

	_, ok = third.State.Results.Get(testHelper)
	assert.False(t, ok, "deleted test purged")
	_, ok = third.State.Results.Get(testOther)
	assert.True(t, ok)

	stored, err := f.session.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.State.Results, stored.Results)
}

func TestSession_NoChangesRunsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)

	report, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.True(t, report.Plan.Diff.Empty())
	assert.Equal(t, 2, report.State.Results.Len())
}

func TestSession_FullOverridesSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)

	report, err := f.session.Run(ctx, RunOptions{Full: true})
	require.NoError(t, err)
	assert.True(t, report.Plan.Selection.All)
	assert.Equal(t, "rewrite", report.Plan.Mode.String())
}

func TestSession_OnlyFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.executor.outcomes[testOther.String()] = "failed"

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)

	delete(f.executor.outcomes, testOther.String())
	report, err := f.session.Run(ctx, RunOptions{OnlyFailed: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testOther}, report.Plan.Selection.Tests)

	other, _ := report.State.Results.Get(testOther)
	assert.True(t, other.Passed)
}

func TestSession_FilterRestrictsSelection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)

	write(t, f.root, "a_test.py", "from a import helper\n\ndef test_helper():\n    assert helper() == 1\n\ndef test_other():\n    assert 1\n")

	plan, err := f.session.Plan(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testHelper, testOther}, plan.Selection.Tests)

	plan, err = f.session.Plan(ctx, RunOptions{Filter: "test_other"})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testOther}, plan.Selection.Tests)
}

func TestSession_FilteredRunKeepsSkippedChangesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)

	write(t, f.root, "a.py", sourceV2)
	report, err := f.session.Run(ctx, RunOptions{Filter: "test_other"})
	require.NoError(t, err)
	assert.True(t, report.Skipped, "test_other does not depend on helper")

	plan, err := f.session.Plan(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testHelper}, plan.Selection.Tests)

	report, err = f.session.Run(ctx, RunOptions{Filter: "test_helper"})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testHelper}, report.Plan.Selection.Tests)

	report, err = f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testHelper}, report.Plan.Selection.Tests, "filtered runs never record the new digests")

	plan, err = f.session.Plan(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Selection.Empty())
}

func TestSession_FailedRunKeepsSkippedChangesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.executor.outcomes[testOther.String()] = "failed"

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)

	write(t, f.root, "a.py", sourceV2)
	delete(f.executor.outcomes, testOther.String())
	report, err := f.session.Run(ctx, RunOptions{OnlyFailed: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testOther}, report.Plan.Selection.Tests)
	other, _ := report.State.Results.Get(testOther)
	assert.True(t, other.Passed)

	plan, err := f.session.Plan(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testHelper}, plan.Selection.Tests)
}

func TestSession_DropsRemovedParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testParam := domain.TestID{File: "a_test.py", Name: "test_param"}
	caseOne := domain.TestID{File: "a_test.py", Name: "test_param[1]"}
	caseTwo := domain.TestID{File: "a_test.py", Name: "test_param[2]"}

	write(t, f.root, "a_test.py", testsV1+"\n@pytest.mark.parametrize('v', [1, 2])\ndef test_param(v):\n    assert v\n")
	f.executor.all = []domain.TestID{testHelper, testOther, caseOne, caseTwo}

	first, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, first.State.Results.Len())

	write(t, f.root, "a_test.py", testsV1+"\n@pytest.mark.parametrize('v', [1])\ndef test_param(v):\n    assert v > 0\n")
	f.executor.expand = map[domain.TestID][]domain.TestID{testParam: {caseOne}}

	second, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testParam}, second.Plan.Selection.Tests)

	_, ok := second.State.Results.Get(caseOne)
	assert.True(t, ok)
	_, ok = second.State.Results.Get(caseTwo)
	assert.False(t, ok, "removed case is dropped")
	_, ok = second.State.Results.Get(testOther)
	assert.True(t, ok)
}

func TestSession_ExecutionErrorKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	before, err := f.repo.Load(ctx)
	require.NoError(t, err)

	write(t, f.root, "a.py", sourceV2)
	f.executor.err = &domain.ExecutionError{ExitCode: 3, Stderr: "INTERNALERROR"}

	_, err = f.session.Run(ctx, RunOptions{})
	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)

	after, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Results, after.Results)
	assert.Equal(t, before.Coverage, after.Coverage)
	assert.Equal(t, before.Fingerprint, after.Fingerprint)
}

func TestSession_CancelledRunKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	before, err := f.repo.Load(ctx)
	require.NoError(t, err)

	write(t, f.root, "a.py", sourceV2)
	f.executor.cancel = true

	report, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Nil(t, report.State)

	after, err := f.repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Results, after.Results)
	assert.Equal(t, before.Coverage, after.Coverage)
	assert.Equal(t, before.Fingerprint, after.Fingerprint)

	f.executor.cancel = false
	retry, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []domain.TestID{testHelper}, retry.Plan.Selection.Tests, "cancelled changes are selected again")
}

func TestSession_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.executor.started = make(chan struct{})
	f.executor.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.session.Run(ctx, RunOptions{})
		done <- err
	}()

	<-f.executor.started
	_, err := f.session.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	close(f.executor.release)
	require.NoError(t, <-done)
}

func TestSession_Snapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.SaveSnapshot(ctx)
	assert.Error(t, err, "no state yet")

	_, err = f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		f.session.now = func() time.Time { return at }
		snap, err := f.session.SaveSnapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap.Commit, "workspace is not a git repository")
		assert.Equal(t, 2, snap.Results.Len())
		ids = append(ids, snap.ID)
	}

	last, err := f.session.Snapshots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, ids[2], last[0].ID)

	ranged, err := f.session.SnapshotsByDate(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, ids[0], ranged[0].ID)
	assert.Equal(t, ids[1], ranged[1].ID)

	require.NoError(t, f.session.ClearHistory(ctx))
	all, err := f.session.Snapshots(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSession_Reset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.NoError(t, f.session.Reset(ctx))

	state, err := f.session.State(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	plan, err := f.session.Plan(ctx, RunOptions{})
	require.NoError(t, err)
	assert.True(t, plan.Selection.All)
}
