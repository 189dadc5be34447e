package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"itp/internal/config"
	"itp/internal/domain"
	"itp/internal/logger"
)

const fakeRunner = `#!/bin/sh
report=""
for arg in "$@"; do
  case "$arg" in
    --json-report-file=*) report="${arg#--json-report-file=}" ;;
  esac
done
printf '%s\n' "$@" > args.txt
printf '%s\n' "$PYTHONPATH" > pythonpath.txt
if [ -n "$FAKE_SLEEP" ]; then
  echo "a_test.py::test_one PASSED    [ 50%]"
  exec sleep "$FAKE_SLEEP"
fi
echo "a_test.py::test_one PASSED    [ 50%]"
echo "a_test.py::test_two FAILED    [100%]"
echo "boom" >&2
if [ -z "$FAKE_NO_REPORT" ]; then
  echo '{"tests": []}' > "$report"
fi
exit "${FAKE_EXIT:-0}"
`

func setupRunner(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	script := filepath.Join(root, "fake-pytest")
	require.NoError(t, os.WriteFile(script, []byte(fakeRunner), 0o755))

	cfg := config.New()
	cfg.ProjectPath = root
	cfg.RunnerPath = script
	cfg.MemoryProfiling = false
	return cfg, root
}

type recorder struct {
	mu       sync.Mutex
	percents []int
}

func (r *recorder) Progress(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, p)
}

func readArgs(t *testing.T, root string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "args.txt"))
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunner_ExecuteSelection(t *testing.T) {
	cfg, root := setupRunner(t)
	cfg.RunnerArgs = []string{"-x"}
	runner := NewRunner(cfg, logger.Discard)

	rec := &recorder{}
	sel := domain.Selection{Tests: []domain.TestID{
		{File: "a_test.py", Name: "test_one"},
		{File: "b_test.py", Name: "test_b"},
	}}
	outcome, err := runner.Execute(context.Background(), sel, rec)
	require.NoError(t, err)

	assert.Equal(t, 0, outcome.ExitCode)
	assert.FileExists(t, outcome.ReportPath)
	assert.Empty(t, outcome.MemoryReportPath)
	assert.Equal(t, []int{50, 100}, rec.percents)

	args := readArgs(t, root)
	assert.Contains(t, args, "--cov-branch")
	assert.Contains(t, args, "--json-report-file="+cfg.GetReportPath())
	assert.Contains(t, args, "-x")
	assert.NotContains(t, args, MemoryPluginModule)
	assert.Equal(t, []string{"a_test.py::test_one", "b_test.py::test_b"}, args[len(args)-2:])
}

func TestRunner_ExecuteAll(t *testing.T) {
	cfg, root := setupRunner(t)
	cfg.MemoryProfiling = true
	runner := NewRunner(cfg, logger.Discard)

	outcome, err := runner.Execute(context.Background(), domain.SelectAll(), nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.GetMemoryReportPath(), outcome.MemoryReportPath)

	args := readArgs(t, root)
	assert.Contains(t, args, MemoryPluginModule)
	assert.FileExists(t, filepath.Join(filepath.Dir(outcome.MemoryReportPath), MemoryPluginModule+".py"))

	pythonPath, err := os.ReadFile(filepath.Join(root, "pythonpath.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pythonPath), filepath.Dir(outcome.MemoryReportPath)))
	for _, arg := range args {
		assert.NotContains(t, arg, "::", "full runs pass no node ids")
	}
}

func TestRunner_EmptySelectionSkips(t *testing.T) {
	cfg, root := setupRunner(t)

	outcome, err := NewRunner(cfg, logger.Discard).Execute(context.Background(), domain.Selection{}, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.NoFileExists(t, filepath.Join(root, "args.txt"))
}

func TestRunner_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		exit     string
		noReport bool
		wantErr  bool
	}{
		{name: "failures are normal", exit: "1"},
		{name: "nothing collected is normal", exit: "5", noReport: true},
		{name: "internal error", exit: "3", wantErr: true},
		{name: "usage error", exit: "4", wantErr: true},
		{name: "missing report", exit: "0", noReport: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := setupRunner(t)
			t.Setenv("FAKE_EXIT", tt.exit)
			if tt.noReport {
				t.Setenv("FAKE_NO_REPORT", "1")
			}

			outcome, err := NewRunner(cfg, logger.Discard).Execute(context.Background(), domain.SelectAll(), nil)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.NotNil(t, outcome)
				return
			}

			var execErr *domain.ExecutionError
			require.True(t, errors.As(err, &execErr))
			assert.Contains(t, execErr.Stderr, "boom")
		})
	}
}

func TestRunner_StaleReportRemoved(t *testing.T) {
	cfg, _ := setupRunner(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.GetReportPath()), 0o755))
	require.NoError(t, os.WriteFile(cfg.GetReportPath(), []byte(`{"tests": []}`), 0o644))
	t.Setenv("FAKE_NO_REPORT", "1")

	_, err := NewRunner(cfg, logger.Discard).Execute(context.Background(), domain.SelectAll(), nil)

	var execErr *domain.ExecutionError
	assert.ErrorAs(t, err, &execErr)
}

func TestRunner_Cancelled(t *testing.T) {
	cfg, _ := setupRunner(t)
	t.Setenv("FAKE_SLEEP", "30")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	reporter := ProgressFunc(func(p int) {
		rec.Progress(p)
		cancel()
	})

	start := time.Now()
	outcome, err := NewRunner(cfg, logger.Discard).Execute(ctx, domain.SelectAll(), reporter)
	require.NoError(t, err)
	assert.True(t, outcome.Cancelled)
	assert.Equal(t, []int{50}, rec.percents, "progress before the cancel is delivered")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunner_MissingRunner(t *testing.T) {
	cfg, _ := setupRunner(t)
	cfg.RunnerPath = "./does-not-exist"

	_, err := NewRunner(cfg, logger.Discard).Execute(context.Background(), domain.SelectAll(), nil)

	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestPrependPath(t *testing.T) {
	sep := string(os.PathListSeparator)
	assert.Equal(t, "/plugins", prependPath("/plugins", ""))
	assert.Equal(t, "/plugins"+sep+"/src", prependPath("/plugins", "/src"))
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 2}
	b.Write([]byte("one\ntwo\nthr"))
	b.Write([]byte("ee\nfour"))

	assert.Equal(t, "two\nthree\nfour", b.String())
}
