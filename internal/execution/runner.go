package execution

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"itp/internal/config"
	"itp/internal/domain"
	"itp/internal/logger"
)

// MemoryReportEnv tells the memory profiling hook where to write its report
const MemoryReportEnv = "ITP_MEMORY_REPORT"

const (
	stderrTailLines = 20
	// waitDelay bounds how long output pipes are held open by orphaned
	// children after the runner itself exited or was killed
	waitDelay = 5 * time.Second
)

var progressPattern = regexp.MustCompile(`\[\s*(\d{1,3})%\]\s*$`)

// Runner executes pytest once for a whole selection
type Runner struct {
	config *config.Config
	log    logger.Logger
}

// NewRunner creates a new Runner
func NewRunner(cfg *config.Config, log logger.Logger) *Runner {
	return &Runner{config: cfg, log: log}
}

// Execute runs the selected tests and waits for the runner to exit. A
// cancelled context kills the process and yields a Cancelled outcome with no
// error.
func (r *Runner) Execute(ctx context.Context, sel domain.Selection, reporter ProgressReporter) (*Outcome, error) {
	if sel.Empty() {
		return &Outcome{Skipped: true}, nil
	}

	runnerPath, err := r.config.GetRunnerPath()
	if err != nil {
		return nil, err
	}
	root, err := r.config.Root()
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		ReportPath:   r.config.GetReportPath(),
		CoveragePath: r.config.GetCoveragePath(),
	}
	if r.config.MemoryProfiling {
		outcome.MemoryReportPath = r.config.GetMemoryReportPath()
	}
	if err := prepareReports(outcome); err != nil {
		return nil, &domain.ExecutionError{ExitCode: -1, Err: err}
	}

	env := os.Environ()
	if outcome.MemoryReportPath != "" {
		pythonPath, err := installMemoryPlugin(filepath.Dir(outcome.MemoryReportPath))
		if err != nil {
			return nil, &domain.ExecutionError{ExitCode: -1, Err: fmt.Errorf("installing memory plugin: %w", err)}
		}
		env = append(env,
			fmt.Sprintf("%s=%s", MemoryReportEnv, outcome.MemoryReportPath),
			"PYTHONPATH="+pythonPath,
		)
	}

	args := r.buildArgs(root, sel, outcome)
	r.log.Debug("starting test runner", "runner", runnerPath, "tests", len(sel.Tests), "all", sel.All)

	cmd := exec.CommandContext(ctx, runnerPath, args...)
	cmd.Dir = root
	cmd.Env = env

	stdout, stdoutWriter := io.Pipe()
	cmd.Stdout = stdoutWriter
	stderr := &tailBuffer{max: stderrTailLines}
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	done := make(chan struct{})
	go func() {
		defer close(done)
		streamProgress(stdout, reporter, r.log)
	}()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		stdoutWriter.Close()
		<-done
		return nil, &domain.ExecutionError{ExitCode: -1, Err: fmt.Errorf("starting %s: %w", runnerPath, err)}
	}

	waitErr := cmd.Wait()
	stdoutWriter.Close()
	<-done
	outcome.Duration = time.Since(start)

	if ctx.Err() != nil {
		r.log.Info("test run cancelled", "after", outcome.Duration.Round(time.Millisecond))
		return &Outcome{Cancelled: true, Duration: outcome.Duration}, nil
	}

	outcome.ExitCode = exitCode(cmd, waitErr)
	switch outcome.ExitCode {
	case ExitPassed, ExitTestsFailed:
		if _, err := os.Stat(outcome.ReportPath); err != nil {
			return nil, &domain.ExecutionError{
				ExitCode: outcome.ExitCode,
				Stderr:   stderr.String(),
				Err:      fmt.Errorf("structured report missing: %w", err),
			}
		}
	case ExitNoTestsCollected:
		r.log.Warn("runner collected no tests")
	default:
		return nil, &domain.ExecutionError{ExitCode: outcome.ExitCode, Stderr: stderr.String(), Err: waitErr}
	}
	return outcome, nil
}

func (r *Runner) buildArgs(root string, sel domain.Selection, outcome *Outcome) []string {
	args := []string{
		"-v",
		"--durations=0",
		"-p", "no:cacheprovider",
		"--cov=" + root,
		"--cov-branch",
		"--cov-report=json:" + outcome.CoveragePath,
		"--json-report",
		"--json-report-file=" + outcome.ReportPath,
	}
	if outcome.MemoryReportPath != "" {
		args = append(args, "-p", MemoryPluginModule)
	}
	args = append(args, r.config.RunnerArgs...)

	if sel.All {
		return args
	}
	for _, id := range sel.Tests {
		args = append(args, id.String())
	}
	return args
}

// prepareReports removes report files left from an earlier run so a missing
// report is never mistaken for a fresh one.
func prepareReports(outcome *Outcome) error {
	for _, path := range []string{outcome.ReportPath, outcome.CoveragePath, outcome.MemoryReportPath} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func streamProgress(stdout io.Reader, reporter ProgressReporter, log logger.Logger) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug(line)
		if reporter == nil {
			continue
		}
		if m := progressPattern.FindStringSubmatch(line); m != nil {
			if percent, err := strconv.Atoi(m[1]); err == nil {
				reporter.Progress(percent)
			}
		}
	}
	// drain so the process never blocks on a full pipe
	io.Copy(io.Discard, stdout)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

// tailBuffer keeps the last max lines written to it
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial string
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := b.partial + string(p)
	parts := strings.Split(text, "\n")
	b.partial = parts[len(parts)-1]
	b.lines = append(b.lines, parts[:len(parts)-1]...)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	if b.partial != "" {
		lines = append(append([]string(nil), lines...), b.partial)
	}
	return strings.Join(lines, "\n")
}
