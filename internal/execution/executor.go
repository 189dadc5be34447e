package execution

import (
	"context"
	"time"

	"itp/internal/domain"
)

// Executor runs a selection of tests and reports where the outputs are
type Executor interface {
	Execute(ctx context.Context, sel domain.Selection, reporter ProgressReporter) (*Outcome, error)
}

// ProgressReporter receives completion percentages while tests run
type ProgressReporter interface {
	Progress(percent int)
}

// ProgressFunc adapts a function to ProgressReporter
type ProgressFunc func(percent int)

// Progress calls f(percent)
func (f ProgressFunc) Progress(percent int) { f(percent) }

// Outcome describes a finished, skipped or cancelled execution
type Outcome struct {
	Skipped   bool // nothing was selected, no process was started
	Cancelled bool // the context ended before the runner exited

	ExitCode int
	Duration time.Duration

	ReportPath       string
	MemoryReportPath string
	CoveragePath     string
}

// Exit codes of the runner that still produce usable results
const (
	ExitPassed           = 0
	ExitTestsFailed      = 1
	ExitNoTestsCollected = 5
)
