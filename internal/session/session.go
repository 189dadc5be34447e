// Package session owns the incremental pipeline of one workspace: it hashes
// the sources, selects the affected tests, runs them and commits the merged
// results and coverage.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"itp/internal/analyzer"
	"itp/internal/config"
	"itp/internal/coverage"
	"itp/internal/domain"
	"itp/internal/execution"
	"itp/internal/fingerprint"
	"itp/internal/gitinfo"
	"itp/internal/history"
	"itp/internal/logger"
	"itp/internal/parser"
	"itp/internal/results"
	"itp/internal/selection"
	"itp/internal/storage"
)

// Fingerprinter computes the fingerprint of a workspace
type Fingerprinter interface {
	Hash(ctx context.Context, root string) (domain.WorkspaceFingerprint, error)
}

// RunOptions tune a single run
type RunOptions struct {
	Full       bool   // ignore the diff and run everything
	OnlyFailed bool   // re-run the tests currently recorded as failing
	Filter     string // restricts explicit selections
	Reporter   execution.ProgressReporter
}

// Plan is the outcome of the selection stage
type Plan struct {
	Selection domain.Selection
	Mode      results.Mode
	Diff      domain.FingerprintDiff
	Prior     *domain.State

	// Fingerprint is the current workspace fingerprint the plan was made from
	Fingerprint domain.WorkspaceFingerprint

	// Narrowed is set when --filter or --failed replaced the tests affected
	// by the diff, so some of them may not run
	Narrowed bool
}

// committedFingerprint is the fingerprint a run made from p records. A
// narrowed run keeps the prior one so the changes it skipped stay pending.
func (p *Plan) committedFingerprint() domain.WorkspaceFingerprint {
	if !p.Narrowed {
		return p.Fingerprint
	}
	if p.Prior == nil {
		return nil
	}
	return p.Prior.Fingerprint
}

// RunReport describes a finished run
type RunReport struct {
	ID        string
	Plan      *Plan
	Outcome   *execution.Outcome
	Fresh     domain.ResultTable
	State     *domain.State // committed state, nil when cancelled
	Skipped   bool
	Cancelled bool
	Duration  time.Duration
}

// Session drives the pipeline. Only one run may be active at a time.
type Session struct {
	config   *config.Config
	hasher   Fingerprinter
	repo     storage.Repository
	executor execution.Executor
	parser   *parser.ResultParser
	history  history.Store
	log      logger.Logger

	runMu   sync.Mutex
	stateMu sync.Mutex

	now func() time.Time
}

// New creates a session over explicitly constructed collaborators
func New(cfg *config.Config, hasher Fingerprinter, repo storage.Repository, executor execution.Executor, p *parser.ResultParser, store history.Store, log logger.Logger) *Session {
	return &Session{
		config:   cfg,
		hasher:   hasher,
		repo:     repo,
		executor: executor,
		parser:   p,
		history:  store,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one incremental run. A second call while a run is active
// fails with domain.ErrRunInProgress. A cancelled run returns a report with
// Cancelled set and leaves the stored state untouched.
func (s *Session) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	if !s.runMu.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	defer s.runMu.Unlock()

	start := s.now()
	report := &RunReport{ID: uuid.NewString()}

	plan, err := s.Plan(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			report.Cancelled = true
			return report, nil
		}
		return nil, err
	}
	report.Plan = plan
	s.log.Debug("selection ready", "run", report.ID, "mode", plan.Mode, "all", plan.Selection.All, "tests", len(plan.Selection.Tests))

	working := plan.Prior.Clone()
	if working == nil {
		working = &domain.State{}
	}
	if working.Results == nil {
		working.Results = domain.ResultTable{}
	}
	selection.RemoveDeletedTests(working.Results, plan.Diff)

	if plan.Selection.Empty() {
		next := &domain.State{Results: working.Results, Coverage: working.Coverage, Fingerprint: plan.committedFingerprint()}
		if err := s.commit(ctx, next); err != nil {
			return nil, err
		}
		report.Skipped = true
		report.State = next
		report.Duration = s.now().Sub(start)
		return report, nil
	}

	sel := plan.Selection
	if !sel.All {
		sel.Tests = execution.NewFailuresFirstScheduler(working.Results).Order(sel.Tests)
	}

	outcome, err := s.executor.Execute(ctx, sel, opts.Reporter)
	if err != nil {
		return nil, err
	}
	report.Outcome = outcome
	if outcome.Cancelled {
		s.log.Info("run cancelled, state unchanged", "run", report.ID)
		report.Cancelled = true
		report.Duration = s.now().Sub(start)
		return report, nil
	}

	fresh, err := s.parser.ParseResults(outcome.ReportPath, outcome.MemoryReportPath)
	if err != nil {
		return nil, fmt.Errorf("parsing test report: %w", err)
	}
	report.Fresh = fresh
	if plan.Mode == results.Merge {
		results.DropStaleVariants(working.Results, fresh, sel.Tests)
	}

	freshCoverage, err := s.parseCoverage(outcome.CoveragePath)
	if err != nil {
		return nil, err
	}

	next := &domain.State{
		Results:     results.Apply(working.Results, fresh, plan.Mode),
		Coverage:    s.mergeCoverage(working.Coverage, freshCoverage, plan.Mode),
		Fingerprint: plan.committedFingerprint(),
	}
	if err := s.commit(ctx, next); err != nil {
		return nil, err
	}

	report.State = next
	report.Duration = s.now().Sub(start)
	return report, nil
}

// Plan hashes the workspace and computes the selection without running
// anything or touching the stored state.
func (s *Session) Plan(ctx context.Context, opts RunOptions) (*Plan, error) {
	root, err := s.config.Root()
	if err != nil {
		return nil, err
	}

	prior, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	current, err := s.hasher.Hash(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("hashing workspace: %w", err)
	}

	var previous domain.WorkspaceFingerprint
	if prior != nil {
		previous = prior.Fingerprint
	}
	diff := fingerprint.Diff(previous, current)

	var sel domain.Selection
	switch {
	case opts.OnlyFailed:
		var table domain.ResultTable
		if prior != nil {
			table = prior.Results
		}
		sel = selection.Failed(table)
	default:
		deps := analyzer.BuildDependencyMap(current)
		sel = selection.Select(prior, diff, deps, s.config.SelectiveEnabled() && !opts.Full)
	}

	if opts.Filter != "" {
		if sel.All {
			s.log.Warn("filter ignored on a full run", "filter", opts.Filter)
		}
		sel = selection.Filter(sel, opts.Filter)
	}

	mode := results.Merge
	if sel.All {
		mode = results.Rewrite
	}

	return &Plan{
		Selection:   sel,
		Mode:        mode,
		Diff:        diff,
		Prior:       prior,
		Fingerprint: current,
		Narrowed:    !sel.All && (opts.OnlyFailed || opts.Filter != ""),
	}, nil
}

// State returns the committed state, or nil before the first run.
func (s *Session) State(ctx context.Context) (*domain.State, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.repo.Load(ctx)
}

// Reset drops the committed state; the next run is a full run.
func (s *Session) Reset(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.repo.Clear(ctx)
}

// SaveSnapshot appends the current results and coverage to the history log.
func (s *Session) SaveSnapshot(ctx context.Context) (domain.Snapshot, error) {
	state, err := s.State(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if state == nil {
		return domain.Snapshot{}, errors.New("no results recorded yet, run the tests first")
	}

	snap := domain.NewSnapshot(state, s.now())
	if root, err := s.config.Root(); err == nil {
		head, err := gitinfo.Describe(root)
		if err != nil {
			s.log.Warn("reading git metadata", "error", err)
		}
		snap.Commit, snap.Branch = head.Commit, head.Branch
	}

	if err := s.history.Save(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap, nil
}

// Snapshots returns the last n snapshots, or all when n <= 0.
func (s *Session) Snapshots(ctx context.Context, n int) ([]domain.Snapshot, error) {
	return s.history.Snapshots(ctx, n)
}

// SnapshotsByDate returns the snapshots taken within [start, end].
func (s *Session) SnapshotsByDate(ctx context.Context, start, end time.Time) ([]domain.Snapshot, error) {
	return s.history.SnapshotsByDate(ctx, start, end)
}

// ClearHistory empties the history log.
func (s *Session) ClearHistory(ctx context.Context) error {
	return s.history.Clear(ctx)
}

// Close releases the state repository and the history store.
func (s *Session) Close() error {
	return errors.Join(s.repo.Close(), s.history.Close())
}

func (s *Session) commit(ctx context.Context, next *domain.State) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if err := s.repo.Save(ctx, next); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// parseCoverage returns nil when the run produced no coverage file.
func (s *Session) parseCoverage(path string) (*domain.CoverageReport, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.log.Warn("no coverage report produced", "path", path)
		return nil, nil
	}
	root, err := s.config.Root()
	if err != nil {
		return nil, err
	}
	report, err := s.parser.ParseCoverage(path, root)
	if err != nil {
		return nil, fmt.Errorf("parsing coverage report: %w", err)
	}
	return report, nil
}

func (s *Session) mergeCoverage(stored, fresh *domain.CoverageReport, mode results.Mode) *domain.CoverageReport {
	if fresh == nil {
		if stored == nil {
			return domain.NewCoverageReport()
		}
		return stored
	}
	return coverage.Apply(stored, fresh, mode)
}
