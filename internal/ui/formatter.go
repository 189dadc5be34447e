package ui

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"itp/internal/domain"
	"itp/internal/history"
	"itp/internal/session"
)

// Formatter formats and displays output
type Formatter struct {
	out io.Writer
}

// NewFormatter creates a new Formatter writing to out
func NewFormatter(out io.Writer) *Formatter {
	return &Formatter{out: out}
}

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	white  = color.New(color.FgWhite)
	gray   = color.New(color.FgHiBlack)
)

const (
	tableTop = "┌─────────────────────────────────┬─────────────────────────────┐"
	tableSep = "├─────────────────────────────────┼─────────────────────────────┤"
	tableEnd = "└─────────────────────────────────┴─────────────────────────────┘"
)

type row struct {
	label string
	value string
	color *color.Color
}

func (f *Formatter) printTable(title string, rows []row) {
	fmt.Fprintln(f.out)
	cyan.Fprintln(f.out, "╔═══════════════════════════════════════════════════════════════╗")
	cyan.Fprintf(f.out, "║%s║\n", center(title, 63))
	cyan.Fprintln(f.out, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(f.out)

	fmt.Fprintln(f.out, tableTop)
	for i, r := range rows {
		fmt.Fprintf(f.out, "│ %-31s │ ", r.label)
		c := r.color
		if c == nil {
			c = white
		}
		c.Fprintf(f.out, "%-27s", r.value)
		fmt.Fprintln(f.out, " │")
		if i < len(rows)-1 {
			fmt.Fprintln(f.out, tableSep)
		}
	}
	fmt.Fprintln(f.out, tableEnd)
}

func center(s string, width int) string {
	pad := width - len([]rune(s))
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

// PrintRunSummary prints the statistics table of a run followed by the tree
// of tests that failed in it.
func (f *Formatter) PrintRunSummary(report *session.RunReport) {
	if report.Cancelled {
		yellow.Fprintln(f.out, "! Run cancelled, stored results unchanged")
		return
	}
	if report.Skipped {
		green.Fprintln(f.out, "✓ No affected tests, nothing to run")
		if report.State != nil {
			f.printTotals(report.State)
		}
		return
	}

	selected := "all"
	if !report.Plan.Selection.All {
		selected = humanize.Comma(int64(len(report.Plan.Selection.Tests)))
	}
	passed, failed := report.Fresh.Counts()
	rows := []row{
		{label: "Mode", value: report.Plan.Mode.String()},
		{label: "Selected Tests", value: selected},
		{label: "Executed Tests", value: humanize.Comma(int64(passed + failed))},
		{label: "Passed Tests", value: humanize.Comma(int64(passed)), color: green},
		{label: "Failed Tests", value: humanize.Comma(int64(failed)), color: red},
	}
	if report.State != nil {
		rows = append(rows, row{label: "Recorded Tests", value: humanize.Comma(int64(report.State.Results.Len()))})
		if report.State.Coverage != nil {
			rows = append(rows, row{label: "Line Coverage", value: fmt.Sprintf("%.2f%%", report.State.Coverage.Totals.PercentCovered)})
		}
	}
	rows = append(rows,
		row{label: "Duration", value: formatDuration(report.Duration)},
		row{label: "Run", value: shortID(report.ID)},
	)
	f.printTable("Test Execution Statistics", rows)

	fmt.Fprintln(f.out)
	failures := domain.Failures(report.Fresh)
	if len(failures) == 0 {
		green.Fprintln(f.out, "✓ All tests passed!")
		return
	}
	red.Fprintf(f.out, "✗ %d test case(s) failed\n", len(failures))
	fmt.Fprintln(f.out)
	f.PrintFailureTree(failures)
}

func (f *Formatter) printTotals(state *domain.State) {
	passed, failed := state.Results.Counts()
	fmt.Fprintf(f.out, "  recorded: %s passed, %s failed\n",
		green.Sprint(humanize.Comma(int64(passed))), red.Sprint(humanize.Comma(int64(failed))))
}

// TreeNode represents a node in the file tree structure
type TreeNode struct {
	Name     string
	Children map[string]*TreeNode
	Failures []domain.TestFailure
	IsFile   bool
}

// PrintFailureTree prints failing tests grouped by directory and file
func (f *Formatter) PrintFailureTree(failures []domain.TestFailure) {
	if len(failures) == 0 {
		return
	}

	root := &TreeNode{Children: map[string]*TreeNode{}}
	for _, failure := range failures {
		parts := strings.Split(failure.FilePath, "/")
		current := root
		for i, part := range parts {
			if part == "" {
				continue
			}
			if current.Children[part] == nil {
				current.Children[part] = &TreeNode{
					Name:     part,
					Children: map[string]*TreeNode{},
					IsFile:   i == len(parts)-1,
				}
			}
			current = current.Children[part]
		}
		current.Failures = append(current.Failures, failure)
	}

	f.printTreeNode(root, "")
}

func (f *Formatter) printTreeNode(node *TreeNode, prefix string) {
	keys := make([]string, 0, len(node.Children))
	for key := range node.Children {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for i, key := range keys {
		child := node.Children[key]
		last := i == len(keys)-1

		connector, next := "├── ", "│   "
		if last {
			connector, next = "└── ", "    "
		}

		if child.IsFile {
			yellow.Fprintf(f.out, "%s%s%s\n", prefix, connector, child.Name)
			for j, failure := range child.Failures {
				caseConnector := "├── "
				if j == len(child.Failures)-1 {
					caseConnector = "└── "
				}
				red.Fprintf(f.out, "%s%s%s", prefix+next, caseConnector, failure.TestName)
				if failure.Location != "" {
					gray.Fprintf(f.out, " (%s)", failure.Location)
				}
				fmt.Fprintln(f.out)
			}
			continue
		}

		cyan.Fprintf(f.out, "%s%s%s\n", prefix, connector, child.Name)
		f.printTreeNode(child, prefix+next)
	}
}

// PrintTestList prints tests grouped by file. Tests recorded as failing are
// marked with [F].
func (f *Formatter) PrintTestList(tests []domain.TestID, recorded domain.ResultTable) {
	if len(tests) == 0 {
		yellow.Fprintln(f.out, "No tests found")
		return
	}

	byFile := map[string][]domain.TestID{}
	var files []string
	for _, id := range tests {
		if _, ok := byFile[id.File]; !ok {
			files = append(files, id.File)
		}
		byFile[id.File] = append(byFile[id.File], id)
	}
	sort.Strings(files)

	green.Fprintf(f.out, "Found %d test(s) in %d file(s):\n\n", len(tests), len(files))
	for i, file := range files {
		lastFile := i == len(files)-1
		connector, next := "├── ", "│   "
		if lastFile {
			connector, next = "└── ", "    "
		}
		cyan.Fprintf(f.out, "%s%s\n", connector, file)

		cases := byFile[file]
		for j, id := range cases {
			caseConnector := "├── "
			if j == len(cases)-1 {
				caseConnector = "└── "
			}
			marker := ""
			if r, ok := recorded.Get(id); ok && !r.Passed {
				marker = " " + red.Sprint("[F]")
			}
			fmt.Fprintf(f.out, "%s%s%s%s\n", next, caseConnector, yellow.Sprint(id.Name), marker)
		}
	}
}

// PrintPlan prints the change set and the tests a run would execute
func (f *Formatter) PrintPlan(plan *session.Plan) {
	fmt.Fprintf(f.out, "Changes: %s added, %s modified, %s deleted function(s)\n",
		green.Sprint(plan.Diff.Added.FunctionCount()),
		yellow.Sprint(plan.Diff.Modified.FunctionCount()),
		red.Sprint(plan.Diff.Deleted.FunctionCount()))

	switch {
	case plan.Selection.All:
		cyan.Fprintln(f.out, "Next run: all tests (no usable previous state or selective mode disabled)")
	case len(plan.Selection.Tests) == 0:
		green.Fprintln(f.out, "Next run: nothing to run")
	default:
		cyan.Fprintf(f.out, "Next run (%s):\n", plan.Mode)
		var prior domain.ResultTable
		if plan.Prior != nil {
			prior = plan.Prior.Results
		}
		f.PrintTestList(plan.Selection.Tests, prior)
	}
}

// PrintCoverage prints per-file coverage followed by the totals
func (f *Formatter) PrintCoverage(report *domain.CoverageReport) {
	if report == nil || len(report.Files) == 0 {
		yellow.Fprintln(f.out, "No coverage recorded yet")
		return
	}

	paths := report.Paths()
	width := len("Total")
	for _, p := range paths {
		if len(p) > width {
			width = len(p)
		}
	}

	fmt.Fprintf(f.out, "%-*s  %6s  %6s  %7s  %8s\n", width, "File", "Stmts", "Miss", "Branch", "Cover")
	fmt.Fprintln(f.out, strings.Repeat("─", width+35))
	for _, p := range paths {
		s := report.Files[p].Summary
		fmt.Fprintf(f.out, "%-*s  %6d  %6d  %7s  ", width, p, s.NumStatements, s.MissingLines, branches(s))
		percentColor(s.PercentCovered).Fprintf(f.out, "%7.2f%%\n", s.PercentCovered)
	}
	fmt.Fprintln(f.out, strings.Repeat("─", width+35))
	t := report.Totals
	fmt.Fprintf(f.out, "%-*s  %6d  %6d  %7s  ", width, "Total", t.NumStatements, t.MissingLines, branches(t))
	percentColor(t.PercentCovered).Fprintf(f.out, "%7.2f%%\n", t.PercentCovered)
}

func branches(s domain.CoverageSummary) string {
	if s.NumBranches == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", s.CoveredBranches, s.NumBranches)
}

func percentColor(p float64) *color.Color {
	switch {
	case p >= 80:
		return green
	case p >= 50:
		return yellow
	default:
		return red
	}
}

// PrintSnapshot confirms a saved snapshot
func (f *Formatter) PrintSnapshot(summary history.Summary) {
	green.Fprintf(f.out, "✓ Snapshot %s saved", shortID(summary.ID))
	fmt.Fprintf(f.out, " (%d passed, %d failed, %.2f%% coverage)\n", summary.Passed, summary.Failed, summary.Coverage)
	if summary.Commit != "" {
		gray.Fprintf(f.out, "  at %s on %s\n", shortID(summary.Commit), summary.Branch)
	}
}

// PrintTrend prints one line per snapshot with the change since the
// previous one.
func (f *Formatter) PrintTrend(entries []history.TrendEntry) {
	if len(entries) == 0 {
		yellow.Fprintln(f.out, "No snapshots recorded")
		return
	}

	fmt.Fprintf(f.out, "%-19s  %-14s  %-8s  %8s  %8s  %9s\n", "Taken", "When", "Commit", "Passed", "Failed", "Coverage")
	for _, e := range entries {
		commit := "-"
		if e.Commit != "" {
			commit = shortID(e.Commit)
		}
		fmt.Fprintf(f.out, "%-19s  %-14s  %-8s  ",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			humanize.Time(e.Timestamp),
			commit)
		green.Fprintf(f.out, "%8s", withDelta(e.Passed, e.DeltaPassed))
		fmt.Fprint(f.out, "  ")
		red.Fprintf(f.out, "%8s", withDelta(e.Failed, e.DeltaFailed))
		fmt.Fprintf(f.out, "  %8.2f%%", e.Coverage)
		if e.DeltaCoverage != 0 && !math.IsNaN(e.DeltaCoverage) {
			gray.Fprintf(f.out, " (%+.2f)", e.DeltaCoverage)
		}
		fmt.Fprintln(f.out)
	}
}

func withDelta(v, delta int) string {
	if delta == 0 {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("%d(%+d)", v, delta)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
