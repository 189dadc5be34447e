package domain

import "sort"

// Branch is a (from line, to line) arc of branch coverage.
type Branch [2]int

// CoverageSummary holds the counters coverage.py reports per file and in
// total.
type CoverageSummary struct {
	CoveredLines    int     `json:"covered_lines"`
	ExcludedLines   int     `json:"excluded_lines"`
	MissingLines    int     `json:"missing_lines"`
	NumStatements   int     `json:"num_statements"`
	PercentCovered  float64 `json:"percent_covered"`
	CoveredBranches int     `json:"covered_branches,omitempty"`
	MissingBranches int     `json:"missing_branches,omitempty"`
	NumBranches     int     `json:"num_branches,omitempty"`
}

// FileCoverage is the line and branch coverage of one file. Line sets are
// kept sorted and free of duplicates.
type FileCoverage struct {
	Covered         []int           `json:"covered"`
	Skipped         []int           `json:"skipped"`
	Missed          []int           `json:"missed"`
	CoveredBranches []Branch        `json:"covered_branches,omitempty"`
	MissedBranches  []Branch        `json:"missed_branches,omitempty"`
	Summary         CoverageSummary `json:"summary"`
}

// CoverageReport is per-file coverage plus workspace totals.
type CoverageReport struct {
	Files  map[string]FileCoverage `json:"files"`
	Totals CoverageSummary         `json:"totals"`
}

// NewCoverageReport returns an empty report.
func NewCoverageReport() *CoverageReport {
	return &CoverageReport{Files: map[string]FileCoverage{}}
}

// HasBranches reports whether branch data was collected for the file.
func (f FileCoverage) HasBranches() bool {
	return len(f.CoveredBranches) > 0 || len(f.MissedBranches) > 0
}

// Summarize derives the per-file summary from the line and branch sets.
func (f FileCoverage) Summarize() CoverageSummary {
	s := CoverageSummary{
		CoveredLines:  len(f.Covered),
		ExcludedLines: len(f.Skipped),
		MissingLines:  len(f.Missed),
		NumStatements: len(f.Covered) + len(f.Missed),
	}
	if f.HasBranches() {
		s.CoveredBranches = len(f.CoveredBranches)
		s.MissingBranches = len(f.MissedBranches)
		s.NumBranches = s.CoveredBranches + s.MissingBranches
	}
	s.PercentCovered = percent(s)
	return s
}

// Recompute refreshes every per-file summary and sums them into Totals.
func (r *CoverageReport) Recompute() {
	var totals CoverageSummary
	for path, fc := range r.Files {
		fc.Summary = fc.Summarize()
		r.Files[path] = fc
		totals.CoveredLines += fc.Summary.CoveredLines
		totals.ExcludedLines += fc.Summary.ExcludedLines
		totals.MissingLines += fc.Summary.MissingLines
		totals.NumStatements += fc.Summary.NumStatements
		totals.CoveredBranches += fc.Summary.CoveredBranches
		totals.MissingBranches += fc.Summary.MissingBranches
		totals.NumBranches += fc.Summary.NumBranches
	}
	totals.PercentCovered = percent(totals)
	r.Totals = totals
}

// Clone returns a deep copy of the report.
func (r *CoverageReport) Clone() *CoverageReport {
	if r == nil {
		return nil
	}
	out := &CoverageReport{Files: make(map[string]FileCoverage, len(r.Files)), Totals: r.Totals}
	for path, fc := range r.Files {
		out.Files[path] = FileCoverage{
			Covered:         append([]int(nil), fc.Covered...),
			Skipped:         append([]int(nil), fc.Skipped...),
			Missed:          append([]int(nil), fc.Missed...),
			CoveredBranches: append([]Branch(nil), fc.CoveredBranches...),
			MissedBranches:  append([]Branch(nil), fc.MissedBranches...),
			Summary:         fc.Summary,
		}
	}
	return out
}

// Paths returns the covered file paths in sorted order.
func (r *CoverageReport) Paths() []string {
	paths := make([]string, 0, len(r.Files))
	for p := range r.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// percent follows coverage.py: with branches, covered lines and branches are
// counted together.
func percent(s CoverageSummary) float64 {
	num := s.NumStatements + s.NumBranches
	if num == 0 {
		return 100
	}
	return float64(s.CoveredLines+s.CoveredBranches) / float64(num) * 100
}

// SortBranches orders arcs by source line, then destination line.
func SortBranches(b []Branch) {
	sort.Slice(b, func(i, j int) bool {
		if b[i][0] != b[j][0] {
			return b[i][0] < b[j][0]
		}
		return b[i][1] < b[j][1]
	})
}
