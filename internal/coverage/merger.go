// Package coverage combines coverage reports across runs.
package coverage

import (
	"sort"

	"itp/internal/domain"
	"itp/internal/results"
)

// Apply returns the report that results from applying fresh to stored.
//
// Rewrite returns fresh. Merge unions covered and skipped lines per file and
// derives missed lines as every line ever seen minus covered and skipped;
// branches are treated the same way. Files missing from fresh are dropped.
// Summaries and totals are always recomputed.
func Apply(stored, fresh *domain.CoverageReport, mode results.Mode) *domain.CoverageReport {
	if fresh == nil {
		fresh = domain.NewCoverageReport()
	}
	fresh = fresh.Clone()
	if mode == results.Rewrite || stored == nil {
		fresh.Recompute()
		return fresh
	}

	out := domain.NewCoverageReport()
	for path, cur := range fresh.Files {
		if prev, ok := stored.Files[path]; ok {
			cur = mergeFile(prev, cur)
		}
		out.Files[path] = cur
	}
	out.Recompute()
	return out
}

func mergeFile(prev, cur domain.FileCoverage) domain.FileCoverage {
	covered := union(prev.Covered, cur.Covered)
	skipped := union(prev.Skipped, cur.Skipped)
	seen := union(union(prev.Missed, cur.Missed), union(covered, skipped))

	coveredBranches := unionBranches(prev.CoveredBranches, cur.CoveredBranches)
	seenBranches := unionBranches(
		unionBranches(prev.MissedBranches, cur.MissedBranches),
		coveredBranches,
	)

	return domain.FileCoverage{
		Covered:         covered,
		Skipped:         skipped,
		Missed:          subtract(seen, union(covered, skipped)),
		CoveredBranches: coveredBranches,
		MissedBranches:  subtractBranches(seenBranches, coveredBranches),
	}
}

func union(a, b []int) []int {
	set := make(map[int]bool, len(a)+len(b))
	for _, l := range a {
		set[l] = true
	}
	for _, l := range b {
		set[l] = true
	}
	out := make([]int, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func subtract(a, b []int) []int {
	drop := make(map[int]bool, len(b))
	for _, l := range b {
		drop[l] = true
	}
	out := []int{}
	for _, l := range a {
		if !drop[l] {
			out = append(out, l)
		}
	}
	return out
}

func unionBranches(a, b []domain.Branch) []domain.Branch {
	set := make(map[domain.Branch]bool, len(a)+len(b))
	for _, br := range a {
		set[br] = true
	}
	for _, br := range b {
		set[br] = true
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]domain.Branch, 0, len(set))
	for br := range set {
		out = append(out, br)
	}
	domain.SortBranches(out)
	return out
}

func subtractBranches(a, b []domain.Branch) []domain.Branch {
	drop := make(map[domain.Branch]bool, len(b))
	for _, br := range b {
		drop[br] = true
	}
	var out []domain.Branch
	for _, br := range a {
		if !drop[br] {
			out = append(out, br)
		}
	}
	return out
}
