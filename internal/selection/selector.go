// Package selection decides which tests a run executes.
package selection

import (
	"itp/internal/discovery"
	"itp/internal/domain"
)

// Select computes the tests affected by diff. A nil or incomplete prior state
// or a disabled selective mode yields the full-run selection.
func Select(prior *domain.State, diff domain.FingerprintDiff, deps domain.DependencyMap, selective bool) domain.Selection {
	if !selective || prior == nil || len(prior.Fingerprint) == 0 || prior.Results == nil || prior.Coverage == nil {
		return domain.SelectAll()
	}

	seen := map[domain.TestID]bool{}
	var tests []domain.TestID
	add := func(id domain.TestID) {
		if seen[id] || !domain.IsTestName(id.Name) {
			return
		}
		seen[id] = true
		tests = append(tests, id)
	}

	for path, fp := range diff.Changed() {
		for name := range fp.Functions {
			if fp.IsTestFile && domain.IsTestName(name) {
				add(domain.TestID{File: path, Name: name})
				continue
			}
			// helpers, including those defined in test files, reach tests
			// through the dependency map
			for _, id := range deps.TestsFor(name) {
				add(id)
			}
		}
	}

	domain.SortTestIDs(tests)
	return domain.Selection{Tests: tests}
}

// RemoveDeletedTests drops every result, parametrized variants included, of
// test functions deleted from test files.
func RemoveDeletedTests(table domain.ResultTable, diff domain.FingerprintDiff) {
	for path, fp := range diff.Deleted {
		if !fp.IsTestFile {
			continue
		}
		tests, ok := table[path]
		if !ok {
			continue
		}
		for name := range tests {
			if _, deleted := fp.Functions[domain.BaseTestName(name)]; deleted {
				table.Delete(domain.TestID{File: path, Name: name})
			}
		}
	}
}

// Failed selects every test currently recorded as failing.
func Failed(table domain.ResultTable) domain.Selection {
	var tests []domain.TestID
	for _, id := range table.IDs() {
		if r, _ := table.Get(id); !r.Passed {
			tests = append(tests, id)
		}
	}
	return domain.Selection{Tests: tests}
}

// Filter restricts an explicit selection to tests matching pattern. The
// full-run selection is returned unchanged.
func Filter(sel domain.Selection, pattern string) domain.Selection {
	if sel.All || pattern == "" {
		return sel
	}
	return domain.Selection{Tests: discovery.NewFilter().FilterTests(sel.Tests, pattern)}
}
