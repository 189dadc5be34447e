package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"itp/internal/domain"
)

type coverageFile struct {
	ExecutedLines    []int           `json:"executed_lines"`
	ExcludedLines    []int           `json:"excluded_lines"`
	MissingLines     []int           `json:"missing_lines"`
	ExecutedBranches []domain.Branch `json:"executed_branches"`
	MissingBranches  []domain.Branch `json:"missing_branches"`
}

type coverageDocument struct {
	Files map[string]json.RawMessage `json:"files"`
}

// ParseCoverage reads a coverage.py JSON report. File paths are made
// relative to root with forward slashes; files outside root keep their
// absolute path. Summaries are recomputed from the line sets.
func (p *ResultParser) ParseCoverage(path, root string) (*domain.CoverageReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading coverage report: %w", err)
	}

	var doc coverageDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &domain.ParseError{Section: "coverage", Record: path, Err: err}
	}

	report := domain.NewCoverageReport()
	for file, raw := range doc.Files {
		var fc coverageFile
		if err := json.Unmarshal(raw, &fc); err != nil {
			p.log.Warn("skipping malformed coverage entry", "error", &domain.ParseError{Section: "coverage", Record: file, Err: err})
			continue
		}
		report.Files[relativeTo(root, file)] = domain.FileCoverage{
			Covered:         sortedLines(fc.ExecutedLines),
			Skipped:         sortedLines(fc.ExcludedLines),
			Missed:          sortedLines(fc.MissingLines),
			CoveredBranches: sortedBranches(fc.ExecutedBranches),
			MissedBranches:  sortedBranches(fc.MissingBranches),
		}
	}
	report.Recompute()
	return report, nil
}

func relativeTo(root, file string) string {
	if root == "" || !filepath.IsAbs(file) {
		return filepath.ToSlash(file)
	}
	rel, err := filepath.Rel(root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

func sortedLines(lines []int) []int {
	if len(lines) == 0 {
		return []int{}
	}
	seen := make(map[int]bool, len(lines))
	out := make([]int, 0, len(lines))
	for _, l := range lines {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}

func sortedBranches(branches []domain.Branch) []domain.Branch {
	if len(branches) == 0 {
		return nil
	}
	seen := make(map[domain.Branch]bool, len(branches))
	out := make([]domain.Branch, 0, len(branches))
	for _, b := range branches {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	domain.SortBranches(out)
	return out
}
