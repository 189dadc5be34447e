package discovery

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"itp/internal/domain"
)

// Filter narrows test selections by a name pattern
type Filter struct{}

// NewFilter creates a new Filter
func NewFilter() *Filter {
	return &Filter{}
}

// FilterTests keeps tests whose node id matches pattern.
// Supported forms:
//   - path globs over the file: "tests/api/**", "**/test_user*.py"
//   - wildcard patterns over the node id: "*login*", "test_*::TestAuth*"
//   - plain substrings of the node id: "TestAuth", "test_login"
func (f *Filter) FilterTests(tests []domain.TestID, pattern string) []domain.TestID {
	if pattern == "" {
		return tests
	}

	var filtered []domain.TestID
	for _, test := range tests {
		if f.Matches(test, pattern) {
			filtered = append(filtered, test)
		}
	}
	return filtered
}

// Matches reports whether a single test matches pattern
func (f *Filter) Matches(test domain.TestID, pattern string) bool {
	nodeID := test.String()

	if strings.Contains(nodeID, pattern) {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return false
	}

	if ok, err := doublestar.Match(pattern, test.File); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(pattern, nodeID); err == nil && ok {
		return true
	}

	// "*Payment*" style: every literal part must appear in the node id
	if !strings.Contains(pattern, "*") {
		return false
	}
	hasNonEmptyPart := false
	for _, part := range strings.Split(pattern, "*") {
		if part == "" {
			continue
		}
		hasNonEmptyPart = true
		if !strings.Contains(nodeID, part) {
			return false
		}
	}
	return hasNonEmptyPart
}
