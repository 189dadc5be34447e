package domain

import (
	"fmt"
	"sort"
	"strings"
)

// TestID identifies a single test case: the file that defines it and the
// test name inside that file (pytest node id without the file part).
type TestID struct {
	File string `json:"file"` // workspace-relative path with forward slashes
	Name string `json:"name"` // test_x, TestClass::test_x, optionally with [param] suffix
}

// String returns the pytest node id form "file::name".
func (id TestID) String() string {
	return id.File + "::" + id.Name
}

// BaseName returns the test name without any parametrization suffix.
func (id TestID) BaseName() string {
	return BaseTestName(id.Name)
}

// BaseTestName strips everything from the first "[" of a test name.
// Names that contain "[" outside parametrization syntax are cut the same way.
func BaseTestName(name string) string {
	if i := strings.Index(name, "["); i >= 0 {
		return name[:i]
	}
	return name
}

// ParseTestID splits a pytest node id ("a_test.py::TestX::test_y[1]") at the
// first "::".
func ParseTestID(nodeID string) (TestID, error) {
	file, name, ok := strings.Cut(nodeID, "::")
	if !ok || file == "" || name == "" {
		return TestID{}, fmt.Errorf("invalid node id %q", nodeID)
	}
	return TestID{File: file, Name: name}, nil
}

// IsTestName reports whether a function name follows the test discovery
// convention: a test_ prefixed function or a test_ prefixed method of a class
// whose name starts with Test.
func IsTestName(name string) bool {
	base := BaseTestName(name)
	class, method, isMethod := strings.Cut(base, "::")
	if !isMethod {
		return strings.HasPrefix(base, "test_")
	}
	return strings.HasPrefix(class, "Test") && !strings.Contains(method, "::") && strings.HasPrefix(method, "test_")
}

// SortTestIDs orders ids by file, then name.
func SortTestIDs(ids []TestID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].File != ids[j].File {
			return ids[i].File < ids[j].File
		}
		return ids[i].Name < ids[j].Name
	})
}

// Selection is the set of tests a run must execute. All is a distinct signal
// from an empty Tests list: the former means "run everything", the latter
// "run nothing".
type Selection struct {
	All   bool
	Tests []TestID
}

// SelectAll returns the full-run selection.
func SelectAll() Selection {
	return Selection{All: true}
}

// Empty reports whether the selection requests no tests at all.
func (s Selection) Empty() bool {
	return !s.All && len(s.Tests) == 0
}
