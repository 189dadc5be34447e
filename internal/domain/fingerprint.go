package domain

import "strings"

// FileFingerprint is the content fingerprint of one source file.
type FileFingerprint struct {
	Path       string              `json:"path"`
	Digest     string              `json:"digest"`
	IsTestFile bool                `json:"isTestFile"`
	Functions  map[string]string   `json:"functions"`
	Calls      map[string][]string `json:"calls,omitempty"`
}

// WorkspaceFingerprint maps workspace-relative paths to file fingerprints.
type WorkspaceFingerprint map[string]FileFingerprint

// FingerprintDiff is the function-level change set between two workspace
// fingerprints. Every function appears in at most one of the three buckets.
type FingerprintDiff struct {
	Added    WorkspaceFingerprint `json:"added"`
	Modified WorkspaceFingerprint `json:"modified"`
	Deleted  WorkspaceFingerprint `json:"deleted"`
}

// NewFingerprintDiff returns a diff with all buckets initialized.
func NewFingerprintDiff() FingerprintDiff {
	return FingerprintDiff{
		Added:    WorkspaceFingerprint{},
		Modified: WorkspaceFingerprint{},
		Deleted:  WorkspaceFingerprint{},
	}
}

// Changed returns the union of added and modified functions.
func (d FingerprintDiff) Changed() WorkspaceFingerprint {
	out := WorkspaceFingerprint{}
	for _, bucket := range []WorkspaceFingerprint{d.Added, d.Modified} {
		for path, fp := range bucket {
			merged, ok := out[path]
			if !ok {
				merged = FileFingerprint{Path: fp.Path, Digest: fp.Digest, IsTestFile: fp.IsTestFile, Functions: map[string]string{}}
			}
			for name, digest := range fp.Functions {
				merged.Functions[name] = digest
			}
			out[path] = merged
		}
	}
	return out
}

// Empty reports whether no function was added, modified or deleted.
func (d FingerprintDiff) Empty() bool {
	return d.Added.FunctionCount() == 0 && d.Modified.FunctionCount() == 0 && d.Deleted.FunctionCount() == 0
}

// FunctionCount returns the number of functions across all files.
func (w WorkspaceFingerprint) FunctionCount() int {
	n := 0
	for _, fp := range w {
		n += len(fp.Functions)
	}
	return n
}

// Add records a single function digest under path, creating the file entry
// from template when missing.
func (w WorkspaceFingerprint) Add(template FileFingerprint, name, digest string) {
	fp, ok := w[template.Path]
	if !ok {
		fp = FileFingerprint{
			Path:       template.Path,
			Digest:     template.Digest,
			IsTestFile: template.IsTestFile,
			Functions:  map[string]string{},
		}
	}
	fp.Functions[name] = digest
	w[template.Path] = fp
}

// Tests lists every function of a test file that follows the test naming
// convention.
func (w WorkspaceFingerprint) Tests() []TestID {
	var ids []TestID
	for path, fp := range w {
		if !fp.IsTestFile {
			continue
		}
		for name := range fp.Functions {
			if IsTestName(name) {
				ids = append(ids, TestID{File: path, Name: name})
			}
		}
	}
	SortTestIDs(ids)
	return ids
}

// DependencyMap maps a function's simple name to every test that reaches it
// through a chain of calls.
type DependencyMap map[string][]TestID

// TestsFor returns the tests depending on function, which may be a method
// name of the form Class::method.
func (m DependencyMap) TestsFor(function string) []TestID {
	return m[SimpleName(function)]
}

// SimpleName returns the last "::" separated segment of a function name.
func SimpleName(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}
