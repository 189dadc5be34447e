package domain

import (
	"encoding/json"
	"math"
	"sort"
)

// Allocation is one entry of the biggest-allocations list reported by the
// memory profiler.
type Allocation struct {
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

// TestResult is the recorded outcome of one test.
type TestResult struct {
	Passed             bool
	Time               float64 // seconds, NaN if unknown
	ErrorMessage       string
	FailureLocation    string // file:line of the deepest traceback frame
	TotalMemory        *int64 // bytes
	TotalAllocations   *int64
	Histogram          string
	BiggestAllocations []Allocation
}

type testResultJSON struct {
	Passed             bool         `json:"passed"`
	Time               *float64     `json:"time"`
	ErrorMessage       string       `json:"errorMessage,omitempty"`
	FailureLocation    string       `json:"failureLocation,omitempty"`
	TotalMemory        *int64       `json:"totalMemory,omitempty"`
	TotalAllocations   *int64       `json:"totalAllocations,omitempty"`
	Histogram          string       `json:"histogram,omitempty"`
	BiggestAllocations []Allocation `json:"biggestAllocations,omitempty"`
}

// MarshalJSON encodes an unknown (NaN) time as null.
func (r TestResult) MarshalJSON() ([]byte, error) {
	out := testResultJSON{
		Passed:             r.Passed,
		ErrorMessage:       r.ErrorMessage,
		FailureLocation:    r.FailureLocation,
		TotalMemory:        r.TotalMemory,
		TotalAllocations:   r.TotalAllocations,
		Histogram:          r.Histogram,
		BiggestAllocations: r.BiggestAllocations,
	}
	if !math.IsNaN(r.Time) && !math.IsInf(r.Time, 0) {
		t := r.Time
		out.Time = &t
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a null time as NaN.
func (r *TestResult) UnmarshalJSON(data []byte) error {
	var in testResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = TestResult{
		Passed:             in.Passed,
		Time:               math.NaN(),
		ErrorMessage:       in.ErrorMessage,
		FailureLocation:    in.FailureLocation,
		TotalMemory:        in.TotalMemory,
		TotalAllocations:   in.TotalAllocations,
		Histogram:          in.Histogram,
		BiggestAllocations: in.BiggestAllocations,
	}
	if in.Time != nil {
		r.Time = *in.Time
	}
	return nil
}

// HasTime reports whether the duration is known.
func (r TestResult) HasTime() bool {
	return !math.IsNaN(r.Time)
}

// ResultTable maps file -> test name -> result. It is the authoritative
// current state of test outcomes.
type ResultTable map[string]map[string]TestResult

// Get returns the result for id.
func (t ResultTable) Get(id TestID) (TestResult, bool) {
	tests, ok := t[id.File]
	if !ok {
		return TestResult{}, false
	}
	r, ok := tests[id.Name]
	return r, ok
}

// Set stores the result for id.
func (t ResultTable) Set(id TestID, r TestResult) {
	tests, ok := t[id.File]
	if !ok {
		tests = make(map[string]TestResult)
		t[id.File] = tests
	}
	tests[id.Name] = r
}

// Delete removes id and drops the file entry once it is empty.
func (t ResultTable) Delete(id TestID) {
	tests, ok := t[id.File]
	if !ok {
		return
	}
	delete(tests, id.Name)
	if len(tests) == 0 {
		delete(t, id.File)
	}
}

// Len returns the number of tests in the table.
func (t ResultTable) Len() int {
	n := 0
	for _, tests := range t {
		n += len(tests)
	}
	return n
}

// IDs returns every test id in deterministic order.
func (t ResultTable) IDs() []TestID {
	ids := make([]TestID, 0, t.Len())
	for file, tests := range t {
		for name := range tests {
			ids = append(ids, TestID{File: file, Name: name})
		}
	}
	SortTestIDs(ids)
	return ids
}

// Clone returns a deep copy of the table.
func (t ResultTable) Clone() ResultTable {
	if t == nil {
		return nil
	}
	out := make(ResultTable, len(t))
	for file, tests := range t {
		cp := make(map[string]TestResult, len(tests))
		for name, r := range tests {
			cp[name] = r
		}
		out[file] = cp
	}
	return out
}

// Counts returns the number of passed and failed tests.
func (t ResultTable) Counts() (passed, failed int) {
	for _, tests := range t {
		for _, r := range tests {
			if r.Passed {
				passed++
			} else {
				failed++
			}
		}
	}
	return passed, failed
}

// Files returns the file keys in sorted order.
func (t ResultTable) Files() []string {
	files := make([]string, 0, len(t))
	for f := range t {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}
