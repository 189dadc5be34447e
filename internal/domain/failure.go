package domain

// TestFailure is a flattened view of a failing test for display.
type TestFailure struct {
	TestName         string
	FilePath         string
	Message          string
	Location         string
	Time             float64
	TotalMemory      *int64
	TotalAllocations *int64
	Histogram        string
	Allocations      []Allocation
}

// Failures lists the failing tests of a table in deterministic order.
func Failures(t ResultTable) []TestFailure {
	var failures []TestFailure
	for _, id := range t.IDs() {
		r, _ := t.Get(id)
		if r.Passed {
			continue
		}
		failures = append(failures, TestFailure{
			TestName:         id.Name,
			FilePath:         id.File,
			Message:          r.ErrorMessage,
			Location:         r.FailureLocation,
			Time:             r.Time,
			TotalMemory:      r.TotalMemory,
			TotalAllocations: r.TotalAllocations,
			Histogram:        r.Histogram,
			Allocations:      r.BiggestAllocations,
		})
	}
	return failures
}
