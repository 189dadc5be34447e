package execution

import (
	"sort"

	"itp/internal/domain"
)

// Scheduler orders the tests handed to the runner
type Scheduler interface {
	Order(tests []domain.TestID) []domain.TestID
}

// FailuresFirstScheduler puts tests that failed last time ahead of the rest,
// keeping the relative order within each group.
type FailuresFirstScheduler struct {
	previous domain.ResultTable
}

// NewFailuresFirstScheduler creates a scheduler over the previous results
func NewFailuresFirstScheduler(previous domain.ResultTable) *FailuresFirstScheduler {
	return &FailuresFirstScheduler{previous: previous}
}

// Order returns a reordered copy of tests
func (s *FailuresFirstScheduler) Order(tests []domain.TestID) []domain.TestID {
	ordered := append([]domain.TestID(nil), tests...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return s.failed(ordered[i]) && !s.failed(ordered[j])
	})
	return ordered
}

// failed matches parametrized variants too: a selected test_x covers a
// failing test_x[1].
func (s *FailuresFirstScheduler) failed(id domain.TestID) bool {
	if r, ok := s.previous.Get(id); ok {
		return !r.Passed
	}
	base := id.BaseName()
	for name, r := range s.previous[id.File] {
		if !r.Passed && domain.BaseTestName(name) == base {
			return true
		}
	}
	return false
}
