// Package results applies fresh test results to the stored result table.
package results

import (
	"itp/internal/domain"
)

// Mode selects how fresh results combine with stored ones
type Mode int

const (
	// Rewrite replaces the stored table; used by full runs
	Rewrite Mode = iota
	// Merge overwrites only the tests present in the fresh table
	Merge
)

func (m Mode) String() string {
	if m == Merge {
		return "merge"
	}
	return "rewrite"
}

// Apply returns the table that results from applying fresh to stored.
// Neither input is modified.
func Apply(stored, fresh domain.ResultTable, mode Mode) domain.ResultTable {
	if mode == Rewrite || stored == nil {
		out := fresh.Clone()
		if out == nil {
			out = domain.ResultTable{}
		}
		return out
	}

	out := stored.Clone()
	for file, tests := range fresh {
		for name, r := range tests {
			out.Set(domain.TestID{File: file, Name: name}, r)
		}
	}
	return out
}

// DropStaleVariants removes from stored the parametrized cases of selected
// test functions that fresh no longer reports. A function with no case at all
// in fresh is left alone, since the runner may have stopped before it.
func DropStaleVariants(stored, fresh domain.ResultTable, selected []domain.TestID) {
	ran := map[domain.TestID]bool{}
	for file, tests := range fresh {
		for name := range tests {
			ran[domain.TestID{File: file, Name: domain.BaseTestName(name)}] = true
		}
	}

	for _, id := range selected {
		if id.Name != id.BaseName() || !ran[id] {
			continue
		}
		for name := range stored[id.File] {
			variant := domain.TestID{File: id.File, Name: name}
			if variant.BaseName() != id.Name {
				continue
			}
			if _, ok := fresh.Get(variant); !ok {
				stored.Delete(variant)
			}
		}
	}
}
