package domain

import (
	"time"

	"github.com/google/uuid"
)

// State is the persisted session state committed after every successful run.
type State struct {
	Results     ResultTable          `json:"results"`
	Coverage    *CoverageReport      `json:"coverage"`
	Fingerprint WorkspaceFingerprint `json:"fingerprint"`
}

// Clone returns a deep copy of the results and coverage; the fingerprint is
// replaced wholesale by runs and is shared.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{
		Results:     s.Results.Clone(),
		Coverage:    s.Coverage.Clone(),
		Fingerprint: s.Fingerprint,
	}
}

// Snapshot is an immutable, timestamped capture of results and coverage.
type Snapshot struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Results   ResultTable     `json:"results"`
	Coverage  *CoverageReport `json:"coverage"`
	Commit    string          `json:"commit,omitempty"`
	Branch    string          `json:"branch,omitempty"`
}

// NewSnapshot captures the given state at time at.
func NewSnapshot(state *State, at time.Time) Snapshot {
	snap := Snapshot{
		ID:        uuid.NewString(),
		Timestamp: at,
		Results:   ResultTable{},
	}
	if state != nil {
		snap.Results = state.Results.Clone()
		snap.Coverage = state.Coverage.Clone()
	}
	return snap
}
