package history

import (
	"time"

	"itp/internal/domain"
)

// Summary condenses one snapshot
type Summary struct {
	ID        string
	Timestamp time.Time
	Commit    string
	Branch    string
	Total     int
	Passed    int
	Failed    int
	Coverage  float64 // percent, 0 when the snapshot has no coverage
}

// TrendEntry is a summary with its change against the previous snapshot
type TrendEntry struct {
	Summary
	DeltaPassed   int
	DeltaFailed   int
	DeltaCoverage float64
}

// Processor derives summaries and trends. It holds no state.
type Processor struct{}

// NewProcessor creates a new Processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Summarize condenses a snapshot
func (p *Processor) Summarize(snap domain.Snapshot) Summary {
	passed, failed := snap.Results.Counts()
	s := Summary{
		ID:        snap.ID,
		Timestamp: snap.Timestamp,
		Commit:    snap.Commit,
		Branch:    snap.Branch,
		Total:     passed + failed,
		Passed:    passed,
		Failed:    failed,
	}
	if snap.Coverage != nil {
		s.Coverage = snap.Coverage.Totals.PercentCovered
	}
	return s
}

// Trend summarizes snapshots in order; the first entry has zero deltas.
func (p *Processor) Trend(snaps []domain.Snapshot) []TrendEntry {
	entries := make([]TrendEntry, 0, len(snaps))
	for i, snap := range snaps {
		entry := TrendEntry{Summary: p.Summarize(snap)}
		if i > 0 {
			prev := entries[i-1]
			entry.DeltaPassed = entry.Passed - prev.Passed
			entry.DeltaFailed = entry.Failed - prev.Failed
			entry.DeltaCoverage = entry.Coverage - prev.Coverage
		}
		entries = append(entries, entry)
	}
	return entries
}
