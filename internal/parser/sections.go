package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"itp/internal/domain"
)

type frame struct {
	Path    string `json:"path"`
	Lineno  int    `json:"lineno"`
	Message string `json:"message"`
}

type phase struct {
	Duration  *float64        `json:"duration"`
	Outcome   string          `json:"outcome"`
	Crash     *frame          `json:"crash"`
	Traceback []frame         `json:"traceback"`
	Longrepr  json.RawMessage `json:"longrepr"`
}

type phases struct {
	Setup    *phase `json:"setup"`
	Call     *phase `json:"call"`
	Teardown *phase `json:"teardown"`
}

func (p phases) list() []*phase {
	return []*phase{p.Setup, p.Call, p.Teardown}
}

// OutcomeSection reads whether a test passed. Skipped and expected failures
// count as passed.
type OutcomeSection struct{}

func (OutcomeSection) Name() string { return "outcome" }

func (s OutcomeSection) Decode(raw json.RawMessage) (domain.TestID, Record, error) {
	var rec struct {
		NodeID  string `json:"nodeid"`
		Outcome string `json:"outcome"`
	}
	if err := decodeRecord(s.Name(), raw, &rec); err != nil {
		return domain.TestID{}, Record{}, err
	}
	id, err := parseNodeID(s.Name(), rec.NodeID)
	if err != nil {
		return domain.TestID{}, Record{}, err
	}
	if rec.Outcome == "" {
		return domain.TestID{}, Record{}, &domain.ParseError{Section: s.Name(), Record: rec.NodeID, Err: fmt.Errorf("missing outcome")}
	}

	passed := false
	switch rec.Outcome {
	case "passed", "xfailed", "skipped":
		passed = true
	}
	return id, Record{Passed: &passed}, nil
}

// TimingSection sums the durations of the setup, call and teardown phases.
type TimingSection struct{}

func (TimingSection) Name() string { return "timing" }

func (s TimingSection) Decode(raw json.RawMessage) (domain.TestID, Record, error) {
	var rec struct {
		NodeID string `json:"nodeid"`
		phases
	}
	if err := decodeRecord(s.Name(), raw, &rec); err != nil {
		return domain.TestID{}, Record{}, err
	}
	id, err := parseNodeID(s.Name(), rec.NodeID)
	if err != nil {
		return domain.TestID{}, Record{}, err
	}

	var total float64
	found := false
	for _, ph := range rec.list() {
		if ph != nil && ph.Duration != nil {
			total += *ph.Duration
			found = true
		}
	}
	if !found {
		return id, Record{}, nil
	}
	return id, Record{Time: &total}, nil
}

// FailureSection extracts the message and the deepest traceback location of
// the first failed phase.
type FailureSection struct{}

func (FailureSection) Name() string { return "failure" }

func (s FailureSection) Decode(raw json.RawMessage) (domain.TestID, Record, error) {
	var rec struct {
		NodeID string `json:"nodeid"`
		phases
	}
	if err := decodeRecord(s.Name(), raw, &rec); err != nil {
		return domain.TestID{}, Record{}, err
	}
	id, err := parseNodeID(s.Name(), rec.NodeID)
	if err != nil {
		return domain.TestID{}, Record{}, err
	}

	for _, ph := range rec.list() {
		if ph == nil || ph.Outcome != "failed" {
			continue
		}

		var out Record
		msg := ""
		if ph.Crash != nil && ph.Crash.Message != "" {
			msg = ph.Crash.Message
		} else {
			msg = longrepr(ph.Longrepr)
		}
		out.ErrorMessage = &msg

		loc := ""
		if n := len(ph.Traceback); n > 0 {
			loc = location(ph.Traceback[n-1].Path, ph.Traceback[n-1].Lineno)
		} else if ph.Crash != nil {
			loc = location(ph.Crash.Path, ph.Crash.Lineno)
		}
		if loc != "" {
			out.FailureLocation = &loc
		}
		return id, out, nil
	}
	return id, Record{}, nil
}

// longrepr is a plain string for most failures and a list for some skips.
func longrepr(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []interface{}
	if err := json.Unmarshal(raw, &parts); err == nil {
		strs := make([]string, 0, len(parts))
		for _, p := range parts {
			strs = append(strs, fmt.Sprint(p))
		}
		return strings.Join(strs, " ")
	}
	return string(raw)
}

// MemorySection reads the memory profiler report. total_memory is either a
// byte count or a human readable size such as "1.5MiB".
type MemorySection struct{}

func (MemorySection) Name() string { return "memory" }

func (s MemorySection) Decode(raw json.RawMessage) (domain.TestID, Record, error) {
	var rec struct {
		NodeID             string              `json:"nodeid"`
		TotalMemory        json.RawMessage     `json:"total_memory"`
		TotalAllocations   *int64              `json:"total_allocations"`
		Histogram          *string             `json:"histogram"`
		BiggestAllocations []domain.Allocation `json:"biggest_allocations"`
	}
	if err := decodeRecord(s.Name(), raw, &rec); err != nil {
		return domain.TestID{}, Record{}, err
	}
	id, err := parseNodeID(s.Name(), rec.NodeID)
	if err != nil {
		return domain.TestID{}, Record{}, err
	}

	out := Record{
		TotalAllocations:   rec.TotalAllocations,
		Histogram:          rec.Histogram,
		BiggestAllocations: rec.BiggestAllocations,
	}
	if len(rec.TotalMemory) > 0 && string(rec.TotalMemory) != "null" {
		bytes, err := parseBytes(rec.TotalMemory)
		if err != nil {
			return domain.TestID{}, Record{}, &domain.ParseError{Section: s.Name(), Record: rec.NodeID, Err: err}
		}
		out.TotalMemory = &bytes
	}
	return id, out, nil
}

func parseBytes(raw json.RawMessage) (int64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int64(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("total_memory: %w", err)
	}
	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("total_memory: %w", err)
	}
	return int64(v), nil
}
