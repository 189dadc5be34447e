// Package parser turns the runner's report files into domain results.
//
// The structured report is read by several independent sections, each with
// its own schema: outcome, timing, failure details and memory usage. Every
// section yields partial records that are folded per test by field-level
// union, so a section that is absent or broken only leaves its own fields
// unset.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"itp/internal/domain"
	"itp/internal/logger"
)

// Record is a partial test result. Nil fields are unset.
type Record struct {
	Passed             *bool
	Time               *float64
	ErrorMessage       *string
	FailureLocation    *string
	TotalMemory        *int64
	TotalAllocations   *int64
	Histogram          *string
	BiggestAllocations []domain.Allocation
}

// Fill copies every field of other that is still unset in r.
func (r *Record) Fill(other Record) {
	if r.Passed == nil {
		r.Passed = other.Passed
	}
	if r.Time == nil {
		r.Time = other.Time
	}
	if r.ErrorMessage == nil {
		r.ErrorMessage = other.ErrorMessage
	}
	if r.FailureLocation == nil {
		r.FailureLocation = other.FailureLocation
	}
	if r.TotalMemory == nil {
		r.TotalMemory = other.TotalMemory
	}
	if r.TotalAllocations == nil {
		r.TotalAllocations = other.TotalAllocations
	}
	if r.Histogram == nil {
		r.Histogram = other.Histogram
	}
	if r.BiggestAllocations == nil {
		r.BiggestAllocations = other.BiggestAllocations
	}
}

// Result converts the record, with an unset time becoming NaN.
func (r Record) Result() domain.TestResult {
	res := domain.TestResult{
		Time:               math.NaN(),
		TotalMemory:        r.TotalMemory,
		TotalAllocations:   r.TotalAllocations,
		BiggestAllocations: r.BiggestAllocations,
	}
	if r.Passed != nil {
		res.Passed = *r.Passed
	}
	if r.Time != nil {
		res.Time = *r.Time
	}
	if r.ErrorMessage != nil {
		res.ErrorMessage = *r.ErrorMessage
	}
	if r.FailureLocation != nil {
		res.FailureLocation = *r.FailureLocation
	}
	if r.Histogram != nil {
		res.Histogram = *r.Histogram
	}
	return res
}

// Section decodes one record of its source document.
type Section interface {
	Name() string
	Decode(raw json.RawMessage) (domain.TestID, Record, error)
}

// document is the envelope shared by the structured and memory reports
type document struct {
	Tests []json.RawMessage `json:"tests"`
}

// ResultParser folds report sections into a ResultTable
type ResultParser struct {
	reportSections []Section
	memorySections []Section
	log            logger.Logger
}

// NewResultParser creates a parser with the outcome, timing, failure and
// memory sections.
func NewResultParser(log logger.Logger) *ResultParser {
	return &ResultParser{
		reportSections: []Section{OutcomeSection{}, TimingSection{}, FailureSection{}},
		memorySections: []Section{MemorySection{}},
		log:            log,
	}
}

// ParseResults reads the structured report and, when memoryPath is not
// empty, the memory report. A missing file contributes nothing. Only tests
// with a known outcome enter the table.
func (p *ResultParser) ParseResults(reportPath, memoryPath string) (domain.ResultTable, error) {
	records := map[domain.TestID]*Record{}
	var order []domain.TestID

	fold := func(path string, sections []Section, required bool) error {
		if path == "" {
			return nil
		}
		doc, err := readDocument(path)
		if errors.Is(err, os.ErrNotExist) {
			p.log.Debug("report not found, section skipped", "path", path)
			return nil
		}
		if err != nil {
			if required {
				return err
			}
			p.log.Warn("report unreadable, section skipped", "path", path, "error", err)
			return nil
		}

		for _, section := range sections {
			for _, raw := range doc.Tests {
				id, rec, err := section.Decode(raw)
				if err != nil {
					p.log.Warn("skipping malformed record", "error", err)
					continue
				}
				existing, ok := records[id]
				if !ok {
					existing = &Record{}
					records[id] = existing
					order = append(order, id)
				}
				existing.Fill(rec)
			}
		}
		return nil
	}

	if err := fold(reportPath, p.reportSections, true); err != nil {
		return nil, err
	}
	if err := fold(memoryPath, p.memorySections, false); err != nil {
		return nil, err
	}

	table := domain.ResultTable{}
	for _, id := range order {
		rec := records[id]
		if rec.Passed == nil {
			p.log.Debug("record without outcome dropped", "test", id.String())
			continue
		}
		table.Set(id, rec.Result())
	}
	return table, nil
}

func readDocument(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &domain.ParseError{Section: "document", Record: path, Err: err}
	}
	return &doc, nil
}

func parseNodeID(section string, nodeID string) (domain.TestID, error) {
	id, err := domain.ParseTestID(nodeID)
	if err != nil {
		return domain.TestID{}, &domain.ParseError{Section: section, Record: nodeID, Err: err}
	}
	return id, nil
}

func decodeRecord(section string, raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ParseError{Section: section, Record: truncate(string(raw), 80), Err: err}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func location(path string, line int) string {
	if path == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", path, line)
}
