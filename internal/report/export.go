package report

import (
	"encoding/json"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is the overall readiness label derived from the pass rate
type Status string

const (
	StatusProductionReady  Status = "PRODUCTION READY"
	StatusMostlyFunctional Status = "MOSTLY FUNCTIONAL"
	StatusNeedsImprovement Status = "NEEDS IMPROVEMENT"
)

const (
	productionReadyPercent  = 80.0
	mostlyFunctionalPercent = 60.0
)

// StatusFor maps a pass rate in [0,1] to a readiness label
func StatusFor(passRate float64) Status {
	pct := passRate * 100
	switch {
	case pct >= productionReadyPercent:
		return StatusProductionReady
	case pct >= mostlyFunctionalPercent:
		return StatusMostlyFunctional
	default:
		return StatusNeedsImprovement
	}
}

// Status returns the readiness label of r
func (r *Report) Status() Status { return StatusFor(r.summary.PassRate) }

// Entry is one exported (definition, result) pair
type Entry struct {
	ID             string    `json:"id" yaml:"id"`
	KeyCombination string    `json:"keyCombination" yaml:"keyCombination"`
	Category       string    `json:"category" yaml:"category"`
	Context        string    `json:"context" yaml:"context"`
	Description    string    `json:"description,omitempty" yaml:"description,omitempty"`
	ExpectedEffect string    `json:"expectedEffect" yaml:"expectedEffect"`
	Verdict        Verdict   `json:"verdict" yaml:"verdict"`
	Observation    string    `json:"observation,omitempty" yaml:"observation,omitempty"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	DurationMs     int64     `json:"durationMs" yaml:"durationMs"`
}

// Document is the structured export of a report
type Document struct {
	Metadata     Metadata    `json:"metadata" yaml:"metadata"`
	TotalCount   int         `json:"totalCount" yaml:"totalCount"`
	PassCount    int         `json:"passCount" yaml:"passCount"`
	FailCount    int         `json:"failCount" yaml:"failCount"`
	SkippedCount int         `json:"skippedCount" yaml:"skippedCount"`
	ErrorCount   int         `json:"errorCount" yaml:"errorCount"`
	PassRate     float64     `json:"passRate" yaml:"passRate"`
	Status       Status      `json:"status" yaml:"status"`
	Failures     []Entry     `json:"failures" yaml:"failures"`
	Results      []Entry     `json:"results" yaml:"results"`
	Excluded     []string    `json:"excluded,omitempty" yaml:"excluded,omitempty"`
	Categories   []GroupStat `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Document builds the export structure of r
func (r *Report) Document() Document {
	s := r.summary
	doc := Document{
		Metadata:     r.meta,
		TotalCount:   s.Total,
		PassCount:    s.Pass,
		FailCount:    s.Fail,
		SkippedCount: s.Skipped,
		ErrorCount:   s.Error,
		PassRate:     s.PassRate,
		Status:       r.Status(),
		Failures:     []Entry{},
		Results:      make([]Entry, 0, len(r.results)),
		Excluded:     r.Excluded(),
		Categories:   r.ByCategory(),
	}
	for d, res := range r.Entries() {
		e := Entry{
			ID:             d.ID(),
			KeyCombination: d.Keys().String(),
			Category:       string(d.Category()),
			Context:        d.Context(),
			Description:    d.Description(),
			ExpectedEffect: d.ExpectedEffect(),
			Verdict:        res.Verdict,
			Observation:    res.Observation,
			Timestamp:      res.Timestamp,
			DurationMs:     res.Duration.Milliseconds(),
		}
		doc.Results = append(doc.Results, e)
		if res.Verdict.IsFailure() {
			doc.Failures = append(doc.Failures, e)
		}
	}
	return doc
}

// WriteJSON encodes the report document as indented JSON
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Document())
}

// WriteYAML encodes the report document as YAML
func WriteYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Document()); err != nil {
		return err
	}
	return enc.Close()
}
