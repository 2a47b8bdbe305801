package report

import (
	"fmt"
	"strings"
	"time"
)

// Verdict is the outcome of checking one shortcut
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictFail    Verdict = "FAIL"
	VerdictSkipped Verdict = "SKIPPED"
	VerdictError   Verdict = "ERROR"
)

// Verdicts lists every verdict in display order
var Verdicts = []Verdict{VerdictPass, VerdictFail, VerdictSkipped, VerdictError}

// ParseVerdict accepts a verdict name in any case
func ParseVerdict(s string) (Verdict, error) {
	for _, v := range Verdicts {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown verdict %q", s)
}

// IsFailure reports whether v belongs in the failure list
func (v Verdict) IsFailure() bool {
	return v == VerdictFail || v == VerdictError
}

// Icon returns the glyph used by the terminal renderer
func (v Verdict) Icon() string {
	switch v {
	case VerdictPass:
		return "✓"
	case VerdictFail:
		return "✗"
	case VerdictError:
		return "⚠"
	default:
		return "-"
	}
}

// Result is the verdict recorded for one definition during one run
type Result struct {
	DefinitionID string        `json:"definitionId" yaml:"definitionId"`
	Verdict      Verdict       `json:"verdict" yaml:"verdict"`
	Observation  string        `json:"observation,omitempty" yaml:"observation,omitempty"`
	Timestamp    time.Time     `json:"timestamp" yaml:"timestamp"`
	Duration     time.Duration `json:"durationNs,omitempty" yaml:"durationNs,omitempty"`
}
