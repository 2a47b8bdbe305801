package report

// Change is the verdict movement of one definition between two runs
type Change struct {
	DefinitionID string  `json:"definitionId" yaml:"definitionId"`
	Before       Verdict `json:"before,omitempty" yaml:"before,omitempty"`
	After        Verdict `json:"after,omitempty" yaml:"after,omitempty"`
	Observation  string  `json:"observation,omitempty" yaml:"observation,omitempty"`
}

// Delta lists what changed between a previous and a next report.
// Regressions went from Pass to Fail or Error, Fixes the other way round.
// Every other verdict change lands in Changed.
type Delta struct {
	Regressions []Change `json:"regressions" yaml:"regressions"`
	Fixes       []Change `json:"fixes" yaml:"fixes"`
	Changed     []Change `json:"changed" yaml:"changed"`
	Added       []Change `json:"added" yaml:"added"`
	Removed     []Change `json:"removed" yaml:"removed"`
}

// IsZero reports whether both runs agree on every definition
func (d Delta) IsZero() bool {
	return len(d.Regressions)+len(d.Fixes)+len(d.Changed)+len(d.Added)+len(d.Removed) == 0
}

// Diff compares two reports by definition id. Entries follow next's run
// order, Removed follows prev's.
func Diff(prev, next *Report) Delta {
	var d Delta
	before := make(map[string]Verdict)
	if prev != nil {
		for _, r := range prev.results {
			before[r.DefinitionID] = r.Verdict
		}
	}

	seen := make(map[string]bool)
	if next != nil {
		for _, r := range next.results {
			seen[r.DefinitionID] = true
			c := Change{DefinitionID: r.DefinitionID, After: r.Verdict, Observation: r.Observation}
			was, ok := before[r.DefinitionID]
			switch {
			case !ok:
				d.Added = append(d.Added, c)
			case was == r.Verdict:
			case was == VerdictPass && r.Verdict.IsFailure():
				c.Before = was
				d.Regressions = append(d.Regressions, c)
			case was.IsFailure() && r.Verdict == VerdictPass:
				c.Before = was
				d.Fixes = append(d.Fixes, c)
			default:
				c.Before = was
				d.Changed = append(d.Changed, c)
			}
		}
	}

	if prev != nil {
		for _, r := range prev.results {
			if !seen[r.DefinitionID] {
				d.Removed = append(d.Removed, Change{DefinitionID: r.DefinitionID, Before: r.Verdict, Observation: r.Observation})
			}
		}
	}
	return d
}
