package report

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
)

// ErrSealed is returned when a builder is used after Seal
var ErrSealed = errors.New("report already sealed")

// Metadata describes the run a report belongs to
type Metadata struct {
	RunID       string    `json:"runId,omitempty" yaml:"runId,omitempty"`
	Application string    `json:"application,omitempty" yaml:"application,omitempty"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
	Platform    string    `json:"platform,omitempty" yaml:"platform,omitempty"`
	Browser     string    `json:"browser,omitempty" yaml:"browser,omitempty"`
	Agent       string    `json:"agent,omitempty" yaml:"agent,omitempty"`
	StartedAt   time.Time `json:"startTime" yaml:"startTime"`
	FinishedAt  time.Time `json:"endTime" yaml:"endTime"`
}

// Summary holds the aggregate counts of a sealed report
type Summary struct {
	Total    int     `json:"totalCount" yaml:"totalCount"`
	Pass     int     `json:"passCount" yaml:"passCount"`
	Fail     int     `json:"failCount" yaml:"failCount"`
	Skipped  int     `json:"skippedCount" yaml:"skippedCount"`
	Error    int     `json:"errorCount" yaml:"errorCount"`
	PassRate float64 `json:"passRate" yaml:"passRate"`
}

// Count returns the number of results with verdict v
func (s Summary) Count(v Verdict) int {
	switch v {
	case VerdictPass:
		return s.Pass
	case VerdictFail:
		return s.Fail
	case VerdictSkipped:
		return s.Skipped
	case VerdictError:
		return s.Error
	}
	return 0
}

func summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Verdict {
		case VerdictPass:
			s.Pass++
		case VerdictFail:
			s.Fail++
		case VerdictSkipped:
			s.Skipped++
		case VerdictError:
			s.Error++
		}
	}
	s.PassRate = passRate(s.Pass, s.Total-s.Skipped)
	return s
}

// passRate is defined as 1.0 when nothing was checked
func passRate(pass, checked int) float64 {
	if checked <= 0 {
		return 1.0
	}
	return float64(pass) / float64(checked)
}

// Builder collects results into slots, one per eligible definition, and
// seals them into a Report. It is safe for concurrent use.
type Builder struct {
	mu       sync.Mutex
	cat      *catalog.Catalog
	meta     Metadata
	defs     []catalog.Definition
	slots    []*Result
	excluded []string
	sealed   bool
}

// NewBuilder prepares a builder for the given eligible definitions, in run order
func NewBuilder(cat *catalog.Catalog, defs []catalog.Definition, meta Metadata) *Builder {
	return &Builder{
		cat:   cat,
		meta:  meta,
		defs:  append([]catalog.Definition(nil), defs...),
		slots: make([]*Result, len(defs)),
	}
}

// Len returns the number of slots
func (b *Builder) Len() int { return len(b.defs) }

// Record stores the result for slot i. A slot can be written once.
func (b *Builder) Record(i int, r Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if i < 0 || i >= len(b.defs) {
		return fmt.Errorf("result slot %d out of range (0..%d)", i, len(b.defs)-1)
	}
	if r.DefinitionID != b.defs[i].ID() {
		return fmt.Errorf("result for %q recorded in slot of %q", r.DefinitionID, b.defs[i].ID())
	}
	if b.slots[i] != nil {
		return fmt.Errorf("result for %q already recorded", r.DefinitionID)
	}
	b.slots[i] = &r
	return nil
}

// Recorded reports whether slot i holds a result
func (b *Builder) Recorded(i int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return i >= 0 && i < len(b.slots) && b.slots[i] != nil
}

// Exclude lists ids the run left out on purpose (filtered)
func (b *Builder) Exclude(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.excluded = append(b.excluded, ids...)
}

// SetFinished records the end of the run
func (b *Builder) SetFinished(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta.FinishedAt = t
}

// Seal freezes the collected results. Every slot must be filled and every
// result must reference a definition of the catalog.
func (b *Builder) Seal() (*Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, ErrSealed
	}

	results := make([]Result, len(b.slots))
	for i, slot := range b.slots {
		if slot == nil {
			return nil, fmt.Errorf("no result recorded for %q", b.defs[i].ID())
		}
		if b.cat != nil && !b.cat.Contains(slot.DefinitionID) {
			return nil, fmt.Errorf("result references unknown definition %q", slot.DefinitionID)
		}
		results[i] = *slot
	}
	b.sealed = true

	return &Report{
		meta:     b.meta,
		defs:     b.defs,
		results:  results,
		excluded: append([]string(nil), b.excluded...),
		summary:  summarize(results),
	}, nil
}

// Rebuild reconstructs a sealed report from stored results, resolving each
// result against cat
func Rebuild(cat *catalog.Catalog, meta Metadata, results []Result, excluded []string) (*Report, error) {
	defs := make([]catalog.Definition, 0, len(results))
	for _, r := range results {
		d, err := cat.Find(r.DefinitionID)
		if err != nil {
			return nil, fmt.Errorf("rebuild report: %w", err)
		}
		defs = append(defs, d)
	}
	b := NewBuilder(cat, defs, meta)
	for i, r := range results {
		if err := b.Record(i, r); err != nil {
			return nil, fmt.Errorf("rebuild report: %w", err)
		}
	}
	b.Exclude(excluded...)
	return b.Seal()
}

// Report is a sealed, read-only verification report
type Report struct {
	meta     Metadata
	defs     []catalog.Definition
	results  []Result
	excluded []string
	summary  Summary
}

// Metadata returns the run metadata
func (r *Report) Metadata() Metadata { return r.meta }

// Summary returns the counts frozen at seal time
func (r *Report) Summary() Summary { return r.summary }

// Results returns a copy of the results in run order
func (r *Report) Results() []Result {
	return append([]Result(nil), r.results...)
}

// Excluded returns the ids the filter left out
func (r *Report) Excluded() []string {
	return append([]string(nil), r.excluded...)
}

// Entries yields every (definition, result) pair in run order
func (r *Report) Entries() iter.Seq2[catalog.Definition, Result] {
	return func(yield func(catalog.Definition, Result) bool) {
		for i, res := range r.results {
			if !yield(r.defs[i], res) {
				return
			}
		}
	}
}

// Failures yields the Fail and Error entries in run order
func (r *Report) Failures() iter.Seq2[catalog.Definition, Result] {
	return func(yield func(catalog.Definition, Result) bool) {
		for i, res := range r.results {
			if !res.Verdict.IsFailure() {
				continue
			}
			if !yield(r.defs[i], res) {
				return
			}
		}
	}
}

// Result returns the result recorded for id
func (r *Report) Result(id string) (Result, bool) {
	for _, res := range r.results {
		if res.DefinitionID == id {
			return res, true
		}
	}
	return Result{}, false
}

// Passed reports whether every checked shortcut passed
func (r *Report) Passed() bool {
	return r.summary.PassRate == 1.0
}

// Duration is the wall time of the run
func (r *Report) Duration() time.Duration {
	if r.meta.StartedAt.IsZero() || r.meta.FinishedAt.IsZero() {
		return 0
	}
	return r.meta.FinishedAt.Sub(r.meta.StartedAt)
}

// GroupStat aggregates the results of one category or display group
type GroupStat struct {
	Name    string  `json:"name" yaml:"name"`
	Summary Summary `json:"summary" yaml:"summary"`
}

// ByCategory aggregates results per catalog category, in order of first appearance
func (r *Report) ByCategory() []GroupStat {
	return r.group(func(d catalog.Definition) string { return string(d.Category()) })
}

// ByGroup aggregates results per display group; definitions without a group
// fall back to their category
func (r *Report) ByGroup() []GroupStat {
	return r.group(func(d catalog.Definition) string {
		if d.Group() != "" {
			return d.Group()
		}
		return string(d.Category())
	})
}

func (r *Report) group(key func(catalog.Definition) string) []GroupStat {
	var order []string
	buckets := make(map[string][]Result)
	for i, res := range r.results {
		k := key(r.defs[i])
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], res)
	}
	stats := make([]GroupStat, 0, len(order))
	for _, k := range order {
		stats = append(stats, GroupStat{Name: k, Summary: summarize(buckets[k])})
	}
	return stats
}
