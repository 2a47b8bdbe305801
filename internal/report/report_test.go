package report

import (
	"bytes"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testTime = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func scenarioCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load([]catalog.Record{
		{KeyCombination: "C", Category: "Compose", Context: "Any", ExpectedEffect: "compose window opens"},
		{KeyCombination: "J", Category: "Navigation", Context: "Inbox", ExpectedEffect: "next message selected"},
		{KeyCombination: "Cmd+B", Category: "Global", Context: "Any", ExpectedEffect: "sidebar toggles"},
	})
	require.NoError(t, err)
	return cat
}

func sealWith(t *testing.T, cat *catalog.Catalog, verdicts []Verdict, notes []string) *Report {
	t.Helper()
	defs := slices.Collect(cat.Entries())
	require.Len(t, verdicts, len(defs))

	b := NewBuilder(cat, defs, Metadata{Application: "Slashy Mail", StartedAt: testTime})
	for i, d := range defs {
		res := Result{DefinitionID: d.ID(), Verdict: verdicts[i], Timestamp: testTime}
		if notes != nil {
			res.Observation = notes[i]
		}
		require.NoError(t, b.Record(i, res))
	}
	b.SetFinished(testTime.Add(3 * time.Second))
	r, err := b.Seal()
	require.NoError(t, err)
	return r
}

func TestReport_ThreeDefinitionScenario(t *testing.T) {
	cat := scenarioCatalog(t)
	r := sealWith(t, cat,
		[]Verdict{VerdictPass, VerdictFail, VerdictPass},
		[]string{"", "no-op", ""})

	s := r.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Pass)
	assert.Equal(t, 1, s.Fail)
	assert.InDelta(t, 2.0/3.0, s.PassRate, 1e-9)
	assert.False(t, r.Passed())
	assert.Equal(t, StatusMostlyFunctional, r.Status())

	var failures []string
	for d, res := range r.Failures() {
		failures = append(failures, d.Keys().String()+" "+string(res.Verdict)+" "+res.Observation)
	}
	assert.Equal(t, []string{"J FAIL no-op"}, failures)
	assert.Equal(t, 3*time.Second, r.Duration())
}

func TestReport_CountsSumToTotal(t *testing.T) {
	cat := scenarioCatalog(t)
	r := sealWith(t, cat, []Verdict{VerdictError, VerdictSkipped, VerdictPass}, nil)

	s := r.Summary()
	sum := 0
	for _, v := range Verdicts {
		sum += s.Count(v)
	}
	assert.Equal(t, s.Total, sum)
	assert.Equal(t, 1, s.Error)
	// skipped entries leave the denominator
	assert.InDelta(t, 0.5, s.PassRate, 1e-9)
}

func TestReport_PassRateWithNothingChecked(t *testing.T) {
	cat := scenarioCatalog(t)
	r := sealWith(t, cat, []Verdict{VerdictSkipped, VerdictSkipped, VerdictSkipped}, nil)
	assert.Equal(t, 1.0, r.Summary().PassRate)
	assert.True(t, r.Passed())

	empty, err := NewBuilder(cat, nil, Metadata{}).Seal()
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Summary().Total)
	assert.Equal(t, 1.0, empty.Summary().PassRate)
	assert.Equal(t, StatusProductionReady, empty.Status())
}

func TestBuilder_RecordValidation(t *testing.T) {
	cat := scenarioCatalog(t)
	defs := slices.Collect(cat.Entries())
	b := NewBuilder(cat, defs, Metadata{})

	assert.Error(t, b.Record(3, Result{DefinitionID: "c@any"}), "out of range")
	assert.Error(t, b.Record(0, Result{DefinitionID: "j@inbox"}), "wrong slot")
	require.NoError(t, b.Record(0, Result{DefinitionID: "c@any", Verdict: VerdictPass}))
	assert.Error(t, b.Record(0, Result{DefinitionID: "c@any", Verdict: VerdictFail}), "written twice")
	assert.True(t, b.Recorded(0))
	assert.False(t, b.Recorded(1))

	_, err := b.Seal()
	assert.ErrorContains(t, err, "no result recorded for \"j@inbox\"")
}

func TestBuilder_SealRejectsForeignDefinitions(t *testing.T) {
	cat := scenarioCatalog(t)
	other, err := catalog.Load([]catalog.Record{
		{KeyCombination: "Z", Category: "Global", Context: "Any", ExpectedEffect: "undo"},
	})
	require.NoError(t, err)

	b := NewBuilder(cat, slices.Collect(other.Entries()), Metadata{})
	require.NoError(t, b.Record(0, Result{DefinitionID: "z@any", Verdict: VerdictPass}))
	_, err = b.Seal()
	assert.ErrorContains(t, err, "unknown definition")
}

func TestBuilder_SealedIsFrozen(t *testing.T) {
	cat := scenarioCatalog(t)
	defs := slices.Collect(cat.Entries())[:1]
	b := NewBuilder(cat, defs, Metadata{})
	require.NoError(t, b.Record(0, Result{DefinitionID: "c@any", Verdict: VerdictPass}))

	r, err := b.Seal()
	require.NoError(t, err)

	_, err = b.Seal()
	assert.ErrorIs(t, err, ErrSealed)
	assert.ErrorIs(t, b.Record(0, Result{DefinitionID: "c@any"}), ErrSealed)

	results := r.Results()
	results[0].Verdict = VerdictFail
	assert.Equal(t, VerdictPass, r.Results()[0].Verdict)
}

func TestBuilder_ConcurrentRecordKeepsSlotOrder(t *testing.T) {
	cat := catalog.Builtin()
	defs := slices.Collect(cat.Entries())
	b := NewBuilder(cat, defs, Metadata{})

	var wg sync.WaitGroup
	for i := len(defs) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, b.Record(i, Result{DefinitionID: defs[i].ID(), Verdict: VerdictPass}))
		}(i)
	}
	wg.Wait()

	r, err := b.Seal()
	require.NoError(t, err)
	for i, res := range r.Results() {
		assert.Equal(t, defs[i].ID(), res.DefinitionID)
	}
}

func TestRebuild(t *testing.T) {
	cat := scenarioCatalog(t)
	orig := sealWith(t, cat, []Verdict{VerdictPass, VerdictFail, VerdictError}, []string{"", "no-op", "boom"})

	back, err := Rebuild(cat, orig.Metadata(), orig.Results(), []string{"x@any"})
	require.NoError(t, err)
	assert.Equal(t, orig.Summary(), back.Summary())
	assert.Equal(t, []string{"x@any"}, back.Excluded())

	_, err = Rebuild(cat, Metadata{}, []Result{{DefinitionID: "q@any"}}, nil)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestReport_ByCategoryAndGroup(t *testing.T) {
	cat, err := catalog.Load([]catalog.Record{
		{KeyCombination: "E", Category: "Global", Context: "Inbox", ExpectedEffect: "archived", Group: "Email Actions"},
		{KeyCombination: "J", Category: "Navigation", Context: "Inbox", ExpectedEffect: "next"},
		{KeyCombination: "S", Category: "Global", Context: "Inbox", ExpectedEffect: "starred", Group: "Email Actions"},
	})
	require.NoError(t, err)
	r := sealWith(t, cat, []Verdict{VerdictPass, VerdictPass, VerdictFail}, nil)

	byCat := r.ByCategory()
	require.Len(t, byCat, 2)
	assert.Equal(t, "Global", byCat[0].Name)
	assert.Equal(t, 2, byCat[0].Summary.Total)
	assert.Equal(t, 1, byCat[0].Summary.Fail)
	assert.Equal(t, "Navigation", byCat[1].Name)

	byGroup := r.ByGroup()
	require.Len(t, byGroup, 2)
	assert.Equal(t, "Email Actions", byGroup[0].Name)
	assert.Equal(t, "Navigation", byGroup[1].Name, "ungrouped falls back to category")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		rate float64
		want Status
	}{
		{1.0, StatusProductionReady},
		{0.8, StatusProductionReady},
		{0.79, StatusMostlyFunctional},
		{0.6, StatusMostlyFunctional},
		{0.59, StatusNeedsImprovement},
		{0, StatusNeedsImprovement},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.rate), "rate %v", tt.rate)
	}
}

func TestDocument_JSON(t *testing.T) {
	cat := scenarioCatalog(t)
	r := sealWith(t, cat, []Verdict{VerdictPass, VerdictFail, VerdictPass}, []string{"", "no-op", ""})

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.EqualValues(t, 3, doc["totalCount"])
	assert.EqualValues(t, 2, doc["passCount"])
	assert.EqualValues(t, 1, doc["failCount"])
	assert.Equal(t, "MOSTLY FUNCTIONAL", doc["status"])

	failures, ok := doc["failures"].([]any)
	require.True(t, ok)
	require.Len(t, failures, 1)
	first := failures[0].(map[string]any)
	assert.Equal(t, "j@inbox", first["id"])
	assert.Equal(t, "no-op", first["observation"])

	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, "Slashy Mail", meta["application"])
}

func TestDocument_YAMLEmptyFailures(t *testing.T) {
	cat := scenarioCatalog(t)
	r := sealWith(t, cat, []Verdict{VerdictPass, VerdictPass, VerdictPass}, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, r))

	var doc Document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, 3, doc.TotalCount)
	assert.Empty(t, doc.Failures)
	assert.Equal(t, StatusProductionReady, doc.Status)
	assert.Len(t, doc.Results, 3)
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict(" pass ")
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, v)

	_, err = ParseVerdict("PARTIAL")
	assert.Error(t, err)
}
