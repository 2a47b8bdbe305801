package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var fixedTime = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func mustDefinition(t *testing.T, keys, category, context string) catalog.Definition {
	t.Helper()
	def, err := catalog.NewDefinition(catalog.Record{
		KeyCombination: keys, Category: category, Context: context, ExpectedEffect: "something happens",
	})
	require.NoError(t, err)
	return def
}

func TestReplay_SlashySession(t *testing.T) {
	defer goleak.VerifyNone(t)

	replay, err := NewReplay(SlashyRecording())
	require.NoError(t, err)
	assert.Equal(t, 26, replay.Len())

	r := verify.NewRunner(verify.Options{Clock: func() time.Time { return fixedTime }, Concurrency: 4})
	rep, err := r.Run(context.Background(), catalog.Builtin(), replay, verify.Filter{})
	require.NoError(t, err)

	s := rep.Summary()
	assert.Equal(t, 28, s.Total)
	assert.Equal(t, 19, s.Pass)
	assert.Equal(t, 7, s.Fail)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, 0, s.Error)
	assert.InDelta(t, 19.0/26.0, s.PassRate, 1e-9)
	assert.Equal(t, report.StatusMostlyFunctional, rep.Status())
	assert.Equal(t, "replay", rep.Metadata().Agent)

	u, ok := rep.Result("u@inbox")
	require.True(t, ok)
	assert.Equal(t, report.VerdictFail, u.Verdict)
	assert.Equal(t, "partial: Navigates away instead of toggling", u.Observation)

	shiftE, ok := rep.Result("shift+e@inbox")
	require.True(t, ok)
	assert.Equal(t, report.VerdictSkipped, shiftE.Verdict)
	assert.Equal(t, "no recorded observation", shiftE.Observation)
}

func TestReplay_StatusMapping(t *testing.T) {
	rec, err := ParseRecording([]byte(`
observations:
  - {keys: J, context: Inbox, status: pass, notes: moved down}
  - {id: "K@Inbox", status: FAIL, notes: nothing}
  - {keys: E, context: Inbox, status: UNTESTED}
  - {keys: S, context: Inbox, status: ERROR, notes: tab crashed}
  - {keys: H, context: Inbox, status: skipped}
`))
	require.NoError(t, err)
	replay, err := NewReplay(rec)
	require.NoError(t, err)

	ctx := context.Background()
	tests := []struct {
		keys     string
		expected verify.Observation
	}{
		{"J", verify.Observation{Succeeded: true, Note: "moved down"}},
		{"K", verify.Observation{Note: "nothing"}},
		{"E", verify.Observation{Skipped: true}},
		{"H", verify.Observation{Skipped: true}},
	}
	for _, tt := range tests {
		t.Run(tt.keys, func(t *testing.T) {
			obs, err := replay.Check(ctx, mustDefinition(t, tt.keys, "Navigation", "Inbox"))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, obs)
		})
	}

	_, err = replay.Check(ctx, mustDefinition(t, "S", "Navigation", "Inbox"))
	assert.ErrorIs(t, err, verify.ErrTransport)
	assert.ErrorContains(t, err, "tab crashed")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = replay.Check(cancelled, mustDefinition(t, "J", "Navigation", "Inbox"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReplay_Errors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		expectedErr string
	}{
		{"unknown_status", "observations: [{keys: J, context: Inbox, status: MAYBE}]", "unknown status"},
		{"missing_context", "observations: [{keys: J, status: PASS}]", "context is required"},
		{"bad_keys", "observations: [{keys: '', context: Inbox, status: PASS}]", "observation 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseRecording([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = NewReplay(rec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}

	_, err := ParseRecording([]byte("observations: {"))
	assert.Error(t, err)
}

func TestLoadRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("application: Demo\nobservations:\n  - {keys: C, context: Any, status: PASS}\n"), 0o600))

	rec, err := LoadRecording(path)
	require.NoError(t, err)
	assert.Equal(t, "Demo", rec.Application)
	require.Len(t, rec.Observations, 1)

	_, err = LoadRecording(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read recording")
}

func TestReplayFromReport(t *testing.T) {
	cat, err := catalog.Load([]catalog.Record{
		{KeyCombination: "C", Category: "Compose", Context: "Any", ExpectedEffect: "compose opens"},
		{KeyCombination: "J", Category: "Navigation", Context: "Inbox", ExpectedEffect: "next"},
		{KeyCombination: "K", Category: "Navigation", Context: "Inbox", ExpectedEffect: "previous"},
		{KeyCombination: "E", Category: "Navigation", Context: "Inbox", ExpectedEffect: "done"},
	})
	require.NoError(t, err)
	prev, err := report.Rebuild(cat, report.Metadata{RunID: "r1"}, []report.Result{
		{DefinitionID: "c@any", Verdict: report.VerdictPass},
		{DefinitionID: "j@inbox", Verdict: report.VerdictFail, Observation: "no-op"},
		{DefinitionID: "k@inbox", Verdict: report.VerdictSkipped},
		{DefinitionID: "e@inbox", Verdict: report.VerdictError, Observation: "timeout"},
	}, nil)
	require.NoError(t, err)

	replay := ReplayFromReport(prev)
	assert.Equal(t, "replay:r1", replay.Name())

	r := verify.NewRunner(verify.Options{Clock: func() time.Time { return fixedTime }})
	rep, err := r.Run(context.Background(), cat, replay, verify.Filter{})
	require.NoError(t, err)

	var verdicts []report.Verdict
	for _, res := range rep.Results() {
		verdicts = append(verdicts, res.Verdict)
	}
	assert.Equal(t, []report.Verdict{report.VerdictPass, report.VerdictFail, report.VerdictSkipped, report.VerdictError}, verdicts)
	assert.True(t, report.Diff(prev, rep).IsZero())
}
