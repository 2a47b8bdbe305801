package agent

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/verify"
	"gopkg.in/yaml.v3"
)

//go:embed recordings/slashy.yaml
var slashyRecording []byte

// Recorded statuses
const (
	StatusPass     = "PASS"
	StatusFail     = "FAIL"
	StatusPartial  = "PARTIAL"
	StatusUntested = "UNTESTED"
	StatusError    = "ERROR"
)

// Recording is a set of observations captured during an earlier session
type Recording struct {
	Application  string                `yaml:"application,omitempty"`
	URL          string                `yaml:"url,omitempty"`
	Platform     string                `yaml:"platform,omitempty"`
	Browser      string                `yaml:"browser,omitempty"`
	RecordedAt   time.Time             `yaml:"recordedAt,omitempty"`
	Observations []RecordedObservation `yaml:"observations"`
}

// RecordedObservation identifies a definition either by id or by keys and
// context
type RecordedObservation struct {
	ID      string `yaml:"id,omitempty"`
	Keys    string `yaml:"keys,omitempty"`
	Context string `yaml:"context,omitempty"`
	Status  string `yaml:"status"`
	Notes   string `yaml:"notes,omitempty"`
}

// ParseRecording decodes a YAML recording
func ParseRecording(data []byte) (*Recording, error) {
	var rec Recording
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse recording: %w", err)
	}
	return &rec, nil
}

// LoadRecording reads a YAML recording from disk
func LoadRecording(path string) (*Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	rec, err := ParseRecording(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// SlashyRecording returns the bundled recording of the Slashy Mail session
func SlashyRecording() *Recording {
	rec, err := ParseRecording(slashyRecording)
	if err != nil {
		panic(fmt.Sprintf("bundled recording: %v", err))
	}
	return rec
}

// Replay answers checks from a recording. It keeps no per-check state, so
// every session is the replay itself.
type Replay struct {
	name    string
	entries map[string]RecordedObservation
}

// NewReplay indexes rec by definition id. Entries with an unparseable key
// combination or an unknown status are rejected.
func NewReplay(rec *Recording) (*Replay, error) {
	r := &Replay{name: "replay", entries: make(map[string]RecordedObservation)}
	if rec == nil {
		return r, nil
	}
	for i, obs := range rec.Observations {
		id, err := observationID(obs)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		status := strings.ToUpper(strings.TrimSpace(obs.Status))
		switch status {
		case StatusPass, StatusFail, StatusPartial, StatusUntested, StatusError:
		case "SKIPPED":
			status = StatusUntested
		default:
			return nil, fmt.Errorf("observation %d (%s): unknown status %q", i, id, obs.Status)
		}
		obs.Status = status
		r.entries[id] = obs
	}
	return r, nil
}

// ReplayFromReport replays the verdicts of an earlier report
func ReplayFromReport(rep *report.Report) *Replay {
	r := &Replay{name: "replay", entries: make(map[string]RecordedObservation)}
	if rep == nil {
		return r
	}
	if id := rep.Metadata().RunID; id != "" {
		r.name = "replay:" + id
	}
	for _, res := range rep.Results() {
		status := StatusUntested
		switch res.Verdict {
		case report.VerdictPass:
			status = StatusPass
		case report.VerdictFail:
			status = StatusFail
		case report.VerdictError:
			status = StatusError
		}
		r.entries[res.DefinitionID] = RecordedObservation{ID: res.DefinitionID, Status: status, Notes: res.Observation}
	}
	return r
}

func observationID(obs RecordedObservation) (string, error) {
	if id := strings.TrimSpace(obs.ID); id != "" {
		return catalog.NormalizeID(id), nil
	}
	keys, err := catalog.ParseKeyCombination(obs.Keys)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(obs.Context) == "" {
		return "", fmt.Errorf("%s: context is required without an id", obs.Keys)
	}
	return catalog.DefinitionID(keys, obs.Context), nil
}

// Name implements verify.Named
func (r *Replay) Name() string { return r.name }

// Len returns the number of recorded observations
func (r *Replay) Len() int { return len(r.entries) }

// Check implements verify.Agent
func (r *Replay) Check(ctx context.Context, def catalog.Definition) (verify.Observation, error) {
	if err := ctx.Err(); err != nil {
		return verify.Observation{}, err
	}
	obs, ok := r.entries[def.ID()]
	if !ok {
		return verify.Observation{Skipped: true, Note: "no recorded observation"}, nil
	}
	switch obs.Status {
	case StatusPass:
		return verify.Observation{Succeeded: true, Note: obs.Notes}, nil
	case StatusPartial:
		return verify.Observation{Note: strings.TrimSpace("partial: " + obs.Notes)}, nil
	case StatusUntested:
		return verify.Observation{Skipped: true, Note: obs.Notes}, nil
	case StatusError:
		if obs.Notes == "" {
			return verify.Observation{}, verify.ErrTransport
		}
		return verify.Observation{}, fmt.Errorf("%w: %s", verify.ErrTransport, obs.Notes)
	default:
		return verify.Observation{Note: obs.Notes}, nil
	}
}

// NewSession implements verify.SessionProvider
func (r *Replay) NewSession(ctx context.Context) (verify.Agent, func(), error) {
	return r, func() {}, nil
}
