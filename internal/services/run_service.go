package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ajramos/keycheck/internal/agent"
	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/db"
	"github.com/ajramos/keycheck/internal/notify"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/verify"
)

// RunServiceImpl implements RunService. It runs one verification at a time.
type RunServiceImpl struct {
	history *db.RunStore
	deps    agent.Deps
	logger  *log.Logger
	mu      sync.Mutex
}

// NewRunService creates a run service. history may be nil when run
// history is disabled.
func NewRunService(history *db.RunStore, deps agent.Deps, logger *log.Logger) *RunServiceImpl {
	if deps.History == nil {
		deps.History = history
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &RunServiceImpl{history: history, deps: deps, logger: logger}
}

// Run loads the catalog, builds the configured agent, runs the checks,
// persists the report and posts the Slack summary. A cancelled ctx still
// yields the partial outcome together with ctx.Err().
func (s *RunServiceImpl) Run(ctx context.Context, cfg *config.Config, f verify.Filter) (*RunOutcome, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidInput)
	}
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	cat, err := cfg.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	opts, err := cfg.RunnerOptions(s.logger)
	if err != nil {
		return nil, err
	}
	a, stop, err := agent.NewFromConfig(ctx, cfg, s.deps)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	defer stop()

	var prev *report.Report
	if s.history != nil {
		prev, err = s.history.Latest(ctx)
		if err != nil && !errors.Is(err, db.ErrNoRuns) {
			s.logf("load previous run: %v", err)
		}
	}

	s.logf("run: %d definitions, agent %s, filter %+v", cat.Len(), cfg.Agent.Kind, f)
	rep, runErr := verify.NewRunner(opts).Run(ctx, cat, a, f)
	if rep == nil {
		return nil, runErr
	}
	out := &RunOutcome{Report: rep}

	// persistence outlives a cancelled run
	persistCtx := context.WithoutCancel(ctx)
	if s.history != nil {
		id, err := s.history.Save(persistCtx, rep)
		if err != nil {
			s.logf("save run: %v", err)
		} else {
			out.RunID = id
		}
		if prev != nil {
			d := report.Diff(prev, rep)
			out.Delta = &d
		}
	}

	sent, err := notify.NewSlackNotifier(cfg.Slack).Notify(persistCtx, rep, out.Delta)
	if err != nil {
		s.logf("slack: %v", err)
	}
	out.Notified = sent

	sum := rep.Summary()
	s.logf("run %s done: %d pass, %d fail, %d error, %d skipped", out.RunID, sum.Pass, sum.Fail, sum.Error, sum.Skipped)
	return out, runErr
}

func (s *RunServiceImpl) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// HistoryServiceImpl implements HistoryService on top of the run store
type HistoryServiceImpl struct {
	store *db.RunStore
}

// NewHistoryService creates a history service; a nil store disables it
func NewHistoryService(store *db.RunStore) *HistoryServiceImpl {
	return &HistoryServiceImpl{store: store}
}

// ListRuns returns the newest runs first
func (h *HistoryServiceImpl) ListRuns(ctx context.Context, limit int) ([]db.RunSummary, error) {
	if h.store == nil {
		return nil, ErrHistoryDisabled
	}
	return h.store.List(ctx, limit)
}

// LoadRun returns one persisted report
func (h *HistoryServiceImpl) LoadRun(ctx context.Context, runID string) (*report.Report, error) {
	if h.store == nil {
		return nil, ErrHistoryDisabled
	}
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("%w: empty run id", ErrInvalidInput)
	}
	return h.store.Load(ctx, runID)
}

// LatestRun returns the most recent persisted report
func (h *HistoryServiceImpl) LatestRun(ctx context.Context) (*report.Report, error) {
	if h.store == nil {
		return nil, ErrHistoryDisabled
	}
	return h.store.Latest(ctx)
}

// CompareRuns diffs two persisted runs. An empty prevID selects the run
// before nextID; an empty nextID selects the latest run.
func (h *HistoryServiceImpl) CompareRuns(ctx context.Context, prevID, nextID string) (report.Delta, error) {
	if h.store == nil {
		return report.Delta{}, ErrHistoryDisabled
	}
	if nextID == "" || prevID == "" {
		runs, err := h.store.List(ctx, 0)
		if err != nil {
			return report.Delta{}, err
		}
		if nextID == "" {
			if len(runs) == 0 {
				return report.Delta{}, db.ErrNoRuns
			}
			nextID = runs[0].ID
		}
		if prevID == "" {
			for i, r := range runs {
				if r.ID == nextID && i+1 < len(runs) {
					prevID = runs[i+1].ID
					break
				}
			}
			if prevID == "" {
				return report.Delta{}, fmt.Errorf("%w: no run before %s", db.ErrRunNotFound, nextID)
			}
		}
	}

	prev, err := h.store.Load(ctx, prevID)
	if err != nil {
		return report.Delta{}, err
	}
	next, err := h.store.Load(ctx, nextID)
	if err != nil {
		return report.Delta{}, err
	}
	return report.Diff(prev, next), nil
}

// PruneRuns keeps the newest keep runs
func (h *HistoryServiceImpl) PruneRuns(ctx context.Context, keep int) (int, error) {
	if h.store == nil {
		return 0, ErrHistoryDisabled
	}
	if keep < 0 {
		return 0, fmt.Errorf("%w: keep must not be negative", ErrInvalidInput)
	}
	return h.store.Prune(ctx, keep)
}
