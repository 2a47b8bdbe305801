package services

import (
	"context"

	"github.com/ajramos/keycheck/internal/config"
	"github.com/ajramos/keycheck/internal/db"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/ajramos/keycheck/internal/verify"
)

// RunService executes verification runs end to end
type RunService interface {
	Run(ctx context.Context, cfg *config.Config, f verify.Filter) (*RunOutcome, error)
}

// HistoryService reads persisted runs
type HistoryService interface {
	ListRuns(ctx context.Context, limit int) ([]db.RunSummary, error)
	LoadRun(ctx context.Context, runID string) (*report.Report, error)
	LatestRun(ctx context.Context) (*report.Report, error)
	CompareRuns(ctx context.Context, prevID, nextID string) (report.Delta, error)
	PruneRuns(ctx context.Context, keep int) (int, error)
}

// RunOutcome is the result of one run
type RunOutcome struct {
	Report *report.Report
	// RunID is set when the run was persisted
	RunID string
	// Delta against the previous persisted run, nil without history
	Delta *report.Delta
	// Notified reports whether a Slack summary was posted
	Notified bool
}
