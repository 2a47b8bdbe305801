package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/report"
	"github.com/google/uuid"
)

var (
	// ErrRunNotFound is returned when no run has the requested id
	ErrRunNotFound = errors.New("run not found")
	// ErrNoRuns is returned by Latest on an empty history
	ErrNoRuns = errors.New("no runs recorded")
)

// RunSummary is one row of the run history
type RunSummary struct {
	ID          string         `json:"id"`
	StartedAt   time.Time      `json:"startTime"`
	FinishedAt  time.Time      `json:"endTime"`
	Application string         `json:"application,omitempty"`
	Agent       string         `json:"agent,omitempty"`
	Summary     report.Summary `json:"summary"`
	Status      report.Status  `json:"status"`
}

// RunStore persists sealed reports together with a snapshot of the
// definitions they were checked against
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new run store
func NewRunStore(store *Store) *RunStore {
	return &RunStore{
		db: store.DB(),
	}
}

// Save stores rep and returns its run id. The report's own RunID is kept
// when set, otherwise a new one is generated.
func (s *RunStore) Save(ctx context.Context, rep *report.Report) (string, error) {
	if rep == nil {
		return "", fmt.Errorf("nil report")
	}
	meta := rep.Metadata()
	id := strings.TrimSpace(meta.RunID)
	if id == "" {
		id = uuid.New().String()
	}

	snapshot, err := snapshotCatalog(rep)
	if err != nil {
		return "", err
	}
	sum := rep.Summary()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, application, url, platform, browser, agent,
			catalog_yaml, total_count, pass_count, fail_count, skipped_count, error_count, pass_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, unixNano(meta.StartedAt), unixNano(meta.FinishedAt), meta.Application, meta.URL,
		meta.Platform, meta.Browser, meta.Agent, string(snapshot),
		sum.Total, sum.Pass, sum.Fail, sum.Skipped, sum.Error, sum.PassRate)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	for i, r := range rep.Results() {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO results (run_id, position, definition_id, verdict, observation, checked_at, duration_ns)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, r.DefinitionID, string(r.Verdict), r.Observation, unixNano(r.Timestamp), int64(r.Duration))
		if err != nil {
			return "", fmt.Errorf("failed to save result %q: %w", r.DefinitionID, err)
		}
	}
	for _, ex := range rep.Excluded() {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO run_exclusions (run_id, definition_id) VALUES (?, ?)`, id, ex)
		if err != nil {
			return "", fmt.Errorf("failed to save exclusion %q: %w", ex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return id, nil
}

// List returns the most recent runs first. A limit <= 0 returns all runs.
func (s *RunStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, application, agent,
			total_count, pass_count, fail_count, skipped_count, error_count, pass_rate
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			run              RunSummary
			started, finished int64
		)
		err := rows.Scan(&run.ID, &started, &finished, &run.Application, &run.Agent,
			&run.Summary.Total, &run.Summary.Pass, &run.Summary.Fail, &run.Summary.Skipped,
			&run.Summary.Error, &run.Summary.PassRate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt = fromUnixNano(started)
		run.FinishedAt = fromUnixNano(finished)
		run.Status = report.StatusFor(run.Summary.PassRate)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Load rebuilds the report stored under runID
func (s *RunStore) Load(ctx context.Context, runID string) (*report.Report, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	var (
		meta              report.Metadata
		started, finished int64
		snapshot          string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, application, url, platform, browser, agent, catalog_yaml
		FROM runs WHERE id = ?`, runID).Scan(
		&meta.RunID, &started, &finished, &meta.Application, &meta.URL,
		&meta.Platform, &meta.Browser, &meta.Agent, &snapshot)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	meta.StartedAt = fromUnixNano(started)
	meta.FinishedAt = fromUnixNano(finished)

	cat, err := catalog.Parse([]byte(snapshot))
	if err != nil {
		return nil, fmt.Errorf("run %s: stored catalog: %w", runID, err)
	}

	results, err := s.loadResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	excluded, err := s.loadExclusions(ctx, runID)
	if err != nil {
		return nil, err
	}
	return report.Rebuild(cat, meta, results, excluded)
}

// Latest returns the most recently started run
func (s *RunStore) Latest(ctx context.Context) (*report.Report, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return s.Load(ctx, id)
}

// Delete removes a run and its results
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	n, err := s.deleteWhere(ctx, `id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Prune keeps the newest keep runs and deletes the rest. It returns the
// number of runs removed.
func (s *RunStore) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}
	n, err := s.deleteWhere(ctx,
		`id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return n, nil
}

// deleteWhere removes the runs matching cond with their child rows. Children
// are deleted explicitly since foreign_keys is a per-connection pragma.
func (s *RunStore) deleteWhere(ctx context.Context, cond string, args ...any) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	sub := `SELECT id FROM runs WHERE ` + cond
	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE run_id IN (`+sub+`)`, args...); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_exclusions WHERE run_id IN (`+sub+`)`, args...); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE `+cond, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RunStore) loadResults(ctx context.Context, runID string) ([]report.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition_id, verdict, observation, checked_at, duration_ns
		FROM results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []report.Result
	for rows.Next() {
		var (
			r        report.Result
			verdict  string
			checked  int64
			duration int64
		)
		if err := rows.Scan(&r.DefinitionID, &verdict, &r.Observation, &checked, &duration); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		v, err := report.ParseVerdict(verdict)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		r.Verdict = v
		r.Timestamp = fromUnixNano(checked)
		r.Duration = time.Duration(duration)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *RunStore) loadExclusions(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition_id FROM run_exclusions WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get exclusions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan exclusion: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// snapshotCatalog encodes the definitions a report was checked against
func snapshotCatalog(rep *report.Report) ([]byte, error) {
	var records []catalog.Record
	for def := range rep.Entries() {
		records = append(records, def.Record())
	}
	meta := rep.Metadata()
	cat, err := catalog.LoadWithMeta(catalog.Meta{Application: meta.Application, URL: meta.URL}, records)
	if err != nil {
		return nil, fmt.Errorf("snapshot catalog: %w", err)
	}
	data, err := catalog.Marshal(cat)
	if err != nil {
		return nil, fmt.Errorf("snapshot catalog: %w", err)
	}
	return data, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
