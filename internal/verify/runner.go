package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajramos/keycheck/internal/catalog"
	"github.com/ajramos/keycheck/internal/report"
)

const (
	// DefaultTimeout bounds a single check when no category timeout is set
	DefaultTimeout = 10 * time.Second

	noteTimeout   = "timeout"
	noteCancelled = "cancelled"
)

// Options configures a Runner
type Options struct {
	DefaultTimeout time.Duration
	// Timeouts overrides DefaultTimeout per category
	Timeouts map[catalog.Category]time.Duration
	// Concurrency above 1 enables parallel checks for SessionProvider agents
	Concurrency int
	// Metadata seeds the report metadata; application and url default to the catalog's
	Metadata report.Metadata
	Logger   *log.Logger
	// Clock stamps results; time.Now when nil
	Clock func() time.Time
}

// Runner executes a catalog against an agent and seals the outcome into a report
type Runner struct {
	opts Options
}

// NewRunner creates a runner with the given options
func NewRunner(opts Options) *Runner {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{opts: opts}
}

// SetLogger sets the logger used for per-check diagnostics
func (r *Runner) SetLogger(l *log.Logger) { r.opts.Logger = l }

// TimeoutFor returns the check timeout of a category
func (r *Runner) TimeoutFor(c catalog.Category) time.Duration {
	if d, ok := r.opts.Timeouts[c]; ok && d > 0 {
		return d
	}
	return r.opts.DefaultTimeout
}

// Run checks every definition of cat that f selects, in catalog order, and
// returns the sealed report. Per-definition failures never abort the run.
// When ctx is cancelled, dispatch stops, unfinished definitions are recorded
// as skipped, and the report is returned together with ctx.Err().
func (r *Runner) Run(ctx context.Context, cat *catalog.Catalog, agent Agent, f Filter) (*report.Report, error) {
	if cat == nil {
		return nil, errors.New("run: nil catalog")
	}
	if agent == nil {
		return nil, errors.New("run: nil agent")
	}

	var eligible []catalog.Definition
	var excluded []string
	for d := range cat.Entries() {
		if f.Match(d) {
			eligible = append(eligible, d)
		} else {
			excluded = append(excluded, d.ID())
		}
	}

	meta := r.opts.Metadata
	if meta.Application == "" {
		meta.Application = cat.Meta().Application
	}
	if meta.URL == "" {
		meta.URL = cat.Meta().URL
	}
	if meta.Agent == "" {
		meta.Agent = agentName(agent)
	}
	meta.StartedAt = r.opts.Clock()

	b := report.NewBuilder(cat, eligible, meta)
	b.Exclude(excluded...)
	r.logf("run: %d eligible, %d excluded, agent=%s", len(eligible), len(excluded), meta.Agent)

	provider, parallel := agent.(SessionProvider)
	if parallel && r.opts.Concurrency > 1 && len(eligible) > 1 {
		r.runParallel(ctx, provider, eligible, b)
	} else {
		r.runSequential(ctx, agent, eligible, b)
	}

	// anything left unrecorded was never completed because of cancellation
	now := r.opts.Clock()
	for i, d := range eligible {
		if !b.Recorded(i) {
			r.record(b, i, report.Result{
				DefinitionID: d.ID(),
				Verdict:      report.VerdictSkipped,
				Observation:  noteCancelled,
				Timestamp:    now,
			})
		}
	}
	b.SetFinished(r.opts.Clock())

	rep, err := b.Seal()
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	s := rep.Summary()
	r.logf("run: done total=%d pass=%d fail=%d error=%d skipped=%d", s.Total, s.Pass, s.Fail, s.Error, s.Skipped)
	return rep, ctx.Err()
}

func (r *Runner) runSequential(ctx context.Context, agent Agent, defs []catalog.Definition, b *report.Builder) {
	for i, d := range defs {
		if ctx.Err() != nil {
			return
		}
		r.record(b, i, r.check(ctx, agent, d))
	}
}

// runParallel hands definitions to workers that each own one session. A
// worker whose session cannot be opened leaves the queue to the others; only
// when every worker has failed are the undispatched definitions recorded as
// errors.
func (r *Runner) runParallel(ctx context.Context, provider SessionProvider, defs []catalog.Definition, b *report.Builder) {
	workers := min(r.opts.Concurrency, len(defs))
	jobs := make(chan int)

	var (
		failures atomic.Int32
		openErr  error
		allDown  = make(chan struct{})
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			sess, release, err := provider.NewSession(ctx)
			if err != nil {
				r.logf("run: worker %d: open session: %v", worker, err)
				if int(failures.Add(1)) == workers {
					openErr = err
					close(allDown)
				}
				return
			}
			if release != nil {
				defer release()
			}
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				r.record(b, i, r.check(ctx, sess, defs[i]))
			}
		}(w)
	}

	next := 0
dispatch:
	for ; next < len(defs); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break dispatch
		case <-allDown:
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	select {
	case <-allDown:
		if ctx.Err() != nil {
			// left for Run to mark as cancelled
			return
		}
		now := r.opts.Clock()
		for i := next; i < len(defs); i++ {
			r.record(b, i, report.Result{
				DefinitionID: defs[i].ID(),
				Verdict:      report.VerdictError,
				Observation:  fmt.Errorf("%w: %v", ErrSession, openErr).Error(),
				Timestamp:    now,
			})
		}
	default:
	}
}

type outcome struct {
	obs Observation
	err error
}

// check runs one definition under its category timeout. The agent call runs
// on its own goroutine with a buffered channel, so an agent that ignores ctx
// can finish late without blocking anyone.
func (r *Runner) check(ctx context.Context, agent Agent, d catalog.Definition) report.Result {
	timeout := r.TimeoutFor(d.Category())
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := r.opts.Clock()
	res := report.Result{DefinitionID: d.ID(), Timestamp: started}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("agent panic: %v", p)}
			}
		}()
		obs, err := agent.Check(cctx, d)
		done <- outcome{obs: obs, err: err}
	}()

	select {
	case o := <-done:
		switch {
		case o.err != nil && ctx.Err() != nil:
			res.Verdict, res.Observation = report.VerdictSkipped, noteCancelled
		case o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && cctx.Err() != nil:
			res.Verdict, res.Observation = report.VerdictError, noteTimeout
		case o.err != nil:
			res.Verdict, res.Observation = report.VerdictError, o.err.Error()
		case o.obs.Skipped:
			res.Verdict, res.Observation = report.VerdictSkipped, o.obs.Note
		case o.obs.Succeeded:
			res.Verdict, res.Observation = report.VerdictPass, o.obs.Note
		default:
			res.Verdict, res.Observation = report.VerdictFail, o.obs.Note
		}
	case <-cctx.Done():
		if ctx.Err() != nil {
			res.Verdict, res.Observation = report.VerdictSkipped, noteCancelled
		} else {
			res.Verdict, res.Observation = report.VerdictError, noteTimeout
		}
	}

	res.Duration = r.opts.Clock().Sub(started)
	r.logf("check %s: %s %s (%s)", d.ID(), res.Verdict, res.Observation, res.Duration)
	return res
}

func (r *Runner) record(b *report.Builder, i int, res report.Result) {
	if err := b.Record(i, res); err != nil {
		r.logf("run: record %s: %v", res.DefinitionID, err)
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.opts.Logger != nil {
		r.opts.Logger.Printf(format, args...)
	}
}
