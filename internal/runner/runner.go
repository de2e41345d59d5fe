// Package runner orchestrates one invocation of the scheduler: acquire
// the process lock, walk jobs in topological order, evaluate due-time
// and dependency state, execute, and commit outcomes. This is the
// algorithm of spec.md §4.7, in its exact design order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/mozilla/crontabber/internal/backfill"
	"github.com/mozilla/crontabber/internal/backoff"
	"github.com/mozilla/crontabber/internal/cronerr"
	"github.com/mozilla/crontabber/internal/due"
	"github.com/mozilla/crontabber/internal/graph"
	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/lock"
	"github.com/mozilla/crontabber/internal/logger"
	"github.com/mozilla/crontabber/internal/logger/tag"
	"github.com/mozilla/crontabber/internal/registry"
	"github.com/mozilla/crontabber/internal/store"
)

// commitRetryAttempts/commitRetryBase/commitRetryCap bound the
// same-invocation retry of a commit that failed on a transient store
// fault (a dropped connection), per internal/backoff.Retry.
const (
	commitRetryAttempts = 3
	commitRetryBase     = 100 * time.Millisecond
	commitRetryCap      = 2 * time.Second
)

// Options restrict a single invocation, mapping to the --job and
// --force CLI flags of spec.md §6.
type Options struct {
	// JobFilter, if non-empty, restricts the walk to this identifier.
	JobFilter string
	// Force bypasses due-time and dependency-failure checks for the
	// filtered job. Never applies to backfill jobs (spec.md §4.5/§4.6).
	Force bool
}

// StepOutcome records what happened to one job during a walk.
type StepOutcome struct {
	Identifier string
	Skipped    bool
	SkipReason string
	Failed     bool
	Err        error
	DatesRun   []time.Time // non-empty only for backfill jobs
}

// Result summarizes a completed invocation.
type Result struct {
	Steps []StepOutcome
}

// AnyFailures reports whether any attempted job failed.
func (r *Result) AnyFailures() bool {
	for _, s := range r.Steps {
		if s.Failed {
			return true
		}
	}
	return false
}

// Runner ties the registry, dependency graph, state store, and lock
// manager together to execute one invocation.
type Runner struct {
	Store       store.Store
	Lock        *lock.Manager
	Registry    *registry.Registry
	Graph       *graph.Graph
	BaseBackoff time.Duration
}

// New builds a Runner from the already-resolved registry and graph.
func New(s store.Store, lockMgr *lock.Manager, reg *registry.Registry, g *graph.Graph, baseBackoff time.Duration) *Runner {
	return &Runner{Store: s, Lock: lockMgr, Registry: reg, Graph: g, BaseBackoff: baseBackoff}
}

// Run executes algorithm steps 1-5 of spec.md §4.7. now is the
// invocation's wall-clock instant, threaded through explicitly so the
// whole walk is reproducible in tests.
func (r *Runner) Run(ctx context.Context, now time.Time) (*Result, error) {
	return r.run(ctx, now, Options{})
}

// RunWithOptions is Run with --job/--force applied.
func (r *Runner) RunWithOptions(ctx context.Context, now time.Time, opts Options) (*Result, error) {
	return r.run(ctx, now, opts)
}

func (r *Runner) run(ctx context.Context, now time.Time, opts Options) (*Result, error) {
	if err := r.Lock.AcquireProcessGate(ctx, now); err != nil {
		return nil, err
	}
	defer func() {
		if err := r.Lock.ReleaseProcessGate(ctx); err != nil {
			logger.Error(ctx, "failed to release process gate", tag.Error(err))
		}
	}()

	result := &Result{}
	loc := r.Store.SessionTimeZone()

	for _, id := range r.Graph.TopoOrder() {
		d, ok := r.Registry.Get(id)
		if !ok {
			continue
		}

		selected := opts.JobFilter == "" || opts.JobFilter == id
		force := opts.Force && selected && !d.IsBackfill

		if opts.JobFilter != "" && !selected {
			result.Steps = append(result.Steps, StepOutcome{Identifier: id, Skipped: true, SkipReason: "not selected by --job"})
			continue
		}

		state, err := r.getState(ctx, id)
		if err != nil {
			return result, &cronerr.StoreError{Op: "get " + id, Err: err}
		}

		if blocker, blocked := r.blockedByDependency(ctx, d); blocked && !force {
			logger.Info(ctx, "skipping job blocked by failed dependency", tag.Job(id))
			result.Steps = append(result.Steps, StepOutcome{
				Identifier: id, Skipped: true,
				SkipReason: (&cronerr.BlockedByFailure{Job: id, Dependency: blocker}).Error(),
			})
			continue
		}

		// A lost row-level claim (LockHeld/Row) aborts the entire walk
		// immediately (spec.md §4.7 step 3d): unlike a job failure, it
		// is not local to this one job.
		outcome, err := r.step(ctx, d, state, now, loc, force)
		if err != nil {
			return result, err
		}
		if outcome != nil {
			result.Steps = append(result.Steps, *outcome)
		}
	}

	return result, nil
}

func (r *Runner) getState(ctx context.Context, id string) (*store.JobState, error) {
	s, err := r.Store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// blockedByDependency implements step 3b: any dependency with a
// non-null last_error blocks this job, as a skip, not an error.
func (r *Runner) blockedByDependency(ctx context.Context, d *job.Descriptor) (string, bool) {
	for dep := range d.DependsOn {
		depState, err := r.getState(ctx, dep)
		if err != nil {
			continue
		}
		if depState != nil && depState.LastError != nil {
			return dep, true
		}
	}
	return "", false
}

func (r *Runner) step(ctx context.Context, d *job.Descriptor, state *store.JobState, now time.Time, loc *time.Location, force bool) (*StepOutcome, error) {
	if d.IsBackfill {
		return r.stepBackfill(ctx, d, state, now, loc)
	}
	return r.stepNormal(ctx, d, state, now, loc, force)
}

func (r *Runner) stepNormal(ctx context.Context, d *job.Descriptor, state *store.JobState, now time.Time, loc *time.Location, force bool) (*StepOutcome, error) {
	dueAt := due.DueAt(d, state, r.BaseBackoff, loc)
	runnable, reason := due.IsRunnable(dueAt, now, force)
	if !runnable {
		return &StepOutcome{Identifier: d.Identifier, Skipped: true, SkipReason: reason}, nil
	}

	if err := r.Lock.ClaimRow(ctx, d.Identifier, now, now, d.DependsOnSlice()); err != nil {
		return nil, err
	}

	attemptID := uuid.NewString()
	logger.Info(ctx, "job claimed", tag.Job(d.Identifier), tag.Attempt(attemptID))

	started := time.Now()
	execErr := runJob(ctx, d.App, nil)
	duration := time.Since(started)
	finishedAt := now

	if execErr != nil {
		nextDue := finishedAt.Add(r.BaseBackoff)
		failure := toFailureDescriptor(d.Identifier, execErr)
		if err := r.commitFailure(ctx, d.Identifier, finishedAt, nextDue, duration, failure); err != nil {
			return nil, &cronerr.StoreError{Op: "commit_failure " + d.Identifier, Err: err}
		}
		logger.Error(ctx, "job failed", tag.Job(d.Identifier), tag.Attempt(attemptID), tag.Error(execErr))
		return &StepOutcome{Identifier: d.Identifier, Failed: true, Err: execErr}, nil
	}

	nextDue := finishedAt.Add(d.Frequency.Period)
	if d.Frequency.Anchor != nil {
		nextDue = due.AlignToAnchor(nextDue, *d.Frequency.Anchor, loc)
	}
	if err := r.commitSuccess(ctx, d.Identifier, finishedAt, nextDue, duration); err != nil {
		return nil, &cronerr.StoreError{Op: "commit_success " + d.Identifier, Err: err}
	}
	logger.Info(ctx, "job succeeded", tag.Job(d.Identifier), tag.Attempt(attemptID))
	return &StepOutcome{Identifier: d.Identifier}, nil
}

func (r *Runner) stepBackfill(ctx context.Context, d *job.Descriptor, state *store.JobState, now time.Time, loc *time.Location) (*StepOutcome, error) {
	if state == nil {
		// First-ever sighting of this backfill job: fix its calendar
		// origin now, even though nothing is owed yet (the floor
		// period hasn't elapsed). Without persisting this, the origin
		// would be recomputed from "now" on every future invocation
		// and no period would ever appear elapsed.
		origin := backfill.AlignedFloor(now, d.Frequency.Period, loc)
		if err := r.Store.EnsureOrigin(ctx, d.Identifier, origin, d.DependsOnSlice()); err != nil {
			return nil, &cronerr.StoreError{Op: "ensure_origin " + d.Identifier, Err: err}
		}
		state = &store.JobState{Identifier: d.Identifier, FirstRunTime: origin, NextRunTime: origin}
	}

	owed := backfill.OwedDates(d, state, now, loc)
	if len(owed) == 0 {
		return &StepOutcome{Identifier: d.Identifier, Skipped: true, SkipReason: "no owed dates"}, nil
	}

	firstRun := owed[0]
	if state != nil && !state.FirstRunTime.IsZero() {
		firstRun = state.FirstRunTime
	}
	if err := r.Lock.ClaimRow(ctx, d.Identifier, now, firstRun, d.DependsOnSlice()); err != nil {
		return nil, err
	}

	outcome := &StepOutcome{Identifier: d.Identifier}
	for _, date := range owed {
		attemptID := uuid.NewString()
		logger.Info(ctx, "backfill date claimed", tag.Job(d.Identifier), tag.Attempt(attemptID), tag.Date(date.String()))

		started := time.Now()
		dateCopy := date
		execErr := runJob(ctx, d.App, &dateCopy)
		duration := time.Since(started)
		finishedAt := time.Now()

		if execErr != nil {
			failure := toFailureDescriptor(d.Identifier, execErr)
			// the same date is retried on the next invocation: next_due stays unchanged
			if err := r.commitFailure(ctx, d.Identifier, finishedAt, date, duration, failure); err != nil {
				return nil, &cronerr.StoreError{Op: "commit_failure " + d.Identifier, Err: err}
			}
			logger.Error(ctx, "backfill date failed", tag.Job(d.Identifier), tag.Attempt(attemptID), tag.Date(date.String()), tag.Error(execErr))
			outcome.Failed = true
			outcome.Err = execErr
			outcome.DatesRun = append(outcome.DatesRun, date)
			return outcome, nil
		}

		nextDue := date.Add(d.Frequency.Period)
		if err := r.commitSuccess(ctx, d.Identifier, finishedAt, nextDue, duration); err != nil {
			return nil, &cronerr.StoreError{Op: "commit_success " + d.Identifier, Err: err}
		}
		outcome.DatesRun = append(outcome.DatesRun, date)
	}

	return outcome, nil
}

// commitSuccess and commitFailure retry a transient store fault
// within this invocation (internal/backoff.Retry), surfacing only a
// persistent failure to the caller.
func (r *Runner) commitSuccess(ctx context.Context, identifier string, finishedAt, nextDue time.Time, duration time.Duration) error {
	return backoff.Retry(ctx, func(ctx context.Context) error {
		return r.Store.CommitSuccess(ctx, identifier, finishedAt, nextDue, duration)
	}, commitRetryBase, commitRetryCap, commitRetryAttempts, store.IsTransient)
}

func (r *Runner) commitFailure(ctx context.Context, identifier string, finishedAt, nextDue time.Time, duration time.Duration, failure store.FailureDescriptor) error {
	return backoff.Retry(ctx, func(ctx context.Context) error {
		return r.Store.CommitFailure(ctx, identifier, finishedAt, nextDue, duration, failure)
	}, commitRetryBase, commitRetryCap, commitRetryAttempts, store.IsTransient)
}

// runJob invokes app.Execute, converting a panic into an error the
// same way the teacher's digraph/scheduler.go recovers node panics, so
// a single job's fault never crosses the runner's per-job boundary.
func runJob(ctx context.Context, app job.App, date *time.Time) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return app.Execute(ctx, date)
}

func toFailureDescriptor(identifier string, err error) store.FailureDescriptor {
	return store.FailureDescriptor{
		Kind:      fmt.Sprintf("%T", err),
		Message:   err.Error(),
		Traceback: fmt.Sprintf("job %s: %+v", identifier, err),
	}
}
