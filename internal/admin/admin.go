// Package admin implements the out-of-band operations of spec.md §4.9:
// listing configured jobs, resetting a job's persisted state, running
// a single job on demand, validating configuration, and the Nagios
// health summary. None of these go through internal/runner's walk
// directly except RunOne, which delegates to it with a --job filter.
package admin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mozilla/crontabber/internal/cronerr"
	"github.com/mozilla/crontabber/internal/graph"
	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/logger"
	"github.com/mozilla/crontabber/internal/logger/tag"
	"github.com/mozilla/crontabber/internal/registry"
	"github.com/mozilla/crontabber/internal/runner"
	"github.com/mozilla/crontabber/internal/store"
)

// JobSummary is one row of --list output.
type JobSummary struct {
	Identifier string   `json:"identifier"`
	ClassPath  string   `json:"class_path"`
	Frequency  string   `json:"frequency"`
	DependsOn  []string `json:"depends_on"`
	IsBackfill bool     `json:"is_backfill"`
	HasState   bool     `json:"has_state"`
	LastError  string   `json:"last_error,omitempty"`
}

// List returns one JobSummary per configured job, in topological
// order, annotated with whatever state currently exists for it.
func List(ctx context.Context, s store.Store, reg *registry.Registry, g *graph.Graph) ([]JobSummary, error) {
	out := make([]JobSummary, 0, len(reg.Descriptors()))
	for _, id := range g.TopoOrder() {
		d, ok := reg.Get(id)
		if !ok {
			continue
		}
		summary := JobSummary{
			Identifier: d.Identifier,
			ClassPath:  d.ClassPath,
			Frequency:  d.Frequency.String(),
			DependsOn:  d.DependsOnSlice(),
			IsBackfill: d.IsBackfill,
		}

		state, err := s.Get(ctx, id)
		switch {
		case err == nil:
			summary.HasState = true
			if state.LastError != nil {
				summary.LastError = state.LastError.Message
			}
		case cronerr.IsConfigError(err):
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// ResetJob deletes the persisted state for identifier, per spec.md
// §4.9. It is a no-op if identifier has no JobState row, and an error
// if identifier is not a configured job at all.
func ResetJob(ctx context.Context, s store.Store, reg *registry.Registry, identifier string) error {
	if _, ok := reg.Get(identifier); !ok {
		return fmt.Errorf("reset-job: %q is not a configured job", identifier)
	}
	return s.Reset(ctx, identifier)
}

// RunOne runs a single job by identifier, optionally with --force,
// through the runner's normal walk restricted to that identifier.
// Backfill jobs refuse --job/--force outright (spec.md §4.6/§4.9):
// running one out of sequence would break the exactly-once-per-date
// contract.
func RunOne(ctx context.Context, r *runner.Runner, reg *registry.Registry, now time.Time, identifier string, force bool) (*runner.Result, error) {
	d, ok := reg.Get(identifier)
	if !ok {
		return nil, fmt.Errorf("--job: %q is not a configured job", identifier)
	}
	if d.IsBackfill {
		return nil, fmt.Errorf("--job/--force: %q is a backfill job and cannot be run out of sequence", identifier)
	}
	return r.RunWithOptions(ctx, now, runner.Options{JobFilter: identifier, Force: force})
}

// ConfigTest validates the registry and dependency graph that were
// already built from the configured job list. It exists mainly so the
// caller has a stable, Nagios-compatible exit-code contract to wire to
// --configtest: spec.md §4.9 defines the exit code as the count of
// misconfigured jobs, so by the time this runs, registry.Build/
// graph.New have already either succeeded (0 misconfigured jobs) or
// failed fatally at the first bad line (the CLI surface exits 1 for
// such a ConfigError).
func ConfigTest(reg *registry.Registry, g *graph.Graph) (misconfigured int, err error) {
	if reg == nil || g == nil {
		return 1, fmt.Errorf("configtest: registry or graph failed to build")
	}
	return 0, nil
}

// NagiosStatus is the outcome level of --nagios, per spec.md §4.9.
type NagiosStatus int

const (
	NagiosOK NagiosStatus = iota
	NagiosWarning
	NagiosCritical
)

func (s NagiosStatus) String() string {
	switch s {
	case NagiosOK:
		return "OK"
	case NagiosWarning:
		return "WARNING"
	default:
		return "CRITICAL"
	}
}

// ExitCode maps a NagiosStatus to the --nagios exit code (0/1/2).
func (s NagiosStatus) ExitCode() int { return int(s) }

// Nagios consults RunLog for the most recent attempt of every
// configured job. Per spec.md §4.9: exit 0 if none failed; exit 1 if
// only backfill jobs failed and each has failed at most once (its
// current error_count); otherwise exit 2. The returned string is the
// single-line summary, items joined by "; ".
func Nagios(ctx context.Context, s store.Store, reg *registry.Registry) (NagiosStatus, string) {
	requestID := uuid.NewString()
	logger.Debug(ctx, "nagios check starting", tag.Attempt(requestID))

	status := NagiosOK
	var items []string

	ids := make([]string, 0, len(reg.Descriptors()))
	for id := range reg.Descriptors() {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		d, _ := reg.Get(id)
		entry, err := s.RecentLog(ctx, id)
		if err != nil || entry == nil || entry.Success {
			continue
		}

		items = append(items, fmt.Sprintf("%s: %s", id, entry.ErrorMsg))
		errorCount := 1
		if state, err := s.Get(ctx, id); err == nil && state != nil {
			errorCount = state.ErrorCount
		}
		level := escalate(d, errorCount)
		if level > status {
			status = level
		}
	}

	logger.Debug(ctx, "nagios check finished", tag.Attempt(requestID), tag.ExitCode(status.ExitCode()))

	if len(items) == 0 {
		return NagiosOK, "OK: all jobs healthy"
	}
	return status, fmt.Sprintf("%s: %s", status, strings.Join(items, "; "))
}

// escalate decides a single failing job's contribution to the overall
// nagios status: a non-backfill failure is always CRITICAL; a backfill
// failure is only WARNING if it has failed at most once so far.
func escalate(d *job.Descriptor, errorCount int) NagiosStatus {
	if d == nil || !d.IsBackfill {
		return NagiosCritical
	}
	if errorCount <= 1 {
		return NagiosWarning
	}
	return NagiosCritical
}
