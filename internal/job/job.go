// Package job defines the job contract (spec.md §6) and the immutable
// descriptor the registry resolves configuration lines into.
package job

import (
	"context"
	"sort"
	"time"

	"github.com/mozilla/crontabber/internal/frequency"
)

// App is the contract a job implementation exposes to the runner. For
// non-backfill jobs Execute is called with a nil instant. For backfill
// jobs it is called once per owed calendar date, at day granularity, in
// the store's session time zone.
type App interface {
	Identifier() string
	DependsOn() []string
	IsBackfill() bool
	Execute(ctx context.Context, date *time.Time) error
}

// Loader resolves an opaque class path into an App instance. The core
// treats class paths as opaque keys; materialization is delegated to
// this pluggable interface (spec.md §9). The simplest conforming
// implementation is an explicit map populated at program start — see
// registry.StaticLoader.
type Loader interface {
	Load(classPath string) (App, error)
}

// Descriptor is the immutable, per-invocation record the registry
// produces for each configured job (spec.md §3).
type Descriptor struct {
	Identifier string
	ClassPath  string
	Frequency  frequency.Frequency
	DependsOn  map[string]struct{}
	IsBackfill bool
	App        App
}

// DependsOnSlice returns DependsOn as a deterministically ordered slice,
// for diagnostics and --list output.
func (d *Descriptor) DependsOnSlice() []string {
	out := make([]string, 0, len(d.DependsOn))
	for id := range d.DependsOn {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
