// Package lock implements the two-level mutual exclusion of spec.md
// §4.8: a process-level gate guarding an entire invocation, and
// per-job row claims delegated to the state store's UpsertPreRun.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/mozilla/crontabber/internal/cronerr"
	"github.com/mozilla/crontabber/internal/store"
)

// Manager coordinates the process-level gate over a Store.
type Manager struct {
	store         store.Store
	maxOngoingAge time.Duration
}

// New returns a Manager honouring maxOngoingAge for both lock layers.
func New(s store.Store, maxOngoingAge time.Duration) *Manager {
	return &Manager{store: s, maxOngoingAge: maxOngoingAge}
}

// AcquireProcessGate claims the singleton gate row. On conflict it
// returns a *cronerr.LockHeldError with Level LockProcess; the caller
// exits 3.
func (m *Manager) AcquireProcessGate(ctx context.Context, now time.Time) error {
	err := m.store.AcquireGate(ctx, now, m.maxOngoingAge)
	if errors.Is(err, store.ErrRowLocked) {
		return &cronerr.LockHeldError{Level: cronerr.LockProcess}
	}
	return err
}

// ReleaseProcessGate clears the gate's ongoing marker.
func (m *Manager) ReleaseProcessGate(ctx context.Context) error {
	return m.store.ReleaseGate(ctx)
}

// ClaimRow claims identifier's row for execution. firstRun is used
// only if the row does not yet exist (backfill jobs pass their recorded
// first_run_time, or their first owed date if none is recorded;
// everything else passes now itself).
// On conflict it returns a *cronerr.LockHeldError with Level LockRow;
// the caller exits 2.
func (m *Manager) ClaimRow(ctx context.Context, identifier string, now time.Time, firstRun time.Time, dependsOn []string) error {
	err := m.store.UpsertPreRun(ctx, identifier, now, firstRun, m.maxOngoingAge, dependsOn)
	if errors.Is(err, store.ErrRowLocked) {
		return &cronerr.LockHeldError{Level: cronerr.LockRow, Job: identifier}
	}
	return err
}
