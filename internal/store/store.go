// Package store persists per-job state and the run log, and
// implements the row-level claim used by internal/lock. The interface
// is the single ACID KV-with-transactions contract of spec.md §4.4/§6.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrRowLocked is returned by UpsertPreRun when another invocation
// already holds (or raced to claim) the row's ongoing marker.
var ErrRowLocked = errors.New("row locked by another invocation")

// ErrNotFound is returned by Get when no JobState row exists.
var ErrNotFound = errors.New("job state not found")

// ErrTransient wraps a backing-store fault that is worth a same-process
// retry (a dropped connection, a connection-exception class error) as
// opposed to a genuine lock conflict or data problem.
var ErrTransient = errors.New("transient store fault")

// IsTransient reports whether err is (or wraps) ErrTransient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// FailureDescriptor is the structured fault captured from a job's
// execute call (spec.md §3 JobState.last_error and §7 JobFailure).
type FailureDescriptor struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

// JobState is the mutable, persisted per-job record of spec.md §3.
type JobState struct {
	Identifier    string
	NextRunTime   time.Time
	FirstRunTime  time.Time
	LastRunTime   time.Time
	LastSuccess   *time.Time
	ErrorCount    int
	LastError     *FailureDescriptor
	Ongoing       *time.Time
	DependsOn     []string
}

// RunLogEntry is one append-only row per attempt (spec.md §3 RunLog).
type RunLogEntry struct {
	ID         string
	Identifier string
	Timestamp  time.Time
	Success    bool
	ErrorKind  string
	ErrorMsg   string
	ErrorTrace string
	Duration   time.Duration
	// CorrelationID is a random id generated when the row is written.
	// It is not the attempt_id carried by the runner's structured log
	// lines (internal/logger/tag.Attempt); the two are not linked.
	CorrelationID string
}

// GateState is the singleton process-level lock row of spec.md §4.8.
type GateState struct {
	Ongoing *time.Time
}

// Store is the persistence contract every scheduling decision and
// commit goes through. All five per-job operations are single
// transactions.
type Store interface {
	// Get returns the current state for identifier, or ErrNotFound.
	Get(ctx context.Context, identifier string) (*JobState, error)

	// UpsertPreRun atomically claims identifier for execution. It
	// succeeds if the row is absent, Ongoing is nil, or Ongoing is
	// older than maxOngoingAge. On success it sets Ongoing and
	// LastRunTime to startedAt. On failure to satisfy the predicate
	// it returns ErrRowLocked. If the row does not yet exist,
	// FirstRunTime is set to firstRun (startedAt, unless the caller
	// supplies a different value — backfill jobs pass their calendar
	// origin rather than the raw attempt time).
	UpsertPreRun(ctx context.Context, identifier string, startedAt time.Time, firstRun time.Time, maxOngoingAge time.Duration, dependsOn []string) error

	// CommitSuccess records a successful attempt.
	CommitSuccess(ctx context.Context, identifier string, finishedAt time.Time, nextDue time.Time, duration time.Duration) error

	// CommitFailure records a failed attempt.
	CommitFailure(ctx context.Context, identifier string, finishedAt time.Time, nextDue time.Time, duration time.Duration, failure FailureDescriptor) error

	// Reset deletes the JobState row for identifier. RunLog rows are
	// left intact. A no-op if no row exists.
	Reset(ctx context.Context, identifier string) error

	// EnsureOrigin creates the JobState row for a backfill job on its
	// very first sighting, stamping FirstRunTime and NextRunTime to
	// origin without claiming Ongoing or touching RunLog (spec.md
	// §4.6: "first_run_time is set on the first-ever attempt to the
	// frequency-aligned floor of now"). A no-op if the row already
	// exists, so the origin is fixed exactly once.
	EnsureOrigin(ctx context.Context, identifier string, origin time.Time, dependsOn []string) error

	// RecentLog returns the most recent RunLogEntry for identifier,
	// or ErrNotFound if none exist. Used by --nagios.
	RecentLog(ctx context.Context, identifier string) (*RunLogEntry, error)

	// AllIdentifiers returns every identifier that has a JobState row.
	AllIdentifiers(ctx context.Context) ([]string, error)

	// AcquireGate implements the process-level lock of spec.md §4.8:
	// it atomically claims the singleton gate row, honouring
	// maxOngoingAge the same way UpsertPreRun does. Returns
	// ErrRowLocked if another invocation currently holds it.
	AcquireGate(ctx context.Context, startedAt time.Time, maxOngoingAge time.Duration) error

	// ReleaseGate clears the singleton gate row's ongoing marker.
	ReleaseGate(ctx context.Context) error

	// SessionTimeZone returns the backing store's fixed session time
	// zone, used to interpret anchor_time_of_day (spec.md §9).
	SessionTimeZone() *time.Location

	// Close releases any resources held by the store.
	Close() error
}
