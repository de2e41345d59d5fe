// Package due implements the due-time engine of spec.md §4.5: given a
// job descriptor and its persisted state, decide the earliest instant
// at which the job becomes eligible to run, and whether that instant
// has been reached. Dependency blocking is decided by internal/runner
// and ongoing claims by internal/lock, not here.
package due

import (
	"time"

	"github.com/mozilla/crontabber/internal/backoff"
	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/store"
)

// DefaultBaseBackoff is the default initial retry delay after a
// failure (spec.md §6 base_backoff_seconds).
const DefaultBaseBackoff = 30 * time.Minute

// DueAt computes the due-at instant for a non-backfill job, per
// spec.md §4.5. state may be nil, meaning no JobState row exists yet.
func DueAt(d *job.Descriptor, state *store.JobState, baseBackoff time.Duration, loc *time.Location) time.Time {
	if state == nil {
		return time.Time{} // due immediately: any "now" is >= the zero time
	}

	if state.LastError != nil {
		delay := backoff.NextDelay(baseBackoff, state.ErrorCount, d.Frequency.Period)
		return state.LastRunTime.Add(delay)
	}

	if state.LastSuccess == nil {
		return time.Time{}
	}

	due := state.LastSuccess.Add(d.Frequency.Period)
	if d.Frequency.Anchor != nil {
		due = AlignToAnchor(due, *d.Frequency.Anchor, loc)
	}
	return due
}

// AlignToAnchor advances t to the next occurrence of the given
// time-of-day anchor, on or after t's calendar day, interpreted in loc.
func AlignToAnchor(t time.Time, anchor time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	anchored := dayStart.Add(anchor)
	if anchored.Before(local) {
		anchored = anchored.AddDate(0, 0, 1)
	}
	return anchored
}

// IsRunnable reports whether a non-backfill job is runnable now, per
// spec.md §4.5(a). force overrides the due-at check. Whether an
// existing ongoing claim blocks the run is decided by lock.Manager's
// ClaimRow, not here: that call is already staleness-aware
// (max_ongoing_age_hours), and deciding it up front here would let a
// crashed invocation's claim block the job forever.
func IsRunnable(dueAt time.Time, now time.Time, force bool) (bool, string) {
	if force {
		return true, ""
	}
	if dueAt.After(now) {
		return false, "not yet due"
	}
	return true, ""
}
