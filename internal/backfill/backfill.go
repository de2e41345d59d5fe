// Package backfill implements the backfill engine of spec.md §4.6: for
// a backfillable job, compute the ordered list of calendar dates still
// owed and invoke once per date, committing between calls.
package backfill

import (
	"time"

	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/store"
)

// AlignedFloor returns the frequency-aligned floor of now: the latest
// instant at or before now that is a whole number of periods after
// the Unix epoch, in loc. Used to set first_run_time on a backfill
// job's first-ever attempt.
func AlignedFloor(now time.Time, period time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, loc)
	elapsed := local.Sub(epoch)
	periods := elapsed / period
	return epoch.Add(periods * period)
}

// OwedDates returns the ordered list of calendar dates still owed for
// a backfill job as of now: every period boundary from the job's
// origin (first_run_time, or next_run_time once any date has
// succeeded) whose period has fully elapsed by now (spec.md §4.6).
//
// When state is nil (no JobState row exists yet — this invocation
// will be the first-ever attempt), the origin is the frequency-aligned
// floor of now, for which no period has yet elapsed: OwedDates
// correctly returns an empty slice, and the caller is responsible for
// persisting that floor as FirstRunTime (the runner does so with
// store.EnsureOrigin).
func OwedDates(d *job.Descriptor, state *store.JobState, now time.Time, loc *time.Location) []time.Time {
	period := d.Frequency.Period

	var origin time.Time
	switch {
	case state == nil || state.FirstRunTime.IsZero():
		origin = AlignedFloor(now, period, loc)
	case !state.NextRunTime.IsZero():
		origin = state.NextRunTime
	default:
		origin = state.FirstRunTime
	}

	var dates []time.Time
	for next := origin; !next.Add(period).After(now); next = next.Add(period) {
		dates = append(dates, next)
	}
	return dates
}
