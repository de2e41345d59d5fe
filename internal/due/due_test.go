package due

import (
	"testing"
	"time"

	"github.com/mozilla/crontabber/internal/frequency"
	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/store"
	"github.com/stretchr/testify/assert"
)

func descriptor(period time.Duration, anchor *time.Duration) *job.Descriptor {
	return &job.Descriptor{
		Identifier: "A",
		Frequency:  frequency.Frequency{Period: period, Anchor: anchor},
	}
}

func TestDueAt_NoState(t *testing.T) {
	d := descriptor(5*time.Minute, nil)
	got := DueAt(d, nil, DefaultBaseBackoff, time.UTC)
	assert.True(t, got.IsZero())
}

func TestDueAt_AfterSuccess(t *testing.T) {
	d := descriptor(5*time.Minute, nil)
	success := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	state := &store.JobState{LastSuccess: &success}
	got := DueAt(d, state, DefaultBaseBackoff, time.UTC)
	assert.Equal(t, success.Add(5*time.Minute), got)
}

func TestDueAt_Backoff(t *testing.T) {
	d := descriptor(time.Hour, nil)
	lastRun := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	state := &store.JobState{
		LastRunTime: lastRun,
		ErrorCount:  2,
		LastError:   &store.FailureDescriptor{Kind: "boom"},
	}
	got := DueAt(d, state, 30*time.Minute, time.UTC)
	assert.Equal(t, lastRun.Add(time.Hour), got) // min(30m*2, 1h) = 1h
}

func TestDueAt_AnchorAlignsForward(t *testing.T) {
	anchor := 9*time.Hour + 0*time.Minute
	d := descriptor(24*time.Hour, &anchor)
	success := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) // past 9:00
	state := &store.JobState{LastSuccess: &success}
	got := DueAt(d, state, DefaultBaseBackoff, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC), got)
}

func TestIsRunnable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ok, _ := IsRunnable(now.Add(-time.Minute), now, false)
	assert.True(t, ok)

	ok, reason := IsRunnable(now.Add(time.Minute), now, false)
	assert.False(t, ok)
	assert.Equal(t, "not yet due", reason)

	ok, _ = IsRunnable(now.Add(time.Hour), now, true)
	assert.True(t, ok)
}
