package backfill

import (
	"testing"
	"time"

	"github.com/mozilla/crontabber/internal/frequency"
	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/store"
	"github.com/stretchr/testify/assert"
)

func dailyDescriptor() *job.Descriptor {
	return &job.Descriptor{
		Identifier: "B",
		Frequency:  frequency.Frequency{Period: 24 * time.Hour},
		IsBackfill: true,
	}
}

func TestOwedDates_FirstEverAttempt(t *testing.T) {
	d := dailyDescriptor()
	now := time.Date(2026, 1, 4, 12, 0, 0, 0, time.UTC)
	dates := OwedDates(d, nil, now, time.UTC)
	assert.Empty(t, dates)
}

func TestOwedDates_S4Scenario(t *testing.T) {
	d := dailyDescriptor()
	now := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	firstRun := now.AddDate(0, 0, -3)
	state := &store.JobState{FirstRunTime: firstRun}

	dates := OwedDates(d, state, now, time.UTC)
	want := []time.Time{
		now.AddDate(0, 0, -3),
		now.AddDate(0, 0, -2),
		now.AddDate(0, 0, -1),
	}
	assert.Equal(t, want, dates)
}

func TestOwedDates_ResumesAtNextRunTimeAfterPartialSuccess(t *testing.T) {
	d := dailyDescriptor()
	now := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	firstRun := now.AddDate(0, 0, -3)
	nextRun := now.AddDate(0, 0, -2) // T-3d succeeded, next owed is T-2d
	state := &store.JobState{FirstRunTime: firstRun, NextRunTime: nextRun}

	dates := OwedDates(d, state, now, time.UTC)
	want := []time.Time{
		now.AddDate(0, 0, -2),
		now.AddDate(0, 0, -1),
	}
	assert.Equal(t, want, dates)
}

func TestAlignedFloor(t *testing.T) {
	period := 24 * time.Hour
	now := time.Date(2026, 1, 4, 15, 30, 0, 0, time.UTC)
	floor := AlignedFloor(now, period, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC), floor)
}
