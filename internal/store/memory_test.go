package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertPreRun_FirstRow(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.UpsertPreRun(ctx, "A", now, now, time.Hour, nil))

	s, err := m.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, now, s.FirstRunTime)
	assert.NotNil(t, s.Ongoing)
}

func TestMemory_UpsertPreRun_RowLocked(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.UpsertPreRun(ctx, "A", now, now, time.Hour, nil))
	err := m.UpsertPreRun(ctx, "A", now.Add(time.Minute), now, time.Hour, nil)
	assert.ErrorIs(t, err, ErrRowLocked)
}

func TestMemory_UpsertPreRun_StaleClaimReclaimable(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.UpsertPreRun(ctx, "A", now, now, time.Hour, nil))
	later := now.Add(2 * time.Hour)
	require.NoError(t, m.UpsertPreRun(ctx, "A", later, now, time.Hour, nil))
}

func TestMemory_CommitSuccessResetsErrorState(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.UpsertPreRun(ctx, "A", now, now, time.Hour, nil))
	require.NoError(t, m.CommitFailure(ctx, "A", now, now.Add(time.Hour), time.Second, FailureDescriptor{Kind: "boom"}))

	s, err := m.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, s.ErrorCount)
	assert.NotNil(t, s.LastError)

	require.NoError(t, m.UpsertPreRun(ctx, "A", now.Add(time.Hour), now, time.Hour, nil))
	require.NoError(t, m.CommitSuccess(ctx, "A", now.Add(time.Hour), now.Add(2*time.Hour), time.Second))

	s, err = m.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, s.ErrorCount)
	assert.Nil(t, s.LastError)
	assert.Nil(t, s.Ongoing)
}

func TestMemory_Reset(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, m.UpsertPreRun(ctx, "A", now, now, time.Hour, nil))
	require.NoError(t, m.Reset(ctx, "A"))

	_, err := m.Get(ctx, "A")
	assert.ErrorIs(t, err, ErrNotFound)

	// Idempotent: resetting again and resetting a never-run job are no-ops.
	require.NoError(t, m.Reset(ctx, "A"))
	require.NoError(t, m.Reset(ctx, "never-run"))
}

func TestMemory_EnsureOrigin(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	origin := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.EnsureOrigin(ctx, "Back", origin, []string{"A"}))
	s, err := m.Get(ctx, "Back")
	require.NoError(t, err)
	assert.Equal(t, origin, s.FirstRunTime)
	assert.Equal(t, origin, s.NextRunTime)
	assert.Nil(t, s.Ongoing)

	// Idempotent: a second call after a real claim must not reset the origin.
	later := origin.AddDate(0, 0, 5)
	require.NoError(t, m.UpsertPreRun(ctx, "Back", later, origin, time.Hour, nil))
	require.NoError(t, m.EnsureOrigin(ctx, "Back", later, []string{"A"}))
	s, err = m.Get(ctx, "Back")
	require.NoError(t, err)
	assert.Equal(t, origin, s.FirstRunTime)
}

func TestMemory_Gate(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.AcquireGate(ctx, now, time.Hour))
	err := m.AcquireGate(ctx, now.Add(time.Minute), time.Hour)
	assert.ErrorIs(t, err, ErrRowLocked)

	require.NoError(t, m.ReleaseGate(ctx))
	require.NoError(t, m.AcquireGate(ctx, now.Add(time.Minute), time.Hour))
}
