package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mozilla/crontabber/internal/graph"
	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/lock"
	"github.com/mozilla/crontabber/internal/registry"
	"github.com/mozilla/crontabber/internal/runner"
	"github.com/mozilla/crontabber/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	id       string
	deps     []string
	backfill bool
	fail     bool
}

func (f *fakeJob) Identifier() string  { return f.id }
func (f *fakeJob) DependsOn() []string { return f.deps }
func (f *fakeJob) IsBackfill() bool    { return f.backfill }
func (f *fakeJob) Execute(_ context.Context, _ *time.Time) error {
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func setup(t *testing.T, apps ...job.App) (*registry.Registry, *graph.Graph, store.Store, *runner.Runner) {
	t.Helper()
	loader := registry.StaticLoader{}
	var lines string
	for _, a := range apps {
		loader[a.Identifier()] = a
		freq := "5m"
		if fj, ok := a.(*fakeJob); ok && fj.backfill {
			freq = "1d"
		}
		lines += a.Identifier() + "|" + freq + "\n"
	}

	reg, err := registry.Build(lines, loader)
	require.NoError(t, err)

	deps := map[string]map[string]struct{}{}
	for id, d := range reg.Descriptors() {
		deps[id] = d.DependsOn
	}
	g, err := graph.New(reg.Order(), deps)
	require.NoError(t, err)

	s := store.NewMemory(nil)
	lockMgr := lock.New(s, 12*time.Hour)
	r := runner.New(s, lockMgr, reg, g, 30*time.Minute)
	return reg, g, s, r
}

func TestList(t *testing.T) {
	a := &fakeJob{id: "A"}
	b := &fakeJob{id: "B", deps: []string{"A"}}
	reg, g, s, _ := setup(t, a, b)

	summaries, err := List(context.Background(), s, reg, g)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "A", summaries[0].Identifier)
	assert.Equal(t, "B", summaries[1].Identifier)
	assert.Equal(t, []string{"A"}, summaries[1].DependsOn)
	assert.False(t, summaries[0].HasState)
}

func TestResetJob(t *testing.T) {
	a := &fakeJob{id: "A"}
	reg, _, s, r := setup(t, a)
	ctx := context.Background()

	_, err := r.Run(ctx, time.Now())
	require.NoError(t, err)

	_, err = s.Get(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, ResetJob(ctx, s, reg, "A"))
	_, err = s.Get(ctx, "A")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = ResetJob(ctx, s, reg, "nope")
	assert.Error(t, err)
}

func TestRunOne_RefusesBackfillForce(t *testing.T) {
	back := &fakeJob{id: "Back", backfill: true}
	reg, _, _, r := setup(t, back)

	_, err := RunOne(context.Background(), r, reg, time.Now(), "Back", true)
	assert.Error(t, err)
}

func TestRunOne_UnknownJob(t *testing.T) {
	a := &fakeJob{id: "A"}
	reg, _, _, r := setup(t, a)

	_, err := RunOne(context.Background(), r, reg, time.Now(), "nope", false)
	assert.Error(t, err)
}

func TestRunOne_ForcesDueCheck(t *testing.T) {
	a := &fakeJob{id: "A"}
	reg, _, s, r := setup(t, a)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := r.Run(ctx, now)
	require.NoError(t, err)
	require.False(t, result.Steps[0].Skipped)

	_, err = s.Get(ctx, "A")
	require.NoError(t, err)

	// Not yet due again without --force.
	result2, err := RunOne(ctx, r, reg, now.Add(time.Minute), "A", false)
	require.NoError(t, err)
	assert.True(t, result2.Steps[0].Skipped)

	// --force bypasses the due-at check.
	result3, err := RunOne(ctx, r, reg, now.Add(time.Minute), "A", true)
	require.NoError(t, err)
	assert.False(t, result3.Steps[0].Skipped)
}

func TestNagios_AllHealthy(t *testing.T) {
	a := &fakeJob{id: "A"}
	reg, _, s, r := setup(t, a)
	ctx := context.Background()

	_, err := r.Run(ctx, time.Now())
	require.NoError(t, err)

	status, summary := Nagios(ctx, s, reg)
	assert.Equal(t, NagiosOK, status)
	assert.Equal(t, 0, status.ExitCode())
	assert.Contains(t, summary, "OK")
}

func TestNagios_NonBackfillFailureIsCritical(t *testing.T) {
	a := &fakeJob{id: "A", fail: true}
	reg, _, s, r := setup(t, a)
	ctx := context.Background()

	_, err := r.Run(ctx, time.Now())
	require.NoError(t, err)

	status, summary := Nagios(ctx, s, reg)
	assert.Equal(t, NagiosCritical, status)
	assert.Equal(t, 2, status.ExitCode())
	assert.Contains(t, summary, "A: boom")
}

func TestNagios_SingleBackfillFailureIsWarning(t *testing.T) {
	back := &fakeJob{id: "Back", backfill: true, fail: true}
	reg, _, s, r := setup(t, back)
	ctx := context.Background()

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	seedTime := now.AddDate(0, 0, -1)
	require.NoError(t, s.UpsertPreRun(ctx, "Back", seedTime, seedTime, 12*time.Hour, nil))
	require.NoError(t, s.CommitSuccess(ctx, "Back", seedTime, seedTime, 0))

	_, err := r.Run(ctx, now)
	require.NoError(t, err)

	status, _ := Nagios(ctx, s, reg)
	assert.Equal(t, NagiosWarning, status)
	assert.Equal(t, 1, status.ExitCode())
}

func TestConfigTest(t *testing.T) {
	a := &fakeJob{id: "A"}
	reg, g, _, _ := setup(t, a)

	n, err := ConfigTest(reg, g)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
