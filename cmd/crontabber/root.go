package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mozilla/crontabber/internal/config"
	"github.com/mozilla/crontabber/internal/cronerr"
	"github.com/mozilla/crontabber/internal/due"
	"github.com/mozilla/crontabber/internal/graph"
	"github.com/mozilla/crontabber/internal/job"
	"github.com/mozilla/crontabber/internal/lock"
	"github.com/mozilla/crontabber/internal/logger"
	"github.com/mozilla/crontabber/internal/registry"
	"github.com/mozilla/crontabber/internal/runner"
	"github.com/mozilla/crontabber/internal/store"
	"github.com/spf13/cobra"
)

var adminConfPath string

var rootCmd = &cobra.Command{
	Use:   "crontabber",
	Short: "A cron-style job runner with persisted state and dependency-aware ordering.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminConfPath, "admin.conf", "", "path to admin.conf (env CRONTABBER_*, or defaults, if unset)")
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(resetJobCmd())
	rootCmd.AddCommand(configTestCmd())
	rootCmd.AddCommand(nagiosCmd())
	rootCmd.AddCommand(versionCmd())
}

// environment bundles everything a subcommand needs, built once from
// admin.conf: the registry, dependency graph, state store, lock
// manager, and runner.
type environment struct {
	cfg      *config.Config
	registry *registry.Registry
	graph    *graph.Graph
	store    store.Store
	lock     *lock.Manager
	runner   *runner.Runner
}

// defaultLoader is the explicit job registration of spec.md §9: the
// core has no reflection-based plugin loader (that mechanism is out of
// scope per spec.md §1), so a deployment wires its own job.App
// implementations into this map at program start instead of relying on
// dotted-path reflection.
func defaultLoader() job.Loader {
	return registry.StaticLoader{}
}

func buildEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.Load(adminConfPath)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Build(cfg.JobLines, defaultLoader())
	if err != nil {
		return nil, err
	}

	deps := map[string]map[string]struct{}{}
	for id, d := range reg.Descriptors() {
		deps[id] = d.DependsOn
	}
	g, err := graph.New(reg.Order(), deps)
	if err != nil {
		return nil, err
	}

	var s store.Store
	if cfg.DatabaseDSN == "" {
		logger.Warn(ctx, "no database_dsn configured, using an in-memory store")
		s = store.NewMemory(nil)
	} else {
		s, err = store.OpenPostgres(ctx, cfg.DatabaseDSN, cfg.DatabaseTimeZone)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = due.DefaultBaseBackoff
	}

	lockMgr := lock.New(s, cfg.MaxOngoingAge)
	r := runner.New(s, lockMgr, reg, g, baseBackoff)

	return &environment{cfg: cfg, registry: reg, graph: g, store: s, lock: lockMgr, runner: r}, nil
}

// exitCodeFor maps an error surfaced from RunE to the process exit
// code of spec.md §6: 0 success (no error reaches here), 2 lost row
// claim, 3 process gate held, otherwise 1 for any other fatal error
// (configuration errors, store errors).
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := exitCodeFromErr(err); ok {
		return code
	}
	if level, ok := cronerr.IsLockHeld(err); ok {
		if level == cronerr.LockProcess {
			return 3
		}
		return 2
	}
	return 1
}

// exitCodeError lets a subcommand (--configtest, --nagios) carry an
// explicit exit code through the cobra error path.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: code, err: err}
}

func exitCodeFromErr(err error) (int, bool) {
	var e *exitCodeError
	if errors.As(err, &e) {
		return e.code, true
	}
	return 0, false
}
