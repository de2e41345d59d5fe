package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createCrontabberSQL = `
		CREATE TABLE IF NOT EXISTS crontabber (
			app_name text PRIMARY KEY,
			next_run timestamp with time zone,
			first_run timestamp with time zone,
			last_run timestamp with time zone,
			last_success timestamp with time zone,
			error_count integer DEFAULT 0,
			depends_on text[],
			last_error jsonb,
			ongoing timestamp with time zone
		)`

	createCrontabberLogSQL = `
		CREATE TABLE IF NOT EXISTS crontabber_log (
			id SERIAL PRIMARY KEY,
			app_name text NOT NULL,
			log_time timestamp with time zone NOT NULL,
			duration interval,
			success bool NOT NULL,
			exc_type text,
			exc_value text,
			exc_traceback text,
			correlation_id text
		)`

	createGateSQL = `
		CREATE TABLE IF NOT EXISTS crontabber_gate (
			id boolean PRIMARY KEY DEFAULT true CHECK (id),
			ongoing timestamp with time zone
		)`

	rowLockNotAvailable = "55P03" // Postgres error code for NOWAIT lock conflicts
)

// Postgres is the production Store backend, implementing spec.md
// §4.4/§6 over jackc/pgx/v5.
type Postgres struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// OpenPostgres connects to dsn, fixes the session time zone to tzName
// (spec.md §9: anchors follow the store's session zone, not the
// host's), and ensures the crontabber/crontabber_log/crontabber_gate
// tables exist.
func OpenPostgres(ctx context.Context, dsn string, tzName string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if tzName == "" {
		tzName = "UTC"
	}
	cfg.ConnConfig.RuntimeParams["timezone"] = tzName

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	loc, err := time.LoadLocation(tzName)
	if err != nil {
		loc = time.UTC
	}

	p := &Postgres{pool: pool, loc: loc}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	for _, stmt := range []string{createCrontabberSQL, createCrontabberLogSQL, createGateSQL} {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (p *Postgres) SessionTimeZone() *time.Location { return p.loc }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Get(ctx context.Context, identifier string) (*JobState, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT next_run, first_run, last_run, last_success,
		       error_count, depends_on, last_error, ongoing
		FROM crontabber WHERE app_name = $1`, identifier)

	var s JobState
	s.Identifier = identifier
	var lastErrRaw []byte
	var nextRun, firstRun, lastRun, lastSuccess, ongoing *time.Time

	if err := row.Scan(&nextRun, &firstRun, &lastRun, &lastSuccess,
		&s.ErrorCount, &s.DependsOn, &lastErrRaw, &ongoing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", identifier, err)
	}

	if nextRun != nil {
		s.NextRunTime = *nextRun
	}
	if firstRun != nil {
		s.FirstRunTime = *firstRun
	}
	if lastRun != nil {
		s.LastRunTime = *lastRun
	}
	s.LastSuccess = lastSuccess
	s.Ongoing = ongoing
	if len(lastErrRaw) > 0 {
		var fd FailureDescriptor
		if err := json.Unmarshal(lastErrRaw, &fd); err == nil {
			s.LastError = &fd
		}
	}
	return &s, nil
}

func (p *Postgres) UpsertPreRun(ctx context.Context, identifier string, startedAt time.Time, firstRun time.Time, maxOngoingAge time.Duration, dependsOn []string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ongoing *time.Time
	err = tx.QueryRow(ctx, `SELECT ongoing FROM crontabber WHERE app_name = $1 FOR UPDATE NOWAIT`, identifier).Scan(&ongoing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO crontabber (app_name, first_run, last_run, depends_on, ongoing)
			VALUES ($1, $2, $3, $4, $3)`, identifier, firstRun, startedAt, dependsOn)
		if err != nil {
			return fmt.Errorf("insert pre-run: %w", err)
		}
	case err != nil:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == rowLockNotAvailable {
			return ErrRowLocked
		}
		return fmt.Errorf("lock row: %w", err)
	default:
		if ongoing != nil && startedAt.Sub(*ongoing) < maxOngoingAge {
			return ErrRowLocked
		}
		_, err = tx.Exec(ctx, `
			UPDATE crontabber
			SET last_run = $2, ongoing = $2, depends_on = $3
			WHERE app_name = $1`, identifier, startedAt, dependsOn)
		if err != nil {
			return fmt.Errorf("update pre-run: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pre-run: %w", err)
	}
	return nil
}

func (p *Postgres) CommitSuccess(ctx context.Context, identifier string, finishedAt time.Time, nextDue time.Time, duration time.Duration) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		UPDATE crontabber
		SET last_success = $2, ongoing = NULL, last_error = NULL,
		    error_count = 0, next_run = $3
		WHERE app_name = $1`, identifier, finishedAt, nextDue)
	if err != nil {
		return fmt.Errorf("commit success: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO crontabber_log (app_name, log_time, duration, success, correlation_id)
		VALUES ($1, $2, $3, true, $4)`, identifier, finishedAt, duration, newLogID())
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapTransient(fmt.Errorf("commit success: %w", err))
	}
	return nil
}

func (p *Postgres) CommitFailure(ctx context.Context, identifier string, finishedAt time.Time, nextDue time.Time, duration time.Duration, failure FailureDescriptor) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	raw, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("marshal failure: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE crontabber
		SET ongoing = NULL, last_error = $2,
		    error_count = error_count + 1, next_run = $3
		WHERE app_name = $1`, identifier, raw, nextDue)
	if err != nil {
		return fmt.Errorf("commit failure: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO crontabber_log (app_name, log_time, duration, success, exc_type, exc_value, exc_traceback, correlation_id)
		VALUES ($1, $2, $3, false, $4, $5, $6, $7)`,
		identifier, finishedAt, duration, failure.Kind, failure.Message, failure.Traceback, newLogID())
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapTransient(fmt.Errorf("commit failure: %w", err))
	}
	return nil
}

func (p *Postgres) EnsureOrigin(ctx context.Context, identifier string, origin time.Time, dependsOn []string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO crontabber (app_name, first_run, next_run, depends_on)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (app_name) DO NOTHING`, identifier, origin, dependsOn)
	if err != nil {
		return fmt.Errorf("ensure origin %s: %w", identifier, err)
	}
	return nil
}

func (p *Postgres) Reset(ctx context.Context, identifier string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM crontabber WHERE app_name = $1`, identifier)
	if err != nil {
		return fmt.Errorf("reset %s: %w", identifier, err)
	}
	return nil
}

func (p *Postgres) RecentLog(ctx context.Context, identifier string) (*RunLogEntry, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, log_time, success, exc_type, exc_value, exc_traceback, duration, correlation_id
		FROM crontabber_log
		WHERE app_name = $1
		ORDER BY log_time DESC, id DESC
		LIMIT 1`, identifier)

	var e RunLogEntry
	var id int64
	var excType, excValue, excTrace, correlationID *string
	var duration time.Duration
	e.Identifier = identifier
	if err := row.Scan(&id, &e.Timestamp, &e.Success, &excType, &excValue, &excTrace, &duration, &correlationID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("recent log %s: %w", identifier, err)
	}
	e.ID = fmt.Sprintf("%d", id)
	e.Duration = duration
	if excType != nil {
		e.ErrorKind = *excType
	}
	if excValue != nil {
		e.ErrorMsg = *excValue
	}
	if excTrace != nil {
		e.ErrorTrace = *excTrace
	}
	if correlationID != nil {
		e.CorrelationID = *correlationID
	}
	return &e, nil
}

func (p *Postgres) AllIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT app_name FROM crontabber`)
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) AcquireGate(ctx context.Context, startedAt time.Time, maxOngoingAge time.Duration) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ongoing *time.Time
	err = tx.QueryRow(ctx, `SELECT ongoing FROM crontabber_gate FOR UPDATE NOWAIT`).Scan(&ongoing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx, `INSERT INTO crontabber_gate (ongoing) VALUES ($1)`, startedAt); err != nil {
			return fmt.Errorf("insert gate: %w", err)
		}
	case err != nil:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == rowLockNotAvailable {
			return ErrRowLocked
		}
		return fmt.Errorf("lock gate: %w", err)
	default:
		if ongoing != nil && startedAt.Sub(*ongoing) < maxOngoingAge {
			return ErrRowLocked
		}
		if _, err := tx.Exec(ctx, `UPDATE crontabber_gate SET ongoing = $1`, startedAt); err != nil {
			return fmt.Errorf("update gate: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) ReleaseGate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `UPDATE crontabber_gate SET ongoing = NULL`)
	if err != nil {
		return fmt.Errorf("release gate: %w", err)
	}
	return nil
}

// newLogID produces a fresh random correlation id for a RunLog row
// (independent of the runner's attempt_id log field), following the teacher's use of
// google/uuid for row identity (internal/build, jinford-dev-rag's
// repositories).
func newLogID() string { return uuid.NewString() }

// wrapTransient labels connection-class faults as ErrTransient so
// internal/runner's backoff.Retry wrapper knows to re-attempt the
// commit within the same invocation, rather than surfacing a
// cronerr.StoreError immediately.
func wrapTransient(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "08") {
		return fmt.Errorf("%w: %s", ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s", ErrTransient, err)
	}
	return err
}
