// Package tag holds structured-field helpers for internal/logger,
// mirroring the teacher's logger/tag package.
package tag

import "log/slog"

// Error returns a structured field for an error value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Job returns a structured field for a job identifier.
func Job(identifier string) slog.Attr {
	return slog.String("job", identifier)
}

// Date returns a structured field for a backfill calendar date.
func Date(label string) slog.Attr {
	return slog.String("date", label)
}

// ExitCode returns a structured field for a process exit code.
func ExitCode(code int) slog.Attr {
	return slog.Int("exit_code", code)
}

// Attempt returns a structured field for a correlation id grouping the
// log lines of one job attempt (or one --nagios check). The id is not
// stored in the RunLog row.
func Attempt(id string) slog.Attr {
	return slog.String("attempt_id", id)
}
