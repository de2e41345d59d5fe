package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store, guarded by a mutex, used by unit
// tests and by every command when no database_dsn is configured. It mirrors the teacher's pattern of pairing
// a real backend with an in-memory test double (mocks_test.go).
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*JobState
	log  []*RunLogEntry
	gate *GateState
	loc  *time.Location
	seq  int
}

// NewMemory returns an empty Memory store using loc as its session
// time zone (UTC if loc is nil).
func NewMemory(loc *time.Location) *Memory {
	if loc == nil {
		loc = time.UTC
	}
	return &Memory{
		jobs: make(map[string]*JobState),
		gate: &GateState{},
		loc:  loc,
	}
}

func (m *Memory) SessionTimeZone() *time.Location { return m.loc }

func (m *Memory) Get(_ context.Context, identifier string) (*JobState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.jobs[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *s
	return &copy, nil
}

func (m *Memory) UpsertPreRun(_ context.Context, identifier string, startedAt time.Time, firstRun time.Time, maxOngoingAge time.Duration, dependsOn []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.jobs[identifier]
	if !ok {
		s = &JobState{Identifier: identifier, FirstRunTime: firstRun}
		m.jobs[identifier] = s
	}

	if s.Ongoing != nil && startedAt.Sub(*s.Ongoing) < maxOngoingAge {
		return ErrRowLocked
	}

	s.Ongoing = &startedAt
	s.LastRunTime = startedAt
	s.DependsOn = dependsOn
	if s.FirstRunTime.IsZero() {
		s.FirstRunTime = firstRun
	}
	return nil
}

func (m *Memory) EnsureOrigin(_ context.Context, identifier string, origin time.Time, dependsOn []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[identifier]; ok {
		return nil
	}
	m.jobs[identifier] = &JobState{
		Identifier:   identifier,
		FirstRunTime: origin,
		NextRunTime:  origin,
		DependsOn:    dependsOn,
	}
	return nil
}

func (m *Memory) CommitSuccess(_ context.Context, identifier string, finishedAt time.Time, nextDue time.Time, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.jobs[identifier]
	s.LastSuccess = &finishedAt
	s.Ongoing = nil
	s.LastError = nil
	s.ErrorCount = 0
	s.NextRunTime = nextDue

	m.seq++
	m.log = append(m.log, &RunLogEntry{
		ID:            strconv.Itoa(m.seq),
		Identifier:    identifier,
		Timestamp:     finishedAt,
		Success:       true,
		Duration:      duration,
		CorrelationID: uuid.NewString(),
	})
	return nil
}

func (m *Memory) CommitFailure(_ context.Context, identifier string, finishedAt time.Time, nextDue time.Time, duration time.Duration, failure FailureDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.jobs[identifier]
	s.Ongoing = nil
	s.LastError = &failure
	s.ErrorCount++
	s.NextRunTime = nextDue

	m.seq++
	m.log = append(m.log, &RunLogEntry{
		ID:            strconv.Itoa(m.seq),
		Identifier:    identifier,
		Timestamp:     finishedAt,
		Success:       false,
		ErrorKind:     failure.Kind,
		ErrorMsg:      failure.Message,
		ErrorTrace:    failure.Traceback,
		Duration:      duration,
		CorrelationID: uuid.NewString(),
	})
	return nil
}

func (m *Memory) Reset(_ context.Context, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, identifier)
	return nil
}

func (m *Memory) RecentLog(_ context.Context, identifier string) (*RunLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.log) - 1; i >= 0; i-- {
		if m.log[i].Identifier == identifier {
			entry := *m.log[i]
			return &entry, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) AllIdentifiers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) AcquireGate(_ context.Context, startedAt time.Time, maxOngoingAge time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate.Ongoing != nil && startedAt.Sub(*m.gate.Ongoing) < maxOngoingAge {
		return ErrRowLocked
	}
	m.gate.Ongoing = &startedAt
	return nil
}

func (m *Memory) ReleaseGate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate.Ongoing = nil
	return nil
}

func (m *Memory) Close() error { return nil }
