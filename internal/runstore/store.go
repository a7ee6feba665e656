// Package runstore keeps an in-memory history of sync runs.
package runstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/models"
)

type RunKind string

const (
	KindFullSync         RunKind = "full_sync"
	KindProjectSync      RunKind = "project_sync"
	KindCreateRepository RunKind = "create_repository"
	KindReseedLabels     RunKind = "reseed_labels"
)

type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	// StatusPartial marks a finished batch with per-entity errors.
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// DefaultCapacity is how many runs are kept before the oldest are dropped.
const DefaultCapacity = 200

type Run struct {
	ID         string             `json:"id"`
	Kind       RunKind            `json:"kind"`
	Trigger    string             `json:"trigger"`
	Target     string             `json:"target,omitempty"`
	Status     RunStatus          `json:"status"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Result     *models.SyncResult `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	Logs       []LogEntry         `json:"logs"`
}

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // info, warn, error
	Message   string    `json:"message"`
}

// Duration returns how long the run took, or has taken so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

type Store struct {
	mu       sync.RWMutex
	runs     map[string]*Run
	capacity int
}

// NewStore creates a store keeping at most capacity runs; capacity <= 0
// uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		runs:     make(map[string]*Run),
		capacity: capacity,
	}
}

// Start records a new running run and returns its id.
func (s *Store) Start(kind RunKind, trigger, target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:        strings.ToLower(ulid.Make().String()),
		Kind:      kind,
		Trigger:   trigger,
		Target:    target,
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Logs:      []LogEntry{},
	}
	s.runs[run.ID] = run
	s.evictLocked()
	return run.ID
}

// Finish closes a run with a batch result. Runs with errors are partial.
func (s *Store) Finish(id string, result models.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Result = &result
	run.Status = StatusCompleted
	if result.Failed() {
		run.Status = StatusPartial
		for _, key := range result.FailedKeys() {
			run.Logs = append(run.Logs, LogEntry{Timestamp: now, Level: "error", Message: key + ": " + result.ErrorDetails[key]})
		}
	}
}

// Fail closes a run that could not complete.
func (s *Store) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Status = StatusFailed
	run.Error = err.Error()
	run.Logs = append(run.Logs, LogEntry{Timestamp: now, Level: "error", Message: err.Error()})
}

// AddLog appends a log line to a run.
func (s *Store) AddLog(id, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Logs = append(run.Logs, LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
		})
	}
}

// Get returns a copy of the run.
func (s *Store) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	return copyRun(run), true
}

// List returns copies of all runs, newest first.
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, copyRun(run))
	}
	sortNewestFirst(runs)
	return runs
}

// Last returns the most recent finished run of kind.
func (s *Store) Last(kind RunKind) (*Run, bool) {
	for _, run := range s.List() {
		if run.Kind == kind && run.FinishedAt != nil {
			return run, true
		}
	}
	return nil, false
}

func (s *Store) evictLocked() {
	if len(s.runs) <= s.capacity {
		return
	}
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortNewestFirst(runs)
	for _, run := range runs[s.capacity:] {
		delete(s.runs, run.ID)
	}
}

// sortNewestFirst orders by start time, then by id; ULIDs sort by creation.
func sortNewestFirst(runs []*Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
}

func copyRun(in *Run) *Run {
	out := *in
	out.Logs = append([]LogEntry(nil), in.Logs...)
	if in.Result != nil {
		r := *in.Result
		r.ErrorDetails = make(map[string]string, len(in.Result.ErrorDetails))
		for k, v := range in.Result.ErrorDetails {
			r.ErrorDetails[k] = v
		}
		out.Result = &r
	}
	if in.FinishedAt != nil {
		t := *in.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}
