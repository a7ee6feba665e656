// Package concurrency guards sync operations that must not overlap, such
// as two full reconciliations or two provisioning runs for one project.
package concurrency

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrBusy is returned when an operation with the same key is already running.
var ErrBusy = errors.New("operation already in progress")

// Keys for the batch operations.
const (
	KeyFullSync = "sync:full"
	KeyProjects = "sync:projects"
)

// ProjectKey guards provisioning of a single project.
func ProjectKey(projectID string) string {
	return "project:" + projectID
}

// Lease describes a held key.
type Lease struct {
	Key   string    `json:"key"`
	Since time.Time `json:"since"`
}

// Manager hands out non-blocking exclusive leases per key.
type Manager struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{held: make(map[string]time.Time)}
}

// TryAcquire takes the lease for key. It returns false if the key is held.
func (m *Manager) TryAcquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return false
	}
	m.held[key] = time.Now()
	return true
}

// Release frees key. Releasing a key that is not held is a no-op.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, key)
}

// Do runs fn while holding key, or returns ErrBusy without running it.
func (m *Manager) Do(key string, fn func() error) error {
	if !m.TryAcquire(key) {
		return ErrBusy
	}
	defer m.Release(key)
	return fn()
}

// Running lists the held leases ordered by key.
func (m *Manager) Running() []Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Lease, 0, len(m.held))
	for k, since := range m.held {
		out = append(out, Lease{Key: k, Since: since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
