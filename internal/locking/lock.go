// Package locking provides per-build locks so background work never
// processes the same build twice concurrently.
package locking

import "sync"

// Manager manages per-build locks.
//
// Two-level strategy: the outer mutex protects the locks map, each build
// gets its own mutex for the actual work. Different builds proceed
// concurrently; one build is only ever worked on once at a time.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a lock manager.
func NewManager() *Manager {
	return &Manager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock attempts to acquire the lock for a build. Non-blocking: returns
// false when the build is already being worked on.
func (m *Manager) TryLock(buildID string) bool {
	m.mu.Lock()
	lock, exists := m.locks[buildID]
	if !exists {
		lock = &sync.Mutex{}
		m.locks[buildID] = lock
	}
	m.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases the lock for a build. Safe to call for a build that was
// never locked (no-op).
func (m *Manager) Unlock(buildID string) {
	m.mu.Lock()
	lock := m.locks[buildID]
	m.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
