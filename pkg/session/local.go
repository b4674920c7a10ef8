package session

import (
	"context"
	"sync"
)

// LocalMap is the in-memory reference backend: an RWMutex-protected map
// from session id to handle. Reads (Get, List) share a read lock; all
// mutations take the write lock.
//
// Lock ordering is map lock first, then record lock, everywhere. The
// sweep operations below take each record's own lock (via the handle's
// locking accessors) while holding the map write lock; callers doing
// scoped access hold only the record lock, so sessions never block each
// other.
type LocalMap struct {
	mu       sync.RWMutex
	sessions map[string]*Data
}

// NewLocalMap creates an empty in-memory map.
func NewLocalMap() *LocalMap {
	return &LocalMap{
		sessions: make(map[string]*Data),
	}
}

// List returns a snapshot of all stored handles.
func (m *LocalMap) List(ctx context.Context) ([]*Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Data, 0, len(m.sessions))
	for _, d := range m.sessions {
		out = append(out, d)
	}
	return out, nil
}

// Get returns the handle stored under id, or nil. The same *Data is
// handed to every caller, so all holders share one record.
func (m *LocalMap) Get(ctx context.Context, id string) (*Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id], nil
}

// Insert stores or replaces the handle under id.
func (m *LocalMap) Insert(ctx context.Context, id string, data *Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = data
	return nil
}

// Remove deletes the handle under id.
func (m *LocalMap) Remove(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return ok, nil
}

// RemoveExpired deletes every expired record and returns the count.
func (m *LocalMap) RemoveExpired(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, d := range m.sessions {
		// Map write lock is held; Expired takes the record lock second.
		if d.Expired() {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Clear invalidates every record, then empties the map. Handles retained
// by callers from before Clear report themselves as expired afterwards.
func (m *LocalMap) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.sessions {
		d.Invalidate()
	}
	m.sessions = make(map[string]*Data)
	return nil
}

// Count returns the number of stored sessions. For monitoring and tests.
func (m *LocalMap) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
