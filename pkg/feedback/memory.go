package feedback

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps feedback entries in process memory. Useful for
// tests and one-shot CLI runs where durability is not needed.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]map[string]Entry
}

// NewMemoryStore creates an empty in-memory feedback store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]map[string]Entry),
	}
}

// RecordDecision inserts or replaces the entry for its pair
func (m *MemoryStore) RecordDecision(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if entry.DecidedAt.IsZero() {
		entry.DecidedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[entry.SessionID]
	if !ok {
		session = make(map[string]Entry)
		m.sessions[entry.SessionID] = session
	}
	session[entry.RecordID] = entry

	return nil
}

// Count returns the active entry count for the scope
func (m *MemoryStore) Count(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if sessionID != AllSessions {
		return len(m.sessions[sessionID]), nil
	}

	total := 0
	for _, session := range m.sessions {
		total += len(session)
	}
	return total, nil
}

// Entries returns the active entries for the scope, ordered by
// decision time
func (m *MemoryStore) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []Entry
	for id, session := range m.sessions {
		if sessionID != AllSessions && id != sessionID {
			continue
		}
		for _, entry := range session {
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DecidedAt.Before(entries[j].DecidedAt)
	})

	return entries, nil
}

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
