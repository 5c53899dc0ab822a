package cache

import (
	"sync"
	"time"
)

// memoryEntry holds the encoded value so callers never share mutable state
// with the tier.
type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// memoryTier is the process-local tier. Each instance owns its own; coherence
// across instances relies on the persistent tier.
type memoryTier struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func newMemoryTier() *memoryTier {
	return &memoryTier{entries: make(map[string]memoryEntry)}
}

// get returns the live entry for key. An expired entry is deleted on read.
func (m *memoryTier) get(key string, now time.Time) (memoryEntry, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return memoryEntry{}, false
	}
	if entry.expired(now) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent set may have refreshed it.
		if current, still := m.entries[key]; still && current.expired(now) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *memoryTier) set(key string, entry memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// sweep evicts every expired entry and returns how many were removed.
func (m *memoryTier) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			evicted++
		}
	}
	return evicted
}

func (m *memoryTier) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
