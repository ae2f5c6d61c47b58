// Package cache provides the two-tier key-value store backing upstream
// request caching and report caching: a bounded in-process tier with
// per-entry TTLs, and an optional Redis tier with pipelined batch
// operations. Tier errors degrade silently; callers never see them.
package cache

import (
	"path"
	"sort"
	"sync"
	"time"
)

// DefaultMaxEntries is the default upper bound on L1 entry count.
const DefaultMaxEntries = 50000

// capacityPressureRatio is the fill ratio beyond which a Set triggers
// eviction of the oldest entries before inserting.
const capacityPressureRatio = 0.95

// evictFraction is the share of entries removed on capacity pressure.
const evictFraction = 0.10

// memEntry is a single L1 cache entry. Entries are replaced whole; values
// are never mutated in place.
type memEntry struct {
	value        []byte
	storedAt     time.Time
	expiresAt    time.Time
	lastAccessed time.Time
	accessCount  int64
}

// Memory is the in-process cache tier. All operations are non-blocking
// (mutex only, no I/O) and safe for concurrent callers.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*memEntry
	maxEntries int
	evictions  int64
	now        func() time.Time
}

// NewMemory creates an L1 tier bounded to maxEntries. Non-positive values
// use DefaultMaxEntries.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &Memory{
		entries:    make(map[string]*memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the value for key, or false on a miss. Expired entries are
// removed lazily.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}

	now := m.now()
	if now.After(entry.expiresAt) {
		delete(m.entries, key)

		return nil, false
	}

	entry.lastAccessed = now
	entry.accessCount++

	return entry.value, true
}

// Set stores value under key with the given TTL. A non-positive TTL is a
// no-op. On capacity pressure (>95% full) the oldest ~10% of entries by
// last access are evicted first; the insert always succeeds.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if _, exists := m.entries[key]; !exists {
		if float64(len(m.entries)) >= capacityPressureRatio*float64(m.maxEntries) {
			evict := int(float64(m.maxEntries) * evictFraction)
			if evict < 1 {
				// Tiny capacities round the fraction down to zero; the
				// bound still has to hold.
				evict = 1
			}

			m.evictOldest(evict)
		}
	}

	m.entries[key] = &memEntry{
		value:        value,
		storedAt:     now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
		accessCount:  1,
	}
}

// Delete removes key. Returns true if an entry existed.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[key]
	delete(m.entries, key)

	return ok
}

// DeletePattern removes all entries whose key matches the glob pattern and
// returns the count removed.
func (m *Memory) DeletePattern(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0

	for key := range m.entries {
		matched, err := path.Match(pattern, key)
		if err != nil {
			// Malformed pattern matches nothing.
			return 0
		}

		if matched {
			delete(m.entries, key)

			deleted++
		}
	}

	return deleted
}

// EvictOldest removes up to n entries with the oldest last-access times.
// Exposed for the manager's batch-failure pressure relief.
func (m *Memory) EvictOldest(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictOldest(n)
}

// evictOldest removes up to n least recently accessed entries.
// Caller must hold the lock.
func (m *Memory) evictOldest(n int) {
	if n <= 0 || len(m.entries) == 0 {
		return
	}

	type aged struct {
		key          string
		lastAccessed time.Time
	}

	candidates := make([]aged, 0, len(m.entries))
	for key, entry := range m.entries {
		candidates = append(candidates, aged{key: key, lastAccessed: entry.lastAccessed})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccessed.Before(candidates[j].lastAccessed)
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	for _, victim := range candidates[:n] {
		delete(m.entries, victim.key)

		m.evictions++
	}
}

// Len returns the current entry count, including not-yet-collected expired
// entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Evictions returns the cumulative eviction count.
func (m *Memory) Evictions() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.evictions
}
