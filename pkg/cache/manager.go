package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// batchFailureRatio is the share of per-item L2 write failures beyond which
// the manager relieves L1 pressure and warns.
const batchFailureRatio = 0.30

// batchFailureEvictFraction is the share of L1 evicted on heavy batch failure.
const batchFailureEvictFraction = 0.20

// ErrNegativeTTL indicates a Set was called with a negative TTL.
var ErrNegativeTTL = errors.New("cache: negative ttl")

// Stats is a point-in-time snapshot of manager counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Evictions int64   `json:"evictions"`
	Errors    int64   `json:"errors"`
	Entries   int     `json:"entries"`
	HitRate   float64 `json:"hitRate"`
}

// Manager is the unified two-tier store. L1 is always present; L2 is
// optional and every L2 failure degrades to L1 silently. Cache errors are
// never surfaced to business-logic callers; only Set's TTL contract is.
type Manager struct {
	l1       *Memory
	l2       *Redis
	logger   *slog.Logger
	backfill time.Duration

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// NewManager builds a manager over the given tiers. l2 may be nil for
// L1-only operation; a nil logger uses the slog default.
func NewManager(l1 *Memory, l2 *Redis, logger *slog.Logger) *Manager {
	if l1 == nil {
		l1 = NewMemory(DefaultMaxEntries)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{l1: l1, l2: l2, logger: logger, backfill: backfillTTL}
}

// SetDefaultTTL overrides how long L2-recovered values are retained in L1.
// Non-positive values keep the built-in default.
func (m *Manager) SetDefaultTTL(ttl time.Duration) {
	if ttl > 0 {
		m.backfill = ttl
	}
}

// Get returns the value for key, or false on a miss. L1 is consulted first;
// an L2 hit backfills L1 with the remaining TTL unknown, so a short default
// is not applied — the entry is returned without backfill TTL guesswork.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool) {
	if val, ok := m.l1.Get(key); ok {
		m.hits.Add(1)

		return val, true
	}

	if m.l2 != nil {
		val, ok, err := m.l2.Get(ctx, key)
		if err != nil {
			m.errors.Add(1)
			m.logger.Warn("cache l2 get degraded", "key", key, "error", err)
		} else if ok {
			m.hits.Add(1)

			return val, true
		}
	}

	m.misses.Add(1)

	return nil, false
}

// Set stores value under key in both tiers. TTL 0 means "do not cache" and
// is a successful no-op; a negative TTL is rejected. L2 failures are logged
// and dropped.
func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		return ErrNegativeTTL
	}

	if ttl == 0 {
		return nil
	}

	m.l1.Set(key, value, ttl)
	m.sets.Add(1)

	if m.l2 != nil {
		err := m.l2.Set(ctx, key, value, ttl)
		if err != nil {
			m.errors.Add(1)
			m.logger.Warn("cache l2 set dropped", "key", key, "error", err)
		}
	}

	return nil
}

// GetMany resolves keys against L1 first, then fetches the misses from L2
// in a single pipeline. L2 hits backfill L1. The result maps every found
// key to its value; unfound keys are absent.
func (m *Manager) GetMany(ctx context.Context, keys []string) map[string][]byte {
	found := make(map[string][]byte, len(keys))

	var l2Keys []string

	for _, key := range keys {
		if val, ok := m.l1.Get(key); ok {
			m.hits.Add(1)
			found[key] = val

			continue
		}

		l2Keys = append(l2Keys, key)
	}

	if len(l2Keys) == 0 || m.l2 == nil {
		m.misses.Add(int64(len(l2Keys)))

		return found
	}

	l2Found, err := m.l2.GetMany(ctx, l2Keys)
	if err != nil {
		m.errors.Add(1)
		m.misses.Add(int64(len(l2Keys)))
		m.logger.Warn("cache l2 batch get degraded", "keys", len(l2Keys), "error", err)

		return found
	}

	for _, key := range l2Keys {
		val, ok := l2Found[key]
		if !ok {
			m.misses.Add(1)

			continue
		}

		m.hits.Add(1)
		found[key] = val
		m.l1.Set(key, val, m.backfill)
	}

	return found
}

// backfillTTL is the default L1 retention for values recovered from L2,
// whose remaining L2 TTL is not reported by the pipeline.
const backfillTTL = 5 * time.Minute

// SetMany writes entries to L1 and to L2 in a single pipeline. When at
// least 30% of the L2 items fail, 20% of L1 is evicted to relieve pressure
// and a warning is logged. Entries with non-positive TTLs are skipped.
func (m *Manager) SetMany(ctx context.Context, entries []Entry) {
	valid := entries[:0:0]

	for _, entry := range entries {
		if entry.TTL <= 0 {
			continue
		}

		m.l1.Set(entry.Key, entry.Value, entry.TTL)
		m.sets.Add(1)

		valid = append(valid, entry)
	}

	if m.l2 == nil || len(valid) == 0 {
		return
	}

	failed, err := m.l2.SetMany(ctx, valid)
	if err != nil {
		m.errors.Add(1)
		m.logger.Warn("cache l2 batch set degraded", "entries", len(valid), "error", err)
	}

	if failed > 0 && float64(failed) >= batchFailureRatio*float64(len(valid)) {
		m.l1.EvictOldest(int(float64(m.l1.Len()) * batchFailureEvictFraction))
		m.logger.Warn("cache batch write pressure, evicted l1 entries",
			"failed", failed, "total", len(valid))
	}
}

// DeletePattern removes matching keys from both tiers and returns the
// larger of the two per-tier counts (the tiers may hold different subsets).
func (m *Manager) DeletePattern(ctx context.Context, pattern string) int {
	deleted := m.l1.DeletePattern(pattern)

	if m.l2 != nil {
		l2Deleted, err := m.l2.DeletePattern(ctx, pattern)
		if err != nil {
			m.errors.Add(1)
			m.logger.Warn("cache l2 pattern delete degraded", "pattern", pattern, "error", err)
		}

		if l2Deleted > deleted {
			deleted = l2Deleted
		}
	}

	return deleted
}

// Stats returns a snapshot of the manager counters.
func (m *Manager) Stats() Stats {
	hits := m.hits.Load()
	misses := m.misses.Load()

	total := hits + misses

	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:      hits,
		Misses:    misses,
		Sets:      m.sets.Load(),
		Evictions: m.l1.Evictions(),
		Errors:    m.errors.Load(),
		Entries:   m.l1.Len(),
		HitRate:   rate,
	}
}

// Healthy reports whether the L2 tier is reachable. An unconfigured L2 is
// healthy by definition (L1-only mode is a supported configuration).
func (m *Manager) Healthy(ctx context.Context) bool {
	if m.l2 == nil {
		return true
	}

	return m.l2.Ping(ctx) == nil
}
