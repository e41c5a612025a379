package ratelimit

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// Memory is a single-process sliding-window Limiter with the same member
// semantics as Redis: a member counts once per key.
type Memory struct {
	mu      sync.Mutex
	windows map[string]map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{windows: make(map[string]map[string]time.Time)}
}

func (m *Memory) Acquire(_ context.Context, now time.Time, member string, rules ...Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rule := range rules {
		hits := m.prune(rule.Key, now.Add(-rule.Window))
		if _, held := hits[member]; held || len(hits) < rule.Limit {
			continue
		}
		retryAt := now.Add(rule.Window)
		if len(hits) > 0 {
			oldest := slices.MinFunc(slices.Collect(maps.Values(hits)), time.Time.Compare)
			retryAt = oldest.Add(rule.Window)
		}
		return &ExceededError{Key: rule.Key, RetryAt: retryAt}
	}
	for _, rule := range rules {
		hits := m.windows[rule.Key]
		if _, held := hits[member]; !held {
			hits[member] = now
		}
	}
	return nil
}

// prune drops hits at or before cutoff and returns the key's live hits.
func (m *Memory) prune(key string, cutoff time.Time) map[string]time.Time {
	hits, ok := m.windows[key]
	if !ok {
		hits = make(map[string]time.Time)
		m.windows[key] = hits
	}
	maps.DeleteFunc(hits, func(_ string, hit time.Time) bool { return !hit.After(cutoff) })
	return hits
}

var _ Limiter = (*Memory)(nil)
