package cache

import (
	"context"
	"path"
	"sync"
	"time"
)

// entry is one stored value with its expiry.
type entry struct {
	value     interface{}
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process Cache with TTL expiry and a background sweeper.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemory creates an in-memory cache. When sweepEvery is positive a
// background janitor removes expired entries at that interval until Close.
func NewMemory(sweepEvery time.Duration) *Memory {
	m := &Memory{
		entries: make(map[string]entry),
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go m.sweep(sweepEvery)
	}
	return m
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) (interface{}, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.expired(m.clock()) {
		return nil, false
	}
	return e.value, true
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.clock().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// InvalidatePattern implements Cache using path.Match glob semantics.
func (m *Memory) InvalidatePattern(_ context.Context, pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key := range m.entries {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the background sweeper.
func (m *Memory) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *Memory) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := m.clock()
			m.mu.Lock()
			for key, e := range m.entries {
				if e.expired(now) {
					delete(m.entries, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
