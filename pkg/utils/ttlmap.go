package utils

import (
	"sync"
	"time"
)

// TTLMap provides a thread-safe map with expiring entries and an optional size bound.
// When the bound is reached the entry closest to expiry is evicted.
type TTLMap[K comparable, V any] struct {
	mu       sync.RWMutex
	data     map[K]V
	expires  map[K]time.Time
	ttl      time.Duration
	capacity int
	stop     chan struct{}
	stopOnce sync.Once
}

// NewBoundedTTLMap creates a TTLMap holding at most capacity entries.
// A capacity of zero or less means unbounded.
func NewBoundedTTLMap[K comparable, V any](ttl time.Duration, capacity int) *TTLMap[K, V] {
	m := &TTLMap[K, V]{
		data:     make(map[K]V),
		expires:  make(map[K]time.Time),
		ttl:      ttl,
		capacity: capacity,
		stop:     make(chan struct{}),
	}

	go m.cleanup()

	return m
}

// Get retrieves a value from the map.
// Returns the value and whether it exists/is valid.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists || time.Now().After(m.expires[key]) {
		var zero V
		return zero, false
	}

	return value, true
}

// Set adds or updates a value in the map.
func (m *TTLMap[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && m.capacity > 0 && len(m.data) >= m.capacity {
		m.evictLocked()
	}

	m.data[key] = value
	m.expires[key] = time.Now().Add(m.ttl)
}

// Len returns the number of stored entries, including expired ones not yet cleaned up.
func (m *TTLMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Close stops the background cleanup goroutine.
func (m *TTLMap[K, V]) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

// evictLocked removes expired entries, or the entry expiring soonest if none are expired.
func (m *TTLMap[K, V]) evictLocked() {
	now := time.Now()

	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)

	for key, expires := range m.expires {
		if now.After(expires) {
			delete(m.data, key)
			delete(m.expires, key)

			continue
		}

		if !found || expires.Before(oldest) {
			oldestKey, oldest, found = key, expires, true
		}
	}

	if found && len(m.data) >= m.capacity {
		delete(m.data, oldestKey)
		delete(m.expires, oldestKey)
	}
}

// cleanup periodically removes expired entries.
func (m *TTLMap[K, V]) cleanup() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, expires := range m.expires {
				if now.After(expires) {
					delete(m.data, key)
					delete(m.expires, key)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}
