// Package cache holds the process-local LRU used as the generation-marker
// store, plus a manager that evicts expired entries on an interval.
package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic cleanup over registered caches.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager. Call before StartCleanup.
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	m.started = true
	go m.cleanup(ctx, interval)
}

// CleanNow runs one cleanup pass and returns the number of evicted entries.
func (m *Manager) CleanNow() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) cleanup(ctx context.Context, interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				slog.DebugContext(ctx, "Evicted expired cache entries", "count", n)
			}
		case <-m.stopCleanup:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the cleanup routine and waits for it to exit.
func (m *Manager) Stop() {
	select {
	case <-m.stopCleanup:
		return
	default:
		close(m.stopCleanup)
	}
	if m.started {
		<-m.cleanupDone
	}
}
