// Package ratelimit keeps outbound API calls under a per-minute quota.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter counts calls per key in fixed windows.
type Limiter struct {
	mu           sync.Mutex
	keys         map[string]*window
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	now          func() time.Time

	// Configuration
	requestsPerWindow int
	window            time.Duration
	cleanupInterval   time.Duration
}

type window struct {
	start    time.Time
	requests int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
	CleanupInterval   time.Duration
}

// DefaultConfig matches the Sheets API per-user write quota.
func DefaultConfig() Config {
	return Config{
		RequestsPerWindow: 60,
		Window:            time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup loop. Call Stop when done.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = def.RequestsPerWindow
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	rl := &Limiter{
		keys:              make(map[string]*window),
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
		requestsPerWindow: config.RequestsPerWindow,
		window:            config.Window,
		cleanupInterval:   config.CleanupInterval,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a call for key fits the current window and counts it if so.
func (rl *Limiter) Allow(key string) bool {
	return rl.reserve(key) == 0
}

// Wait blocks until a call for key is allowed or ctx is done.
func (rl *Limiter) Wait(ctx context.Context, key string) error {
	for {
		d := rl.reserve(key)
		if d == 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve counts a call and returns 0, or returns how long until the window resets.
func (rl *Limiter) reserve(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.keys[key]
	if !ok {
		rl.keys[key] = &window{start: now, requests: 1}
		return 0
	}
	if now.Sub(w.start) >= rl.window {
		w.start = now
		w.requests = 1
		return 0
	}
	if w.requests < rl.requestsPerWindow {
		w.requests++
		return 0
	}
	return w.start.Add(rl.window).Sub(now)
}

// startCleanup runs periodic cleanup to remove stale key entries
func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries drops keys whose window ended more than one window ago.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.window)
	for key, w := range rl.keys {
		if w.start.Before(cutoff) {
			delete(rl.keys, key)
		}
	}
}

// ActiveKeys returns the number of currently tracked keys
func (rl *Limiter) ActiveKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.keys)
}

// Stop stops the cleanup loop. Safe to call more than once.
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
