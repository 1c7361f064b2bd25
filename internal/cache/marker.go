package cache

import (
	"context"
	"time"

	"gagyebu/internal/ledger"
)

// MarkerCache is a device-local ledger.MarkerStore. Entries expire after the
// TTL, so a period's marker never outlives the period by much; losing one only
// costs a redundant ledger scan.
type MarkerCache struct {
	lru *LRUCache[time.Time]
}

var _ ledger.MarkerStore = (*MarkerCache)(nil)

func NewMarkerCache(maxSize int, ttl time.Duration) *MarkerCache {
	return &MarkerCache{lru: NewLRUCache[time.Time](maxSize, ttl)}
}

func (m *MarkerCache) GetMarker(_ context.Context, key string) (time.Time, bool, error) {
	ts, ok := m.lru.Get(key)
	return ts, ok, nil
}

func (m *MarkerCache) SetMarker(_ context.Context, key string, ts time.Time) error {
	m.lru.Set(key, ts)
	return nil
}

// CleanExpired implements Cleaner.
func (m *MarkerCache) CleanExpired() int {
	return m.lru.CleanExpired()
}

// LRU exposes the underlying cache, mainly for tests.
func (m *MarkerCache) LRU() *LRUCache[time.Time] {
	return m.lru
}

// LayeredMarkers serves markers from a MarkerCache and falls through to a
// durable store. Hits in the store are copied into the cache; writes go to
// both. A store error on read is returned only when the cache misses.
type LayeredMarkers struct {
	front *MarkerCache
	back  ledger.MarkerStore
}

var _ ledger.MarkerStore = (*LayeredMarkers)(nil)

func NewLayeredMarkers(front *MarkerCache, back ledger.MarkerStore) *LayeredMarkers {
	return &LayeredMarkers{front: front, back: back}
}

func (l *LayeredMarkers) GetMarker(ctx context.Context, key string) (time.Time, bool, error) {
	if ts, ok, _ := l.front.GetMarker(ctx, key); ok {
		return ts, true, nil
	}
	ts, ok, err := l.back.GetMarker(ctx, key)
	if err != nil || !ok {
		return ts, ok, err
	}
	l.front.SetMarker(ctx, key, ts)
	return ts, true, nil
}

func (l *LayeredMarkers) SetMarker(ctx context.Context, key string, ts time.Time) error {
	l.front.SetMarker(ctx, key, ts)
	return l.back.SetMarker(ctx, key, ts)
}
