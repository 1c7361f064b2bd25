// Package backend builds the ledger store selected by DATA_BACKEND.
package backend

import (
	"context"
	"time"

	"gagyebu/internal/ledger"
)

// CleanupFunc releases the resources behind a backend.
type CleanupFunc func() error

// Result is a ready store plus the marker store generation should use.
// Markers is the store itself, or a cache layered in front of it.
type Result struct {
	Store   ledger.Store
	Markers ledger.MarkerStore
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	PostgresURL  string

	// MarkerCacheSize 0 disables the in-process marker cache.
	MarkerCacheSize int
	MarkerCacheTTL  time.Duration
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
