package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
)

// Domain separates the marker namespaces of the two generators.
type Domain string

const (
	DomainFixed       Domain = "fixed"
	DomainInstallment Domain = "installment"
)

// MarkerKey is the marker-store key for (userID, periodKey, domain).
func MarkerKey(userID, periodKey string, domain Domain) string {
	return fmt.Sprintf("generation:%s:%s:%s", userID, periodKey, domain)
}

// IdempotencyGate records that generation already ran for a period. It is
// not safe across devices or processes; the ledger existence check is what
// keeps occurrences unique.
type IdempotencyGate struct {
	store ledger.MarkerStore
}

func NewIdempotencyGate(store ledger.MarkerStore) *IdempotencyGate {
	return &IdempotencyGate{store: store}
}

// HasMarker reports whether a marker exists. Store errors are returned
// wrapped in a *core.StoreError.
func (g *IdempotencyGate) HasMarker(ctx context.Context, userID, periodKey string, domain Domain) (bool, error) {
	if g == nil || g.store == nil {
		return false, nil
	}
	_, ok, err := g.store.GetMarker(ctx, MarkerKey(userID, periodKey, domain))
	if err != nil {
		return false, &core.StoreError{Op: "get marker", Err: err}
	}
	return ok, nil
}

// SetMarker writes the marker. Writing the same key twice is harmless.
func (g *IdempotencyGate) SetMarker(ctx context.Context, userID, periodKey string, domain Domain, ts time.Time) error {
	if g == nil || g.store == nil {
		return nil
	}
	if err := g.store.SetMarker(ctx, MarkerKey(userID, periodKey, domain), ts); err != nil {
		return &core.StoreError{Op: "set marker", Err: err}
	}
	return nil
}

// ShouldGenerate is false only when a marker is known to exist. An
// unreadable marker store means "generate": the existence check still
// prevents duplicates.
func (g *IdempotencyGate) ShouldGenerate(ctx context.Context, userID, periodKey string, domain Domain) bool {
	ok, err := g.HasMarker(ctx, userID, periodKey, domain)
	if err != nil {
		slog.WarnContext(ctx, "Marker store unavailable, falling back to ledger checks",
			"user_id", userID,
			"period_key", periodKey,
			"domain", domain,
			"error", err)
		return true
	}
	return !ok
}
