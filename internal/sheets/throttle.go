package sheets

import (
	"context"

	"gagyebu/internal/core"
)

// Waiter blocks until a call for key may proceed.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Throttled wraps an Exporter so every call first waits on the limiter.
// Reads and writes are counted under separate keys, the way the Sheets
// API meters them.
type Throttled struct {
	next    Exporter
	limiter Waiter
}

const (
	readKey  = "sheets:read"
	writeKey = "sheets:write"
)

var _ Exporter = (*Throttled)(nil)

func NewThrottled(next Exporter, limiter Waiter) *Throttled {
	return &Throttled{next: next, limiter: limiter}
}

func (t *Throttled) Append(ctx context.Context, tx core.Transaction, periodKey string) (string, error) {
	if err := t.limiter.Wait(ctx, writeKey); err != nil {
		return "", err
	}
	return t.next.Append(ctx, tx, periodKey)
}

func (t *Throttled) MarkDeleted(ctx context.Context, year int, transactionID string) error {
	if err := t.limiter.Wait(ctx, writeKey); err != nil {
		return err
	}
	return t.next.MarkDeleted(ctx, year, transactionID)
}

func (t *Throttled) ExportedIDs(ctx context.Context, year int) ([]string, error) {
	if err := t.limiter.Wait(ctx, readKey); err != nil {
		return nil, err
	}
	return t.next.ExportedIDs(ctx, year)
}
