// Package trace tags a unit of work (a generation pass, one consumed event)
// with an id that every log record written under its context carries.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

type contextKey string

const runIDKey contextKey = "run_id"

// FieldRunID is the log attribute the handler adds.
const FieldRunID = "run_id"

// NewRunID creates a short random id with the given prefix, e.g. "gen_3f9a...".
func NewRunID(prefix string) string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return prefix + "_" + hex.EncodeToString(b)
}

// WithRunID returns ctx carrying id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// Start is WithRunID(ctx, NewRunID(prefix)).
func Start(ctx context.Context, prefix string) (context.Context, string) {
	id := NewRunID(prefix)
	return WithRunID(ctx, id), id
}

// RunID extracts the run id from ctx, or "".
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Handler adds the context's run id to every record passed to next.
type Handler struct {
	next slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id := RunID(ctx); id != "" {
		r = r.Clone()
		r.AddAttrs(slog.String(FieldRunID, id))
	}
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}
