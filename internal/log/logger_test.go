package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"gagyebu/internal/trace"
)

func TestNew_TextHandlerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentGeneration, Output: &buf})

	l.Info("Generation finished", FieldUserID, "u1")
	l.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=generation") || !strings.Contains(out, "user_id=u1") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at info level")
	}
	if l.Component() != ComponentGeneration {
		t.Errorf("Component() = %q", l.Component())
	}
}

func TestNew_JSONHandler(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Output: &buf, JSON: true})

	fields := NewFields().
		WithOperation(OpGenerate).
		WithPeriod("u1", "2025-3-25").
		WithCounts(2, 1, 0).
		WithError(errors.New("boom"))
	l.WithFields(fields).Warn("Partial generation")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	want := map[string]any{
		FieldComponent: ComponentApp,
		FieldOperation: OpGenerate,
		FieldUserID:    "u1",
		FieldPeriodKey: "2025-3-25",
		FieldError:     "boom",
		FieldGenerated: float64(2),
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
	if !l.Enabled(slog.LevelDebug) {
		t.Error("debug should be enabled")
	}
}

func TestLogFields_WithNilError(t *testing.T) {
	f := NewFields().WithError(nil)
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should not add a field")
	}
	if got := len(NewFields().WithComponent(ComponentCLI).ToSlice()); got != 2 {
		t.Errorf("ToSlice() len = %d, want 2", got)
	}
}

func TestNew_AddsRunIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Output: &buf})

	ctx := trace.WithRunID(context.Background(), "gen_1")
	l.InfoContext(ctx, "Generation started")

	if !strings.Contains(buf.String(), "run_id=gen_1") {
		t.Errorf("output = %q", buf.String())
	}
}
