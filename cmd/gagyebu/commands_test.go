package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger/memory"
)

func newTestApp() (*app, *memory.Store, *bytes.Buffer) {
	store := memory.New()
	out := &bytes.Buffer{}
	return &app{
		store:           store,
		markers:         store,
		out:             out,
		defaultStartDay: 1,
		now:             func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) },
	}, store, out
}

func run(t *testing.T, a *app, out *bytes.Buffer, name string, args ...string) string {
	t.Helper()
	out.Reset()
	if err := commands[name].run(context.Background(), a, args); err != nil {
		t.Fatalf("%s %v: %v", name, args, err)
	}
	return out.String()
}

func TestCommandsEndToEnd(t *testing.T) {
	a, store, out := newTestApp()

	run(t, a, out, "settings", "-user", "u1", "-start-day", "1", "-budget", "1000000")
	run(t, a, out, "asset", "-user", "u1", "-id", "card", "-name", "Visa", "-kind", "card", "-settlement-day", "15", "-billing-day", "20")
	run(t, a, out, "category", "-user", "u1", "-id", "rent", "-type", "fixed")
	run(t, a, out, "fixed", "-user", "u1", "-name", "Rent", "-amount", "700000", "-day", "5", "-category", "rent")

	got := run(t, a, out, "purchase", "-user", "u1", "-title", "Laptop", "-amount", "300000", "-terms", "3", "-date", "2025-03-10", "-asset", "card")
	if !strings.Contains(got, "100000 x 3") {
		t.Errorf("purchase output = %q", got)
	}

	got = run(t, a, out, "period", "-user", "u1")
	if !strings.Contains(got, "window 2025-03-01..2025-03-31") || !strings.Contains(got, "key 2025-3-1") {
		t.Errorf("period output = %q", got)
	}

	got = run(t, a, out, "generate", "-user", "u1")
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 || strings.Join(strings.Fields(lines[1]), " ") != "u1 2025-3-1 1 1 0 0" {
		t.Errorf("generate output = %q", got)
	}

	// A second run is short-circuited by the markers.
	run(t, a, out, "generate")
	if n := len(store.Transactions()); n != 3 {
		t.Errorf("%d ledger records after rerun, want 3", n)
	}

	got = run(t, a, out, "billing", "-user", "u1", "-asset", "card")
	if got != "Visa  current 100000  next 0\n" {
		t.Errorf("billing output = %q", got)
	}

	got = run(t, a, out, "budget", "-user", "u1")
	if !strings.Contains(got, "period 2025-03-01..2025-03-31 (all)") || !strings.Contains(got, "remaining") {
		t.Errorf("budget output = %q", got)
	}
}

func TestPeriodUsesDefaultStartDay(t *testing.T) {
	a, _, out := newTestApp()
	a.defaultStartDay = 25

	got := run(t, a, out, "period", "-user", "nobody", "-today", "2025-03-10")
	if !strings.Contains(got, "window 2025-02-25..2025-03-24") {
		t.Errorf("period output = %q", got)
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		args    []string
		wantErr error
		wantMsg string
	}{
		{"missing user", "period", nil, nil, "missing -user"},
		{"bad date", "period", []string{"-user", "u1", "-today", "10/03/2025"}, nil, ""},
		{"unknown filter", "budget", []string{"-user", "u1", "-filter", "family"}, core.ErrValidation, ""},
		{"zero amount", "fixed", []string{"-user", "u1", "-name", "Gym", "-amount", "0"}, core.ErrValidation, ""},
		{"card without days", "asset", []string{"-user", "u1", "-id", "c", "-kind", "card"}, core.ErrValidation, ""},
		{"unknown asset", "billing", []string{"-user", "u1", "-asset", "nope"}, core.ErrNotFound, ""},
		{"start day out of range", "settings", []string{"-user", "u1", "-start-day", "40"}, core.ErrValidation, ""},
		{"help", "generate", []string{"-h"}, flag.ErrHelp, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, _ := newTestApp()
			err := commands[tt.cmd].run(context.Background(), a, tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestCommandOrderCoversAllCommands(t *testing.T) {
	if len(commandOrder) != len(commands) {
		t.Fatalf("commandOrder lists %d commands, map has %d", len(commandOrder), len(commands))
	}
	for _, name := range commandOrder {
		if _, ok := commands[name]; !ok {
			t.Errorf("command %q has no entry", name)
		}
	}
}
