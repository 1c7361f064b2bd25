package sheets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/sheets"
	"gagyebu/internal/sheets/memory"
)

type countingWaiter struct {
	keys []string
	err  error
}

func (w *countingWaiter) Wait(_ context.Context, key string) error {
	w.keys = append(w.keys, key)
	return w.err
}

func TestThrottled(t *testing.T) {
	ctx := context.Background()
	waiter := &countingWaiter{}
	sheet := memory.New()
	exp := sheets.NewThrottled(sheet, waiter)

	tx := core.Transaction{ID: "t1", UserID: "u1", Title: "Coffee", Amount: decimal.NewFromInt(4500), Date: core.NewDate(2025, 3, 2), Type: core.Expense}
	if _, err := exp.Append(ctx, tx, "2025-3-1"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	ids, err := exp.ExportedIDs(ctx, 2025)
	if err != nil || len(ids) != 1 {
		t.Fatalf("ExportedIDs() = %v, %v", ids, err)
	}
	if err := exp.MarkDeleted(ctx, 2025, "t1"); err != nil {
		t.Fatalf("MarkDeleted() error = %v", err)
	}

	want := []string{"sheets:write", "sheets:read", "sheets:write"}
	if len(waiter.keys) != len(want) {
		t.Fatalf("waited on %v, want %v", waiter.keys, want)
	}
	for i := range want {
		if waiter.keys[i] != want[i] {
			t.Errorf("wait %d key = %s, want %s", i, waiter.keys[i], want[i])
		}
	}
}

func TestThrottled_WaitErrorSkipsCall(t *testing.T) {
	sheet := memory.New()
	exp := sheets.NewThrottled(sheet, &countingWaiter{err: context.Canceled})

	_, err := exp.Append(context.Background(), core.Transaction{ID: "t1", Date: core.NewDate(2025, 3, 2)}, "2025-3-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Append() error = %v, want context.Canceled", err)
	}
	ids, _ := sheet.ExportedIDs(context.Background(), 2025)
	if len(ids) != 0 {
		t.Errorf("rows = %v, want none", ids)
	}
}
