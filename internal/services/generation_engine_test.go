package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/ledger/memory"
	"gagyebu/internal/period"
)

func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 9, 0, 0, 0, time.UTC) }
}

func newEngine(store *memory.Store, withMarkers bool, now func() time.Time) *GenerationEngine {
	var gate *IdempotencyGate
	if withMarkers {
		gate = NewIdempotencyGate(store)
	}
	return NewGenerationEngine(store, store, gate, NewTransactionService(store, nil, nil)).WithClock(now)
}

func seedFixedItems(store *memory.Store) []core.FixedItem {
	return []core.FixedItem{
		store.AddFixedItem(core.FixedItem{UserID: "u1", Name: "Phone", Type: core.Fixed, Amount: decimal.NewFromInt(55000), Day: 3, BudgetType: core.Personal, IsActive: true}),
		store.AddFixedItem(core.FixedItem{UserID: "u1", Name: "Rent", Type: core.Fixed, Amount: decimal.NewFromInt(700000), Day: 10, BudgetType: core.Joint, IsActive: true}),
	}
}

func countKind(store *memory.Store, kind core.EntryKind) int {
	n := 0
	for _, t := range store.Transactions() {
		if t.Kind() == kind {
			n++
		}
	}
	return n
}

func TestGenerateFixedOccurrencesIdempotence(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		withMarkers bool
		second      GenerationResult
	}{
		{"marker short-circuits second call", true, GenerationResult{ShortCircuited: true}},
		{"existence check skips without markers", false, GenerationResult{Skipped: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			items := seedFixedItems(store)
			engine := newEngine(store, tt.withMarkers, fixedClock(2025, time.March, 10))

			first, err := engine.GenerateFixedOccurrences(ctx, "u1", items, 5)
			if err != nil {
				t.Fatalf("first call: %v", err)
			}
			if first != (GenerationResult{Generated: 2}) {
				t.Fatalf("first call = %+v, want 2 generated", first)
			}

			second, err := engine.GenerateFixedOccurrences(ctx, "u1", items, 5)
			if err != nil {
				t.Fatalf("second call: %v", err)
			}
			if second != tt.second {
				t.Fatalf("second call = %+v, want %+v", second, tt.second)
			}
			if n := countKind(store, core.FixedOccurrence); n != 2 {
				t.Fatalf("stored %d fixed occurrences, want 2", n)
			}
		})
	}
}

func TestGenerateFixedOccurrencesDates(t *testing.T) {
	store := memory.New()
	items := seedFixedItems(store)
	engine := newEngine(store, true, fixedClock(2025, time.March, 10))

	if _, err := engine.GenerateFixedOccurrences(context.Background(), "u1", items, 5); err != nil {
		t.Fatal(err)
	}

	want := map[string]core.Date{
		"Phone": core.NewDate(2025, 4, 3),
		"Rent":  core.NewDate(2025, 3, 10),
	}
	for _, tx := range store.Transactions() {
		if !tx.Date.Equal(want[tx.Title]) {
			t.Errorf("%s date = %s, want %s", tx.Title, tx.Date, want[tx.Title])
		}
		if tx.IncludeInLivingExpense {
			t.Errorf("%s should be excluded from living expense", tx.Title)
		}
		if tx.Type != core.Expense || tx.Kind() != core.FixedOccurrence {
			t.Errorf("%s: type %s kind %s", tx.Title, tx.Type, tx.Kind())
		}
	}

	if ok, _ := engine.gate.HasMarker(context.Background(), "u1", "2025-3-5", DomainFixed); !ok {
		t.Error("expected fixed marker for period 2025-3-5")
	}
}

func TestGenerateFixedOccurrencesClampedStartDay(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	items := []core.FixedItem{
		store.AddFixedItem(core.FixedItem{UserID: "u1", Name: "Gym", Type: core.Fixed, Amount: decimal.NewFromInt(60000), Day: 29, BudgetType: core.Personal, IsActive: true}),
	}

	for _, now := range []func() time.Time{fixedClock(2025, time.February, 1), fixedClock(2025, time.March, 1)} {
		engine := newEngine(store, true, now)
		res, err := engine.GenerateFixedOccurrences(ctx, "u1", items, 30)
		if err != nil {
			t.Fatal(err)
		}
		if res.Generated != 1 {
			t.Fatalf("result = %+v, want 1 generated", res)
		}
	}

	for _, m := range []time.Month{time.January, time.February} {
		w, err := period.WindowFor(2025, m, 30)
		if err != nil {
			t.Fatal(err)
		}
		n := 0
		for _, tx := range store.Transactions() {
			if w.Contains(tx.Date) {
				n++
			}
		}
		if n != 1 {
			t.Errorf("period %s holds %d occurrences, want 1", w, n)
		}
	}
}

func TestGenerateFixedOccurrencesNoMarkerWhenAllSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	items := seedFixedItems(store)

	// Generate without markers, then run with markers: everything exists.
	if _, err := newEngine(store, false, fixedClock(2025, time.March, 10)).GenerateFixedOccurrences(ctx, "u1", items, 5); err != nil {
		t.Fatal(err)
	}
	engine := newEngine(store, true, fixedClock(2025, time.March, 10))
	res, err := engine.GenerateFixedOccurrences(ctx, "u1", items, 5)
	if err != nil {
		t.Fatal(err)
	}
	if res != (GenerationResult{Skipped: 2}) {
		t.Fatalf("result = %+v", res)
	}
	if ok, _ := engine.gate.HasMarker(ctx, "u1", "2025-3-5", DomainFixed); ok {
		t.Fatal("all-skipped fixed pass must not write a marker")
	}
}

func TestGenerateFixedOccurrencesContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	items := seedFixedItems(store)
	store.InsertHook = func(tx core.Transaction) error {
		if tx.Title == "Phone" {
			return errors.New("connection refused")
		}
		return nil
	}
	engine := newEngine(store, true, fixedClock(2025, time.March, 10))

	res, err := engine.GenerateFixedOccurrences(ctx, "u1", items, 5)
	if err != nil {
		t.Fatalf("per-item failure should not fail the batch: %v", err)
	}
	if res != (GenerationResult{Generated: 1, Skipped: 1, Failed: 1}) {
		t.Fatalf("result = %+v", res)
	}
}

func TestGenerateFixedOccurrencesRejectsInvalidStartDay(t *testing.T) {
	store := memory.New()
	engine := newEngine(store, true, fixedClock(2025, time.March, 10))

	_, err := engine.GenerateFixedOccurrences(context.Background(), "u1", seedFixedItems(store), 0)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(store.Transactions()) != 0 {
		t.Fatal("no records should be written")
	}
}

type failingFixedItems struct{}

func (failingFixedItems) ListActiveFixedItems(context.Context, string) ([]core.FixedItem, error) {
	return nil, errors.New("connection refused")
}

func TestGenerateFixedForUserPropagatesFetchFailure(t *testing.T) {
	store := memory.New()
	engine := NewGenerationEngine(store, failingFixedItems{}, NewIdempotencyGate(store), nil).
		WithClock(fixedClock(2025, time.March, 10))

	_, err := engine.GenerateFixedForUser(context.Background(), "u1", 1)
	var storeErr *core.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want *core.StoreError", err)
	}
}

func TestGenerateFixedOccurrencesConcurrentCalls(t *testing.T) {
	store := memory.New()
	items := seedFixedItems(store)
	engine := newEngine(store, false, fixedClock(2025, time.March, 10))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.GenerateFixedOccurrences(context.Background(), "u1", items, 5); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := countKind(store, core.FixedOccurrence); n != 2 {
		t.Fatalf("stored %d fixed occurrences, want 2", n)
	}
}

func createPurchase(t *testing.T, store *memory.Store, amount int64, terms int, date core.Date) core.Transaction {
	t.Helper()
	svc := NewTransactionService(store, nil, nil)
	master, err := svc.CreateInstallmentPurchase(context.Background(), InstallmentPurchase{
		UserID:     "u1",
		Title:      "Laptop",
		Amount:     decimal.NewFromInt(amount),
		Date:       date,
		TotalTerm:  terms,
		BudgetType: core.Personal,

		IncludeInLivingExpense: true,
	})
	if err != nil {
		t.Fatalf("CreateInstallmentPurchase: %v", err)
	}
	return master
}

func TestGenerateInstallmentOccurrencesAcrossTerms(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	master := createPurchase(t, store, 100000, 3, core.NewDate(2025, 1, 10))

	for i, month := range []time.Month{time.January, time.February, time.March} {
		engine := newEngine(store, true, fixedClock(2025, month, 15))
		res, err := engine.GenerateInstallmentOccurrences(ctx, "u1", 1)
		if err != nil {
			t.Fatalf("%s: %v", month, err)
		}
		if res != (GenerationResult{Generated: 1}) {
			t.Fatalf("%s: result = %+v", month, res)
		}

		occs, err := store.QueryTransactions(ctx, ledger.Query{MasterID: master.ID, From: core.NewDate(2025, month, 1), To: core.NewDate(2025, month, 28)})
		if err != nil || len(occs) != 1 {
			t.Fatalf("%s: occurrences = %v, %v", month, occs, err)
		}
		occ := occs[0]
		if occ.Installment.CurrentTerm != i+1 {
			t.Errorf("%s: term = %d, want %d", month, occ.Installment.CurrentTerm, i+1)
		}
		if !occ.Amount.Equal(decimal.NewFromInt(33333)) {
			t.Errorf("%s: amount = %s, want 33333", month, occ.Amount)
		}
		if !occ.Date.Equal(core.NewDate(2025, month, 10)) {
			t.Errorf("%s: date = %s", month, occ.Date)
		}
		if !occ.IncludeInLivingExpense {
			t.Errorf("%s: occurrence should inherit includeInLivingExpense", month)
		}
	}

	// Completed: nothing due, marker still written.
	engine := newEngine(store, true, fixedClock(2025, time.April, 15))
	res, err := engine.GenerateInstallmentOccurrences(ctx, "u1", 1)
	if err != nil || res != (GenerationResult{}) {
		t.Fatalf("April = %+v, %v", res, err)
	}
	res, _ = engine.GenerateInstallmentOccurrences(ctx, "u1", 1)
	if !res.ShortCircuited {
		t.Fatalf("second April call = %+v, want short-circuit", res)
	}
	if n := countKind(store, core.InstallmentOccurrence); n != 3 {
		t.Fatalf("stored %d occurrences, want 3", n)
	}
}

func TestGenerateInstallmentOccurrencesNoMarkerAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	createPurchase(t, store, 120000, 12, core.NewDate(2025, 3, 5))
	store.InsertHook = func(core.Transaction) error { return errors.New("broken pipe") }

	engine := newEngine(store, true, fixedClock(2025, time.March, 20))
	res, err := engine.GenerateInstallmentOccurrences(ctx, "u1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if res != (GenerationResult{Skipped: 1, Failed: 1}) {
		t.Fatalf("result = %+v", res)
	}

	store.InsertHook = nil
	res, err = engine.GenerateInstallmentOccurrences(ctx, "u1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if res != (GenerationResult{Generated: 1}) {
		t.Fatalf("retry = %+v, want 1 generated", res)
	}
}

// mislabeledLedger answers the master query with a plain record.
type mislabeledLedger struct {
	*memory.Store
}

func (l mislabeledLedger) QueryTransactions(context.Context, ledger.Query) ([]core.Transaction, error) {
	return []core.Transaction{{
		ID: "p1", UserID: "u1", Title: "Coffee", Amount: decimal.NewFromInt(4500),
		Date: core.NewDate(2025, 3, 2), Type: core.Expense, BudgetType: core.Personal,
	}}, nil
}

func TestGenerateInstallmentOccurrencesLogsMalformedMaster(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	store := memory.New()
	l := mislabeledLedger{store}
	engine := NewGenerationEngine(l, store, nil, NewTransactionService(l, nil, nil)).
		WithClock(fixedClock(2025, time.March, 20))

	res, err := engine.GenerateInstallmentOccurrences(context.Background(), "u1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if res != (GenerationResult{}) {
		t.Fatalf("result = %+v, want nothing generated", res)
	}
	if got := buf.String(); !strings.Contains(got, "Skipping malformed installment master") || !strings.Contains(got, "master_id=p1") {
		t.Errorf("log output = %q", got)
	}
}

func TestGenerateAll(t *testing.T) {
	store := memory.New()
	seedFixedItems(store)
	createPurchase(t, store, 300000, 3, core.NewDate(2025, 2, 20))
	engine := newEngine(store, true, fixedClock(2025, time.March, 10))

	report, err := engine.GenerateAll(context.Background(), core.UserSettings{UserID: "u1", MonthStartDay: 5})
	if err != nil {
		t.Fatal(err)
	}
	if report.PeriodKey != "2025-3-5" {
		t.Errorf("PeriodKey = %q", report.PeriodKey)
	}
	if report.Fixed.Generated != 2 || report.Installment.Generated != 1 {
		t.Errorf("report = %+v", report)
	}
}
