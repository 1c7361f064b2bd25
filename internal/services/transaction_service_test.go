package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/ledger/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.TransactionMessage
	err  error
}

func (p *recordingPublisher) PublishTransaction(_ context.Context, msg *amqp.TransactionMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestTransactionService_CreateTransaction(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.AddCategory(core.Category{ID: "food", UserID: "u1", Name: "Food", Type: core.Variable})
	store.AddAsset(core.Asset{ID: "card", UserID: "u1", Name: "Card", Kind: core.Card})

	valid := core.Transaction{
		UserID:     "u1",
		Title:      "  Groceries ",
		Amount:     decimal.NewFromInt(42000),
		Date:       core.NewDate(2025, 3, 2),
		Type:       core.Expense,
		CategoryID: "food",
		AssetID:    "card",
		BudgetType: core.Personal,
	}

	tests := []struct {
		name    string
		mutate  func(*core.Transaction)
		wantErr error
	}{
		{"valid", func(*core.Transaction) {}, nil},
		{"zero amount", func(t *core.Transaction) { t.Amount = decimal.Zero }, core.ErrValidation},
		{"missing category", func(t *core.Transaction) { t.CategoryID = "nope" }, core.ErrNotFound},
		{"missing asset", func(t *core.Transaction) { t.AssetID = "nope" }, core.ErrNotFound},
		{"transfer without destination", func(t *core.Transaction) { t.Type = core.Transfer }, core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			svc := NewTransactionService(store, store, pub)
			before := len(store.Transactions())

			tx := valid
			tt.mutate(&tx)
			saved, err := svc.CreateTransaction(ctx, tx)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if len(store.Transactions()) != before {
					t.Fatal("rejected transaction must not be written")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateTransaction() error = %v", err)
			}
			if saved.ID == "" || saved.Title != "Groceries" {
				t.Errorf("saved = %+v", saved)
			}
			if len(pub.msgs) != 1 || pub.msgs[0].Event != amqp.EventTransactionCreated {
				t.Errorf("published = %+v", pub.msgs)
			}
		})
	}
}

func TestTransactionService_PublishFailureDoesNotFailWrite(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{err: errors.New("circuit breaker is open")}
	svc := NewTransactionService(store, nil, pub)

	_, err := svc.CreateTransaction(context.Background(), core.Transaction{
		UserID: "u1", Title: "Coffee", Amount: decimal.NewFromInt(4500),
		Date: core.NewDate(2025, 3, 2), Type: core.Expense, BudgetType: core.Personal,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if len(store.Transactions()) != 1 {
		t.Fatal("transaction should be stored")
	}
}

func TestTransactionService_DeleteMasterCascades(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	master := createPurchase(t, store, 90000, 3, core.NewDate(2025, 1, 10))

	for _, month := range []time.Month{time.January, time.February} {
		engine := newEngine(store, false, fixedClock(2025, month, 20))
		if _, err := engine.GenerateInstallmentOccurrences(ctx, "u1", 1); err != nil {
			t.Fatal(err)
		}
	}
	if n := countKind(store, core.InstallmentOccurrence); n != 2 {
		t.Fatalf("occurrences = %d, want 2", n)
	}

	pub := &recordingPublisher{}
	svc := NewTransactionService(store, nil, pub)
	if err := svc.DeleteTransaction(ctx, master.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if n := len(store.Transactions()); n != 0 {
		t.Fatalf("%d records left, want 0", n)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].Event != amqp.EventTransactionDeleted {
		t.Errorf("published = %+v", pub.msgs)
	}

	if err := svc.DeleteTransaction(ctx, master.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete err = %v, want not found", err)
	}
}

func TestCreateInstallmentPurchaseDefaults(t *testing.T) {
	store := memory.New()
	master := createPurchase(t, store, 100000, 3, core.NewDate(2025, 1, 31))

	if master.Kind() != core.InstallmentMasterKind {
		t.Fatalf("kind = %s", master.Kind())
	}
	in := master.Installment
	if in.CurrentTerm != 1 || in.Day != 31 || !in.OriginalAmount.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("installment = %+v", in)
	}
}
