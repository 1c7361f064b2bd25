package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func validTransaction() Transaction {
	return Transaction{
		UserID:                 "u1",
		Title:                  "Groceries",
		Amount:                 decimal.NewFromInt(12000),
		Date:                   NewDate(2025, 3, 4),
		Type:                   Expense,
		BudgetType:             Personal,
		IncludeInLivingExpense: true,
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"missing user", func(tx *Transaction) { tx.UserID = "" }},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }},
		{"empty title", func(tx *Transaction) { tx.Title = "  " }},
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }},
		{"unknown type", func(tx *Transaction) { tx.Type = "gift" }},
		{"transfer without destination", func(tx *Transaction) { tx.Type = Transfer }},
		{"expense with destination", func(tx *Transaction) { tx.ToAssetID = "card" }},
		{"unknown budget type", func(tx *Transaction) { tx.BudgetType = "shared" }},
		{"term above total", func(tx *Transaction) {
			tx.Installment = &Installment{TotalTerm: 3, CurrentTerm: 4, Day: 1, OriginalAmount: decimal.NewFromInt(3)}
		}},
		{"term zero", func(tx *Transaction) {
			tx.Installment = &Installment{TotalTerm: 3, CurrentTerm: 0, Day: 1, OriginalAmount: decimal.NewFromInt(3)}
		}},
		{"installment day out of range", func(tx *Transaction) {
			tx.Installment = &Installment{TotalTerm: 3, CurrentTerm: 1, Day: 32, OriginalAmount: decimal.NewFromInt(3)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := validTransaction()
			tt.mutate(&tx)
			err := tx.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestTransactionKind(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want EntryKind
	}{
		{"plain", Transaction{}, PlainEntry},
		{"fixed occurrence", Transaction{FixedItemID: "f1"}, FixedOccurrence},
		{"master", Transaction{Installment: &Installment{TotalTerm: 3, CurrentTerm: 1}}, InstallmentMasterKind},
		{"occurrence", Transaction{Installment: &Installment{TotalTerm: 3, CurrentTerm: 2, MasterID: "m1"}}, InstallmentOccurrence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.Kind(); got != tt.want {
				t.Errorf("Kind() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMasterFromTransaction(t *testing.T) {
	tx := validTransaction()
	tx.ID = "m1"
	tx.Date = NewDate(2025, 1, 20)
	tx.Installment = &Installment{TotalTerm: 12, CurrentTerm: 3, Day: 20}

	m, err := MasterFromTransaction(tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.StartYear != 2025 || m.StartMonth != time.January {
		t.Errorf("start = %d-%d, want 2025-1", m.StartYear, m.StartMonth)
	}
	if !m.OriginalAmount().Equal(tx.Amount) {
		t.Errorf("OriginalAmount() fallback = %s, want %s", m.OriginalAmount(), tx.Amount)
	}

	tx.Installment.MasterID = "other"
	if _, err := MasterFromTransaction(tx); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for occurrence, got %v", err)
	}
}

func TestFixedItemValidate(t *testing.T) {
	good := FixedItem{
		UserID:     "u1",
		Name:       "Rent",
		Type:       Fixed,
		Amount:     decimal.NewFromInt(500000),
		Day:        31,
		BudgetType: Joint,
		IsActive:   true,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.Day = 0
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for day 0, got %v", err)
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("asset", "a1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
