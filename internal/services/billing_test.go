package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger/memory"
	"gagyebu/internal/period"
)

func cardTx(typ core.TransactionType, amount int64, date core.Date) core.Transaction {
	return core.Transaction{
		UserID:     "u1",
		Title:      string(typ),
		Amount:     decimal.NewFromInt(amount),
		Date:       date,
		Type:       typ,
		AssetID:    "card",
		BudgetType: core.Personal,
	}
}

func payment(amount int64, date core.Date) core.Transaction {
	t := cardTx(core.Transfer, amount, date)
	t.AssetID = "bank"
	t.ToAssetID = "card"
	return t
}

func TestComputeBillingWindows(t *testing.T) {
	tests := []struct {
		name       string
		settlement int
		billing    int
		today      core.Date
		want       BillingWindows
	}{
		{
			name:       "before settlement",
			settlement: 15, billing: 20,
			today: core.NewDate(2025, 3, 10),
			want: BillingWindows{
				Billing:    period.Window{Start: core.NewDate(2025, 2, 15), End: core.NewDate(2025, 3, 14)},
				Unbilled:   period.Window{Start: core.NewDate(2025, 3, 15), End: core.NewDate(2025, 3, 10)},
				TransferIn: period.Window{Start: core.NewDate(2025, 2, 15), End: core.NewDate(2025, 3, 10)},
			},
		},
		{
			name:       "billing day already passed",
			settlement: 25, billing: 5,
			today: core.NewDate(2025, 3, 10),
			want: BillingWindows{
				Billing:    period.Window{Start: core.NewDate(2025, 2, 25), End: core.NewDate(2025, 3, 24)},
				Unbilled:   period.Window{Start: core.NewDate(2025, 3, 25), End: core.NewDate(2025, 3, 10)},
				TransferIn: period.Window{Start: core.NewDate(2025, 2, 25), End: core.NewDate(2025, 3, 5)},
			},
		},
		{
			name:       "after settlement",
			settlement: 15, billing: 25,
			today: core.NewDate(2025, 3, 20),
			want: BillingWindows{
				Billing:    period.Window{Start: core.NewDate(2025, 2, 15), End: core.NewDate(2025, 3, 14)},
				Unbilled:   period.Window{Start: core.NewDate(2025, 3, 15), End: core.NewDate(2025, 3, 20)},
				TransferIn: period.Window{Start: core.NewDate(2025, 2, 15), End: core.NewDate(2025, 3, 20)},
			},
		},
		{
			name:       "settlement day clamps in february",
			settlement: 31, billing: 31,
			today: core.NewDate(2025, 3, 10),
			want: BillingWindows{
				Billing:    period.Window{Start: core.NewDate(2025, 2, 28), End: core.NewDate(2025, 3, 30)},
				Unbilled:   period.Window{Start: core.NewDate(2025, 3, 31), End: core.NewDate(2025, 3, 10)},
				TransferIn: period.Window{Start: core.NewDate(2025, 2, 28), End: core.NewDate(2025, 3, 10)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBillingWindows(tt.settlement, tt.billing, tt.today)
			if got.Billing.String() != tt.want.Billing.String() ||
				got.Unbilled.String() != tt.want.Unbilled.String() ||
				got.TransferIn.String() != tt.want.TransferIn.String() {
				t.Errorf("ComputeBillingWindows() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSumBillingBeforeSettlement(t *testing.T) {
	master := cardTx(core.Expense, 1200000, core.NewDate(2025, 2, 16))
	master.ID = "m1"
	master.Installment = &core.Installment{TotalTerm: 12, CurrentTerm: 1, Day: 16, OriginalAmount: decimal.NewFromInt(1200000)}
	occurrence := cardTx(core.Expense, 100000, core.NewDate(2025, 2, 16))
	occurrence.Installment = &core.Installment{TotalTerm: 12, CurrentTerm: 1, Day: 16, MasterID: "m1", OriginalAmount: decimal.NewFromInt(1200000)}

	txs := []core.Transaction{
		cardTx(core.Expense, 100000, core.NewDate(2025, 2, 20)),
		cardTx(core.Expense, 50000, core.NewDate(2025, 3, 5)),
		cardTx(core.Income, 20000, core.NewDate(2025, 3, 1)),
		payment(30000, core.NewDate(2025, 3, 8)),
		master,
		occurrence,
	}

	w := ComputeBillingWindows(15, 20, core.NewDate(2025, 3, 10))
	got := SumBilling(txs, "card", w)

	if !got.CurrentBilling.Equal(decimal.NewFromInt(200000)) {
		t.Errorf("CurrentBilling = %s, want 200000", got.CurrentBilling)
	}
	if !got.NextBilling.IsZero() {
		t.Errorf("NextBilling = %s, want 0 for an empty unbilled window", got.NextBilling)
	}
}

func TestSumBillingAfterSettlement(t *testing.T) {
	w := ComputeBillingWindows(15, 25, core.NewDate(2025, 3, 20))

	tests := []struct {
		name        string
		txs         []core.Transaction
		wantCurrent int64
		wantNext    int64
	}{
		{
			name: "unbilled spend accrues to next",
			txs: []core.Transaction{
				cardTx(core.Expense, 80000, core.NewDate(2025, 3, 1)),
				cardTx(core.Expense, 40000, core.NewDate(2025, 3, 18)),
			},
			wantCurrent: 80000,
			wantNext:    40000,
		},
		{
			name: "transfers only pay down the current cycle",
			txs: []core.Transaction{
				cardTx(core.Expense, 80000, core.NewDate(2025, 3, 1)),
				cardTx(core.Expense, 40000, core.NewDate(2025, 3, 18)),
				payment(50000, core.NewDate(2025, 3, 19)),
			},
			wantCurrent: 30000,
			wantNext:    40000,
		},
		{
			name: "refunds floor at zero",
			txs: []core.Transaction{
				cardTx(core.Expense, 10000, core.NewDate(2025, 3, 1)),
				cardTx(core.Income, 25000, core.NewDate(2025, 3, 2)),
				cardTx(core.Expense, 5000, core.NewDate(2025, 3, 16)),
				cardTx(core.Income, 9000, core.NewDate(2025, 3, 17)),
			},
			wantCurrent: 0,
			wantNext:    0,
		},
		{
			name: "other assets are ignored",
			txs: []core.Transaction{
				func() core.Transaction {
					t := cardTx(core.Expense, 99000, core.NewDate(2025, 3, 1))
					t.AssetID = "other"
					return t
				}(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SumBilling(tt.txs, "card", w)
			if !got.CurrentBilling.Equal(decimal.NewFromInt(tt.wantCurrent)) {
				t.Errorf("CurrentBilling = %s, want %d", got.CurrentBilling, tt.wantCurrent)
			}
			if !got.NextBilling.Equal(decimal.NewFromInt(tt.wantNext)) {
				t.Errorf("NextBilling = %s, want %d", got.NextBilling, tt.wantNext)
			}
		})
	}
}

func TestBillingCalculator(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, tx := range []core.Transaction{
		cardTx(core.Expense, 100000, core.NewDate(2025, 2, 20)),
		cardTx(core.Expense, 70000, core.NewDate(2025, 1, 20)),
		payment(30000, core.NewDate(2025, 3, 8)),
	} {
		if _, err := store.InsertTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	calc := NewBillingCalculator(store)
	card := core.Asset{ID: "card", UserID: "u1", Kind: core.Card, SettlementDay: 15, BillingDay: 20}

	got, err := calc.AssetBillingAmounts(ctx, card, core.NewDate(2025, 3, 10))
	if err != nil {
		t.Fatalf("AssetBillingAmounts() error = %v", err)
	}
	if !got.CurrentBilling.Equal(decimal.NewFromInt(70000)) || !got.NextBilling.IsZero() {
		t.Errorf("AssetBillingAmounts() = %+v", got)
	}

	if _, err := calc.BillingAmounts(ctx, card, 0, 20, core.NewDate(2025, 3, 10)); !errors.Is(err, core.ErrValidation) {
		t.Errorf("settlement day 0: err = %v, want validation error", err)
	}
	if _, err := calc.AssetBillingAmounts(ctx, core.Asset{ID: "wallet", Kind: core.Cash}, core.NewDate(2025, 3, 10)); !errors.Is(err, core.ErrValidation) {
		t.Errorf("cash asset: err = %v, want validation error", err)
	}
}
