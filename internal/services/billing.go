package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/period"
)

// BillingWindows are the date ranges a card balance is computed over.
// Unbilled is empty while today is still before this month's settlement day.
type BillingWindows struct {
	Billing    period.Window
	Unbilled   period.Window
	TransferIn period.Window
}

// ComputeBillingWindows derives the closed cycle, the accruing cycle and the
// range in which transfers into the card pay down the closed cycle.
func ComputeBillingWindows(settlementDay, billingDay int, today core.Date) BillingWindows {
	thisMonth := period.AnchorOf(today)
	settlement := thisMonth.Day(settlementDay)

	w := BillingWindows{
		Billing: period.Window{
			Start: thisMonth.Prev().Day(settlementDay),
			End:   settlement.AddDays(-1),
		},
		Unbilled: period.Window{Start: settlement, End: today},
	}

	transferEnd := today
	if today.Before(settlement) {
		if billing := thisMonth.Day(billingDay); billing.Before(today) {
			transferEnd = billing
		}
	}
	w.TransferIn = period.Window{Start: w.Billing.Start, End: transferEnd}
	return w
}

// SumBilling computes the card balances for assetID from txs. Installment
// masters never count as spend; both results floor at zero.
func SumBilling(txs []core.Transaction, assetID string, w BillingWindows) core.BillingAmounts {
	var (
		billedExpense, billedIncome     decimal.Decimal
		unbilledExpense, unbilledIncome decimal.Decimal
		transferIn                      decimal.Decimal
	)

	for _, t := range txs {
		switch {
		case t.Type == core.Transfer && t.ToAssetID == assetID:
			if w.TransferIn.Contains(t.Date) {
				transferIn = transferIn.Add(t.Amount)
			}
		case t.AssetID != assetID:
		case t.Type == core.Expense && t.Kind() != core.InstallmentMasterKind:
			if w.Billing.Contains(t.Date) {
				billedExpense = billedExpense.Add(t.Amount)
			}
			if w.Unbilled.Contains(t.Date) {
				unbilledExpense = unbilledExpense.Add(t.Amount)
			}
		case t.Type == core.Income:
			if w.Billing.Contains(t.Date) {
				billedIncome = billedIncome.Add(t.Amount)
			}
			if w.Unbilled.Contains(t.Date) {
				unbilledIncome = unbilledIncome.Add(t.Amount)
			}
		}
	}

	return core.BillingAmounts{
		CurrentBilling: floorZero(billedExpense.Sub(billedIncome).Sub(transferIn)),
		NextBilling:    floorZero(unbilledExpense.Sub(unbilledIncome)),
	}
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// BillingCalculator reads card activity from the ledger.
type BillingCalculator struct {
	ledger ledger.Ledger
}

func NewBillingCalculator(l ledger.Ledger) *BillingCalculator {
	return &BillingCalculator{ledger: l}
}

// BillingAmounts returns the card's amount due this cycle and the amount
// accrued for the next one.
func (c *BillingCalculator) BillingAmounts(ctx context.Context, asset core.Asset, settlementDay, billingDay int, today core.Date) (core.BillingAmounts, error) {
	if err := validDayOfMonth("settlement_day", settlementDay); err != nil {
		return core.BillingAmounts{}, err
	}
	if err := validDayOfMonth("billing_day", billingDay); err != nil {
		return core.BillingAmounts{}, err
	}

	w := ComputeBillingWindows(settlementDay, billingDay, today)
	to := today
	if to.Before(w.Billing.End) {
		to = w.Billing.End
	}

	spent, err := c.ledger.QueryTransactions(ctx, ledger.Query{
		UserID:  asset.UserID,
		From:    w.Billing.Start,
		To:      to,
		AssetID: asset.ID,
	})
	if err != nil {
		return core.BillingAmounts{}, &core.StoreError{Op: "query card activity", Err: err}
	}
	paid, err := c.ledger.QueryTransactions(ctx, ledger.Query{
		UserID:    asset.UserID,
		From:      w.TransferIn.Start,
		To:        w.TransferIn.End,
		Type:      core.Transfer,
		ToAssetID: asset.ID,
	})
	if err != nil {
		return core.BillingAmounts{}, &core.StoreError{Op: "query card payments", Err: err}
	}

	return SumBilling(append(spent, paid...), asset.ID, w), nil
}

// AssetBillingAmounts uses the settlement and billing days stored on the asset.
func (c *BillingCalculator) AssetBillingAmounts(ctx context.Context, asset core.Asset, today core.Date) (core.BillingAmounts, error) {
	if asset.Kind != core.Card {
		return core.BillingAmounts{}, &core.ValidationError{
			Field:  "asset",
			Reason: fmt.Sprintf("%s is a %s, not a card", asset.ID, asset.Kind),
		}
	}
	return c.BillingAmounts(ctx, asset, asset.SettlementDay, asset.BillingDay, today)
}

func validDayOfMonth(field string, day int) error {
	if day < 1 || day > 31 {
		return &core.ValidationError{Field: field, Reason: "must be between 1 and 31"}
	}
	return nil
}
