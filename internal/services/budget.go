package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/period"
)

// EffectiveAmount is the per-term amount of an installment record. It
// divides whatever the record carries, so an occurrence that already holds
// the per-term amount is divided a second time. Only masters should be
// passed here when the true monthly amount is wanted.
func EffectiveAmount(t core.Transaction) decimal.Decimal {
	if t.IsInstallment() && t.Installment.TotalTerm > 0 {
		return AmortizedAmount(t.Amount, t.Installment.TotalTerm)
	}
	return t.Amount
}

// IncludedInExpense reports whether an expense counts toward spend.
// Installments count only when marked as living expense.
func IncludedInExpense(t core.Transaction) bool {
	if t.Type != core.Expense {
		return false
	}
	if !t.IsInstallment() {
		return true
	}
	return t.IncludeInLivingExpense
}

func matchesBudget(t core.Transaction, filter core.BudgetFilter) bool {
	switch filter {
	case core.PersonalBudgets:
		return t.BudgetType == core.Personal
	case core.JointBudgets:
		return t.BudgetType == core.Joint
	default:
		return true
	}
}

// Aggregate summarizes txs against budget. A master whose occurrences are
// also in txs is skipped so the purchase is not counted twice. Fixed expense
// is decided by category type alone.
func Aggregate(txs []core.Transaction, categories []core.Category, filter core.BudgetFilter, budget decimal.Decimal) core.BudgetSummary {
	fixedCategory := make(map[string]bool, len(categories))
	for _, c := range categories {
		fixedCategory[c.ID] = c.Type == core.Fixed
	}

	amortized := make(map[string]bool)
	for _, t := range txs {
		if id := t.InstallmentID(); id != "" {
			amortized[id] = true
		}
	}

	s := core.BudgetSummary{Budget: budget}
	for _, t := range txs {
		if !matchesBudget(t, filter) {
			continue
		}
		if t.Kind() == core.InstallmentMasterKind && amortized[t.ID] {
			continue
		}

		amount := EffectiveAmount(t)
		switch t.Type {
		case core.Income:
			s.TotalIncome = s.TotalIncome.Add(amount)
			continue
		case core.Transfer:
			continue
		}
		if !IncludedInExpense(t) {
			continue
		}

		s.TotalExpense = s.TotalExpense.Add(amount)
		if t.BudgetType == core.Joint {
			s.JointExpense = s.JointExpense.Add(amount)
		} else {
			s.PersonalExpense = s.PersonalExpense.Add(amount)
		}

		switch {
		case fixedCategory[t.CategoryID]:
			s.FixedExpense = s.FixedExpense.Add(amount)
		case t.Kind() == core.FixedOccurrence && !t.IncludeInLivingExpense:
			// Outside a fixed category it counts toward total spend only.
		default:
			s.LivingExpense = s.LivingExpense.Add(amount)
		}
	}

	s.Spent = s.LivingExpense
	s.Remaining = budget.Sub(s.Spent)
	if budget.IsZero() {
		s.UsageRate = decimal.Zero
	} else {
		s.UsageRate = s.Spent.Div(budget)
	}
	return s
}

// BudgetService summarizes a user's current period.
type BudgetService struct {
	ledger   ledger.Ledger
	catalog  ledger.Catalog
	settings ledger.SettingsSource
}

func NewBudgetService(l ledger.Ledger, catalog ledger.Catalog, settings ledger.SettingsSource) *BudgetService {
	return &BudgetService{ledger: l, catalog: catalog, settings: settings}
}

// PeriodSummary aggregates the period containing today.
func (s *BudgetService) PeriodSummary(ctx context.Context, userID string, today core.Date, filter core.BudgetFilter) (core.BudgetSummary, period.Window, error) {
	us, err := s.settings.GetUserSettings(ctx, userID)
	if err != nil {
		return core.BudgetSummary{}, period.Window{}, fmt.Errorf("get user settings: %w", err)
	}
	_, w, err := period.CurrentWindow(today, us.MonthStartDay)
	if err != nil {
		return core.BudgetSummary{}, period.Window{}, err
	}

	txs, err := s.ledger.QueryTransactions(ctx, ledger.Query{UserID: userID, From: w.Start, To: w.End})
	if err != nil {
		return core.BudgetSummary{}, w, &core.StoreError{Op: "query period transactions", Err: err}
	}
	categories, err := s.catalog.ListCategories(ctx, userID)
	if err != nil {
		return core.BudgetSummary{}, w, &core.StoreError{Op: "list categories", Err: err}
	}

	return Aggregate(txs, categories, filter, us.MonthlyBudget), w, nil
}
