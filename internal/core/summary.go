package core

import "github.com/shopspring/decimal"

// BudgetFilter selects which budget-type tag an aggregate covers.
type BudgetFilter string

const (
	AllBudgets      BudgetFilter = "all"
	PersonalBudgets BudgetFilter = "personal"
	JointBudgets    BudgetFilter = "joint"
)

// BudgetSummary aggregates a transaction set against a monthly budget.
type BudgetSummary struct {
	TotalIncome     decimal.Decimal
	FixedExpense    decimal.Decimal
	LivingExpense   decimal.Decimal
	TotalExpense    decimal.Decimal
	PersonalExpense decimal.Decimal
	JointExpense    decimal.Decimal

	Budget    decimal.Decimal
	Spent     decimal.Decimal
	Remaining decimal.Decimal
	UsageRate decimal.Decimal // 0 when Budget is 0
}

// BillingAmounts is a card asset's balance for the closed and open cycle.
type BillingAmounts struct {
	CurrentBilling decimal.Decimal
	NextBilling    decimal.Decimal
}
