package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecurringTemplate is either a FixedItem or an InstallmentMaster.
type RecurringTemplate interface {
	TemplateID() string
	// RecurringDay is the nominal day of month the occurrence lands on.
	RecurringDay() int
	isTemplate()
}

// InstallmentMaster is the typed view of a master installment purchase.
type InstallmentMaster struct {
	Transaction
	StartYear  int
	StartMonth time.Month
}

func (f FixedItem) TemplateID() string { return f.ID }
func (f FixedItem) RecurringDay() int  { return f.Day }
func (FixedItem) isTemplate()          {}

func (m InstallmentMaster) TemplateID() string { return m.ID }
func (m InstallmentMaster) RecurringDay() int  { return m.Installment.Day }
func (InstallmentMaster) isTemplate()          {}

func (m InstallmentMaster) TotalTerm() int   { return m.Installment.TotalTerm }
func (m InstallmentMaster) CurrentTerm() int { return m.Installment.CurrentTerm }

// OriginalAmount is the full purchase price. Masters written before the
// original amount was tracked fall back to the record amount.
func (m InstallmentMaster) OriginalAmount() decimal.Decimal {
	if m.Installment.OriginalAmount.IsPositive() {
		return m.Installment.OriginalAmount
	}
	return m.Amount
}

// MasterFromTransaction narrows a ledger record to a master.
func MasterFromTransaction(t Transaction) (InstallmentMaster, error) {
	if t.Kind() != InstallmentMasterKind {
		return InstallmentMaster{}, &ValidationError{
			Field:  "installment",
			Reason: fmt.Sprintf("transaction %s is a %s, not an installment master", t.ID, t.Kind()),
		}
	}
	return InstallmentMaster{
		Transaction: t,
		StartYear:   t.Date.Year(),
		StartMonth:  t.Date.Month(),
	}, nil
}
