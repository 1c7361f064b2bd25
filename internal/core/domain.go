package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	Personal BudgetType = "personal"
	Joint    BudgetType = "joint"
)

const (
	Fixed    ItemType = "fixed"
	Variable ItemType = "variable"
)

const (
	Cash    AssetKind = "cash"
	Account AssetKind = "account"
	Card    AssetKind = "card"
)

// EntryKind is the role a ledger record plays. It is derived once by
// Transaction.Kind so callers never reason about field combinations.
const (
	PlainEntry            EntryKind = "plain"
	FixedOccurrence       EntryKind = "fixed_occurrence"
	InstallmentMasterKind EntryKind = "installment_master"
	InstallmentOccurrence EntryKind = "installment_occurrence"
)

type (
	TransactionType string
	BudgetType      string
	ItemType        string
	AssetKind       string
	EntryKind       string

	Date struct {
		time.Time
	}

	// Installment carries the term data of a master or of one of its
	// generated occurrences. MasterID is empty on the master itself.
	Installment struct {
		TotalTerm      int
		CurrentTerm    int
		Day            int
		MasterID       string
		OriginalAmount decimal.Decimal
	}

	Transaction struct {
		ID                     string
		UserID                 string
		Title                  string
		Amount                 decimal.Decimal
		Date                   Date
		Type                   TransactionType
		CategoryID             string
		AssetID                string
		ToAssetID              string // transfers only
		BudgetType             BudgetType
		Note                   string
		IncludeInLivingExpense bool
		FixedItemID            string // provenance of fixed occurrences
		Installment            *Installment
		CreatedAt              time.Time
	}

	FixedItem struct {
		ID         string
		UserID     string
		Name       string
		Type       ItemType
		Amount     decimal.Decimal
		Day        int // 1-31, clamped per month
		CategoryID string
		AssetID    string
		BudgetType BudgetType
		IsActive   bool
	}

	Category struct {
		ID     string
		UserID string
		Name   string
		Type   ItemType
	}

	Asset struct {
		ID            string
		UserID        string
		Name          string
		Kind          AssetKind
		SettlementDay int
		BillingDay    int
	}

	UserSettings struct {
		UserID        string
		MonthStartDay int
		MonthlyBudget decimal.Decimal
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty title")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// Kind reports which ledger role the record plays.
func (t Transaction) Kind() EntryKind {
	switch {
	case t.Installment != nil && t.Installment.MasterID == "":
		return InstallmentMasterKind
	case t.Installment != nil:
		return InstallmentOccurrence
	case t.FixedItemID != "":
		return FixedOccurrence
	default:
		return PlainEntry
	}
}

// IsInstallment reports whether the record is a master or an occurrence.
func (t Transaction) IsInstallment() bool {
	return t.Installment != nil
}

// InstallmentID returns the owning master id for occurrences, "" otherwise.
func (t Transaction) InstallmentID() string {
	if t.Installment == nil {
		return ""
	}
	return t.Installment.MasterID
}

func validAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func validDay(field string, day int) error {
	if day < 1 || day > 31 {
		return &ValidationError{Field: field, Reason: "must be between 1 and 31"}
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if err := t.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	if len(strings.TrimSpace(t.Title)) == 0 {
		return &ValidationError{Field: "title", Reason: ErrEmptyDescription.Error()}
	}
	if len(t.Title) > 200 {
		return &ValidationError{Field: "title", Reason: "too long (max 200 characters)"}
	}
	if err := validAmount(t.Amount); err != nil {
		return &ValidationError{Field: "amount", Reason: err.Error()}
	}
	switch t.Type {
	case Income, Expense:
		if t.ToAssetID != "" {
			return &ValidationError{Field: "to_asset_id", Reason: "only transfers have a destination asset"}
		}
	case Transfer:
		if t.ToAssetID == "" {
			return &ValidationError{Field: "to_asset_id", Reason: "required for transfers"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "must be income, expense or transfer"}
	}
	switch t.BudgetType {
	case Personal, Joint:
	default:
		return &ValidationError{Field: "budget_type", Reason: "must be personal or joint"}
	}
	if in := t.Installment; in != nil {
		if in.TotalTerm < 1 {
			return &ValidationError{Field: "total_term", Reason: "must be at least 1"}
		}
		if in.CurrentTerm < 1 || in.CurrentTerm > in.TotalTerm {
			return &ValidationError{Field: "current_term", Reason: "must be within [1, total_term]"}
		}
		if err := validDay("installment_day", in.Day); err != nil {
			return err
		}
		if err := validAmount(in.OriginalAmount); err != nil {
			return &ValidationError{Field: "original_amount", Reason: err.Error()}
		}
	}
	return nil
}

func (f FixedItem) Validate() error {
	if strings.TrimSpace(f.UserID) == "" {
		return &ValidationError{Field: "user_id", Reason: "required"}
	}
	if strings.TrimSpace(f.Name) == "" {
		return &ValidationError{Field: "name", Reason: ErrEmptyDescription.Error()}
	}
	switch f.Type {
	case Fixed, Variable:
	default:
		return &ValidationError{Field: "type", Reason: "must be fixed or variable"}
	}
	if err := validAmount(f.Amount); err != nil {
		return &ValidationError{Field: "amount", Reason: err.Error()}
	}
	if err := validDay("day", f.Day); err != nil {
		return err
	}
	switch f.BudgetType {
	case Personal, Joint:
	default:
		return &ValidationError{Field: "budget_type", Reason: "must be personal or joint"}
	}
	return nil
}

// ValidateMonthStartDay rejects start days that cannot name a day of month.
func ValidateMonthStartDay(day int) error {
	return validDay("month_start_day", day)
}
