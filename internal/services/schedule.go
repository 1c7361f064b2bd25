// Package services provides business logic and orchestration services.
//
// This file places recurring templates into accounting periods. A template's
// nominal day may fall before or after the period's start boundary; the rules
// below put the occurrence inside the open period rather than the adjacent
// one, clamping to short months.
package services

import (
	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/period"
)

// DueDateInPeriod returns the calendar date an occurrence with the given
// nominal day lands on inside the period starting at anchor. Days before the
// period start move to the following month, capped at the period's last day
// when the next start is clamped forward into it (start days 29-31).
func DueDateInPeriod(day int, anchor period.Anchor, monthStartDay int) core.Date {
	if monthStartDay <= 1 {
		return anchor.Day(day)
	}
	w, err := period.WindowFor(anchor.Year, anchor.Month, monthStartDay)
	if err != nil {
		if day >= monthStartDay {
			return anchor.Day(day)
		}
		return anchor.Next().Day(day)
	}
	if d := anchor.Day(day); !d.Before(w.Start) {
		return d
	}
	if d := anchor.Next().Day(day); d.Before(w.End) {
		return d
	}
	return w.End
}

// FixedDueDate is DueDateInPeriod for a fixed item.
func FixedDueDate(item core.FixedItem, anchor period.Anchor, monthStartDay int) core.Date {
	return DueDateInPeriod(item.Day, anchor, monthStartDay)
}

// TermForPeriod maps a period to the installment term it carries. ok is
// false when the installment has not started yet or has already completed.
func TermForPeriod(master core.InstallmentMaster, anchor period.Anchor) (term int, ok bool) {
	start := period.Anchor{Year: master.StartYear, Month: master.StartMonth}
	term = master.CurrentTerm() + anchor.MonthsSince(start)
	if term < 1 || term > master.TotalTerm() {
		return 0, false
	}
	return term, true
}

// AmortizedAmount is round(original / totalTerm). Every term carries the
// same amount; the rounding remainder is not redistributed.
func AmortizedAmount(original decimal.Decimal, totalTerm int) decimal.Decimal {
	if totalTerm < 1 {
		return original
	}
	return core.RoundUnits(original.Div(decimal.NewFromInt(int64(totalTerm))))
}

// Occurrence is a scheduled, not yet persisted, instance of a template.
type Occurrence struct {
	Template core.RecurringTemplate
	Date     core.Date
	Term     int // installments only
	Amount   decimal.Decimal
}

// Scheduler resolves templates against one period.
type Scheduler struct {
	Anchor        period.Anchor
	MonthStartDay int
}

// NewScheduler validates the start day and binds the period.
func NewScheduler(anchor period.Anchor, monthStartDay int) (Scheduler, error) {
	if err := core.ValidateMonthStartDay(monthStartDay); err != nil {
		return Scheduler{}, err
	}
	return Scheduler{Anchor: anchor, MonthStartDay: monthStartDay}, nil
}

// Schedule returns the occurrence of tmpl in the bound period, or false when
// the template is not due.
func (s Scheduler) Schedule(tmpl core.RecurringTemplate) (Occurrence, bool) {
	switch t := tmpl.(type) {
	case core.FixedItem:
		if !t.IsActive {
			return Occurrence{}, false
		}
		return Occurrence{
			Template: t,
			Date:     FixedDueDate(t, s.Anchor, s.MonthStartDay),
			Amount:   t.Amount,
		}, true
	case core.InstallmentMaster:
		term, ok := TermForPeriod(t, s.Anchor)
		if !ok {
			return Occurrence{}, false
		}
		return Occurrence{
			Template: t,
			Date:     DueDateInPeriod(t.RecurringDay(), s.Anchor, s.MonthStartDay),
			Term:     term,
			Amount:   AmortizedAmount(t.OriginalAmount(), t.TotalTerm()),
		}, true
	default:
		return Occurrence{}, false
	}
}
