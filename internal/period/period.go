// Package period computes accounting-period windows for a user-configurable
// month-start day.
//
// A period starts on the month-start day of one calendar month and ends the
// day before the month-start day of the next. Start days that do not exist
// in a short month are clamped to that month's last day, which keeps
// consecutive windows contiguous.
package period

import (
	"fmt"
	"time"

	"gagyebu/internal/core"
)

// Anchor names a period by the calendar month it starts in.
type Anchor struct {
	Year  int
	Month time.Month
}

// Window is an inclusive [Start, End] range of calendar days.
type Window struct {
	Start core.Date
	End   core.Date
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDayToMonth caps day at the last day of the month (Feb 31 -> Feb 28/29).
func ClampDayToMonth(day, year int, month time.Month) int {
	if last := DaysInMonth(year, month); day > last {
		return last
	}
	if day < 1 {
		return 1
	}
	return day
}

// AnchorOf returns the anchor for the calendar month containing d.
func AnchorOf(d core.Date) Anchor {
	return Anchor{Year: d.Year(), Month: d.Month()}
}

// AddMonths moves the anchor by n calendar months.
func (a Anchor) AddMonths(n int) Anchor {
	t := time.Date(a.Year, a.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return Anchor{Year: t.Year(), Month: t.Month()}
}

func (a Anchor) Next() Anchor { return a.AddMonths(1) }
func (a Anchor) Prev() Anchor { return a.AddMonths(-1) }

// MonthsSince returns how many calendar months a lies after b (negative if before).
func (a Anchor) MonthsSince(b Anchor) int {
	return (a.Year-b.Year)*12 + int(a.Month) - int(b.Month)
}

// Day returns the clamped date for day within the anchor month.
func (a Anchor) Day(day int) core.Date {
	return core.NewDate(a.Year, a.Month, ClampDayToMonth(day, a.Year, a.Month))
}

func (a Anchor) String() string {
	return fmt.Sprintf("%d-%02d", a.Year, int(a.Month))
}

// WindowFor returns the period that starts in (year, month).
func WindowFor(year int, month time.Month, monthStartDay int) (Window, error) {
	if err := core.ValidateMonthStartDay(monthStartDay); err != nil {
		return Window{}, err
	}
	a := Anchor{Year: year, Month: month}.AddMonths(0)
	if monthStartDay == 1 {
		return Window{
			Start: a.Day(1),
			End:   a.Day(DaysInMonth(a.Year, a.Month)),
		}, nil
	}
	return Window{
		Start: a.Day(monthStartDay),
		End:   a.Next().Day(monthStartDay).AddDays(-1),
	}, nil
}

// CurrentPeriodAnchor resolves which period today falls in. It is the only
// place that decides "now", for both windows and generation-marker keys.
func CurrentPeriodAnchor(today core.Date, monthStartDay int) Anchor {
	a := AnchorOf(today)
	if monthStartDay <= 1 {
		return a
	}
	if today.Day() >= ClampDayToMonth(monthStartDay, a.Year, a.Month) {
		return a
	}
	return a.Prev()
}

// CurrentWindow is WindowFor(CurrentPeriodAnchor(today)).
func CurrentWindow(today core.Date, monthStartDay int) (Anchor, Window, error) {
	a := CurrentPeriodAnchor(today, monthStartDay)
	w, err := WindowFor(a.Year, a.Month, monthStartDay)
	return a, w, err
}

// Key identifies a period: {startYear}-{startMonth}-{monthStartDay}.
func Key(a Anchor, monthStartDay int) string {
	return fmt.Sprintf("%d-%d-%d", a.Year, int(a.Month), monthStartDay)
}

// Contains reports whether d lies inside the window, bounds included.
func (w Window) Contains(d core.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Empty reports whether End precedes Start.
func (w Window) Empty() bool {
	return w.End.Before(w.Start)
}

func (w Window) String() string {
	return w.Start.String() + ".." + w.End.String()
}
