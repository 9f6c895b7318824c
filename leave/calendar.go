/*
calendar.go - Working-day counting

PURPOSE:
  Deterministic sizing of leave spans. The default path counts Monday to
  Friday, inclusive on both ends, and knows nothing about public holidays:
  two deployments must never size the same request differently because one
  has a fresher holiday table.

  Holiday awareness exists only as an opt-in collaborator (HolidayCalendar)
  for deployments that explicitly choose it.

HALF DAYS:
  A half-day request is always exactly 0.5, before any weekend or holiday
  logic runs. The UI pins a half-day request to a single date; the engine
  does not second-guess which date that is.
*/
package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Day normalizes t to midnight UTC. All engine dates live on this grid.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a midnight-UTC date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// WorkingDays counts the working days a request spans.
//
//   - half-day: exactly 0.5, regardless of the dates
//   - otherwise: Monday-Friday days in [start, end], both ends inclusive
//   - start after end: 0
func WorkingDays(start, end time.Time, isHalfDay bool) decimal.Decimal {
	if isHalfDay {
		return halfStep
	}

	start, end = Day(start), Day(end)
	if start.After(end) {
		return decimal.Zero
	}

	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			days++
		}
	}
	return decimal.NewFromInt(int64(days))
}

// =============================================================================
// HOLIDAY CALENDAR - opt-in collaborator
// =============================================================================

// Holiday is one company-scoped public holiday date.
type Holiday struct {
	ID        string
	CompanyID string
	Date      time.Time
	Name      string
}

// HolidayCalendar answers whether a date is a public holiday for a company.
// Implementations are expected to be cheap; the calculator asks once per day
// in the span.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, companyID string, day time.Time) (bool, error)
}

// NoHolidays is the default calendar: no date is ever a holiday. It keeps the
// calculator's default behavior purely weekend-based.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

// Calculator sizes spans against an injected holiday calendar. With the
// default NoHolidays it is equivalent to the plain WorkingDays function.
type Calculator struct {
	holidays HolidayCalendar
}

func NewCalculator(holidays HolidayCalendar) *Calculator {
	if holidays == nil {
		holidays = NoHolidays{}
	}
	return &Calculator{holidays: holidays}
}

// WorkingDays counts working days in [start, end], skipping dates the
// calendar marks as holidays. Half-days short-circuit to 0.5 exactly like the
// plain function.
func (c *Calculator) WorkingDays(ctx context.Context, companyID string, start, end time.Time, isHalfDay bool) (decimal.Decimal, error) {
	if isHalfDay {
		return halfStep, nil
	}

	start, end = Day(start), Day(end)
	if start.After(end) {
		return decimal.Zero, nil
	}

	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsWeekend(d) {
			continue
		}
		holiday, err := c.holidays.IsHoliday(ctx, companyID, d)
		if err != nil {
			return decimal.Zero, err
		}
		if !holiday {
			days++
		}
	}
	return decimal.NewFromInt(int64(days)), nil
}
