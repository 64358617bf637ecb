package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period is the currently viewed (year, month) pair. Month is 1-12.
// Navigation is unbounded in both directions; months without data
// simply aggregate to zero totals.
type Period struct {
	Year  int
	Month int
}

var monthNames = []string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// CurrentPeriod derives the period selector from a point in time,
// as done once at session start.
func CurrentPeriod(now time.Time) Period {
	return Period{Year: now.Year(), Month: int(now.Month())}
}

// ParsePeriod parses the "YYYY-MM" wire form.
func ParsePeriod(s string) (Period, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("parse period %q: want YYYY-MM", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("parse period year %q: %w", parts[0], err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("parse period month %q: %w", parts[1], err)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("parse period %q: month out of range", s)
	}
	return Period{Year: year, Month: month}, nil
}

// Advance moves the period one month in the given direction (-1 or +1),
// rolling across year boundaries through real date arithmetic rather
// than modulo tricks.
func (p Period) Advance(direction int) Period {
	t := time.Date(p.Year, time.Month(p.Month+direction), 1, 0, 0, 0, 0, time.UTC)
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Contains reports whether t falls inside this exact calendar month.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && int(t.Month()) == p.Month
}

// String returns the "YYYY-MM" wire form.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Label returns the human form used in headers and reports,
// e.g. "Março de 2024".
func (p Period) Label() string {
	if p.Month < 1 || p.Month > 12 {
		return p.String()
	}
	return fmt.Sprintf("%s de %d", monthNames[p.Month-1], p.Year)
}

// FilterByPeriod keeps exactly the entries whose date falls in the given
// calendar month. The filter is stable: output preserves input order.
// Entries without a valid date are excluded.
func FilterByPeriod(entries []Entry, year, month int) []Entry {
	p := Period{Year: year, Month: month}
	var out []Entry
	for _, e := range entries {
		if e.DateValid() && p.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// Aggregate computes income, expense and balance totals over the given
// entries. Categories absent from the registry count as income. The
// reduction is commutative and exact (decimal arithmetic), so summation
// order never changes the result.
func Aggregate(entries []Entry) Totals {
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, e := range entries {
		if e.IsExpense() {
			t.Expense = t.Expense.Add(e.Value)
		} else {
			t.Income = t.Income.Add(e.Value)
		}
	}
	t.Balance = t.Income.Sub(t.Expense)
	return t
}
