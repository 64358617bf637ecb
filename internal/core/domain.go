package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Entry is one recorded financial transaction (income or expense).
	// Entries are value types; updates are full replacements keyed by ID,
	// never in-place mutation.
	Entry struct {
		ID       string
		Date     time.Time
		Category string
		Title    string
		Value    decimal.Decimal
	}

	// Totals holds the aggregated amounts for a set of entries.
	Totals struct {
		Income  decimal.Decimal
		Expense decimal.Decimal
		Balance decimal.Decimal
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidCategory = errors.New("invalid category")
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidValue    = errors.New("invalid value")
)

// DateValid reports whether the entry carries a usable calendar date.
// Entries with unparseable stored dates keep a zero date and never match
// any period.
func (e Entry) DateValid() bool {
	return !e.Date.IsZero()
}

// Validate runs every input check and reports all failures together,
// not just the first one.
func (e Entry) Validate() error {
	var errs []error
	if !e.DateValid() {
		errs = append(errs, ErrInvalidDate)
	}
	if _, ok := Categories[e.Category]; !ok {
		errs = append(errs, ErrInvalidCategory)
	}
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, ErrEmptyTitle)
	}
	if e.Value.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, ErrInvalidValue)
	}
	return errors.Join(errs...)
}

// IsExpense reports whether the entry subtracts from the net balance.
// Unknown categories count as income.
func (e Entry) IsExpense() bool {
	cat, ok := Categories[e.Category]
	return ok && cat.Expense
}

// DisplayValue formats the amount with the two-fraction-digit convention.
func (e Entry) DisplayValue() string {
	return e.Value.StringFixed(2)
}
