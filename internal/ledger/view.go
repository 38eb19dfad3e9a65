// Package ledger derives the views shown on the movements page: date
// filtering, totals, the expense breakdown by category and the overdraft
// edge. Everything here is pure and synchronous; callers own any state.
package ledger

import (
	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Range is an inclusive calendar-day range. A zero bound is unbounded.
type Range struct {
	From domain.Date `json:"desde"`
	To   domain.Date `json:"hasta"`
}

// Contains reports whether d falls inside the range.
func (r Range) Contains(d domain.Date) bool {
	if !r.From.IsZero() && d.Compare(r.From) < 0 {
		return false
	}
	if !r.To.IsZero() && d.Compare(r.To) > 0 {
		return false
	}
	return true
}

// Totals are the aggregates over a set of entries.
type Totals struct {
	Income    decimal.Decimal `json:"ingresos"`
	Expense   decimal.Decimal `json:"egresos"`
	Available decimal.Decimal `json:"disponible"`
}

// CategoryAmount is the summed expense of one category.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"value"`
}

// Filter returns the entries whose date lies within r, keeping input order.
// The input slice is never modified.
func Filter(entries []domain.Entry, r Range) []domain.Entry {
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// Aggregate sums incomes and expenses. Entry amounts are unsigned, so the
// expense total is already an absolute value.
func Aggregate(entries []domain.Entry) Totals {
	income := decimal.Zero
	expense := decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case domain.KindIncome:
			income = income.Add(e.Amount.Abs())
		case domain.KindExpense:
			expense = expense.Add(e.Amount.Abs())
		}
	}
	return Totals{
		Income:    income,
		Expense:   expense,
		Available: income.Sub(expense),
	}
}

// CategoryBreakdown groups expenses by category label in first-seen order.
func CategoryBreakdown(entries []domain.Entry) []CategoryAmount {
	var out []CategoryAmount
	index := make(map[string]int)
	for _, e := range entries {
		if e.Kind != domain.KindExpense {
			continue
		}
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryAmount{Name: e.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(e.Amount.Abs())
	}
	return out
}

// DetectOverdraftEdge fires only on the step from a non-negative balance to
// a negative one.
func DetectOverdraftEdge(previous, current decimal.Decimal) bool {
	return !previous.IsNegative() && current.IsNegative()
}
