package ledger

import (
	"fmt"
	"strings"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Labels used when a movement does not resolve to a named expense category.
const (
	IncomeLabel        = "Ingresos"
	UncategorizedLabel = "Sin categoría"
)

// Anomaly reasons attached to entries that break the sign/category invariant.
const (
	AnomalyIncomeWithCategory     = "income_with_category"
	AnomalyExpenseWithoutCategory = "expense_without_category"
	AnomalyUnknownCategory        = "unknown_category"
	AnomalyCategoryKindMismatch   = "category_kind_mismatch"
	AnomalyZeroAmount             = "zero_amount"
)

// Catalog indexes categories by id.
type Catalog map[int64]domain.Category

// NewCatalog builds a Catalog from a category list.
func NewCatalog(categories []domain.Category) Catalog {
	c := make(Catalog, len(categories))
	for _, cat := range categories {
		c[cat.ID] = cat
	}
	return c
}

// ExpenseCategory finds an expense category by name, ignoring case and
// surrounding spaces.
func (c Catalog) ExpenseCategory(name string) (domain.Category, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, false
	}
	for _, cat := range c {
		if cat.Kind == domain.KindExpense && strings.EqualFold(cat.Name, name) {
			return cat, true
		}
	}
	return domain.Category{}, false
}

// EntryFromMovement derives the local entry of a backend movement. It is the
// single derivation used for fetched and freshly created movements alike.
// The sign decides the kind; the category reference is checked against it
// and any mismatch is reported in Entry.Anomaly instead of being papered over.
func EntryFromMovement(m domain.Movement, catalog Catalog) domain.Entry {
	e := domain.Entry{
		ID:          m.ID,
		Date:        m.Date,
		Description: m.Description,
		Amount:      m.Amount.Abs(),
	}

	switch {
	case m.Amount.IsZero():
		e.Kind = domain.KindIncome
		e.Category = IncomeLabel
		e.Anomaly = AnomalyZeroAmount
	case m.Amount.IsPositive():
		e.Kind = domain.KindIncome
		e.Category = IncomeLabel
		if m.CategoryID != nil {
			e.Anomaly = AnomalyIncomeWithCategory
		}
	default:
		e.Kind = domain.KindExpense
		if m.CategoryID == nil {
			e.Category = UncategorizedLabel
			e.Anomaly = AnomalyExpenseWithoutCategory
			break
		}
		cat, ok := catalog[*m.CategoryID]
		if !ok {
			e.Category = fmt.Sprintf("Categoría #%d", *m.CategoryID)
			e.Anomaly = AnomalyUnknownCategory
			break
		}
		e.Category = cat.Name
		if cat.Kind != domain.KindExpense {
			e.Anomaly = AnomalyCategoryKindMismatch
		}
	}
	return e
}

// SignedAmount applies the sign convention: expenses are stored negative.
func SignedAmount(kind domain.Kind, amount decimal.Decimal) decimal.Decimal {
	if kind == domain.KindExpense {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}
