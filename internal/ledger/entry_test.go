package ledger_test

import (
	"testing"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

var catalog = ledger.NewCatalog([]domain.Category{
	{ID: 1, Name: "Insumos", Kind: domain.KindExpense},
	{ID: 2, Name: "Logística", Kind: domain.KindExpense},
	{ID: 9, Name: "Ventas", Kind: domain.KindIncome},
})

func TestEntryFromMovement(t *testing.T) {
	day := domain.NewDate(2025, 3, 1)
	cases := []struct {
		name     string
		movement domain.Movement
		kind     domain.Kind
		category string
		amount   string
		anomaly  string
	}{
		{"expense", domain.Movement{Amount: dec("-500"), CategoryID: ptr(1)}, domain.KindExpense, "Insumos", "500", ""},
		{"income", domain.Movement{Amount: dec("1000")}, domain.KindIncome, ledger.IncomeLabel, "1000", ""},
		{"income with category", domain.Movement{Amount: dec("10"), CategoryID: ptr(9)}, domain.KindIncome, ledger.IncomeLabel, "10", ledger.AnomalyIncomeWithCategory},
		{"expense without category", domain.Movement{Amount: dec("-3")}, domain.KindExpense, ledger.UncategorizedLabel, "3", ledger.AnomalyExpenseWithoutCategory},
		{"unknown category", domain.Movement{Amount: dec("-3"), CategoryID: ptr(77)}, domain.KindExpense, "Categoría #77", "3", ledger.AnomalyUnknownCategory},
		{"income category on expense", domain.Movement{Amount: dec("-3"), CategoryID: ptr(9)}, domain.KindExpense, "Ventas", "3", ledger.AnomalyCategoryKindMismatch},
		{"zero", domain.Movement{Amount: dec("0")}, domain.KindIncome, ledger.IncomeLabel, "0", ledger.AnomalyZeroAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.movement.ID = 42
			tc.movement.Date = day
			tc.movement.Description = "desc"

			e := ledger.EntryFromMovement(tc.movement, catalog)

			assert.Equal(t, int64(42), e.ID)
			assert.Equal(t, day, e.Date)
			assert.Equal(t, "desc", e.Description)
			assert.Equal(t, tc.kind, e.Kind)
			assert.Equal(t, tc.category, e.Category)
			assert.True(t, dec(tc.amount).Equal(e.Amount), "amount %s", e.Amount)
			assert.Equal(t, tc.anomaly, e.Anomaly)
		})
	}
}

func TestSignInvariant(t *testing.T) {
	movements := []domain.Movement{
		{Amount: dec("-500"), CategoryID: ptr(1)},
		{Amount: dec("1000")},
		{Amount: dec("-0.01"), CategoryID: ptr(2)},
	}
	for _, m := range movements {
		e := ledger.EntryFromMovement(m, catalog)
		require.Empty(t, e.Anomaly)
		assert.Equal(t, m.Amount.IsPositive(), e.Kind == domain.KindIncome)
		if e.Kind == domain.KindExpense {
			require.NotNil(t, m.CategoryID)
			assert.Equal(t, domain.KindExpense, catalog[*m.CategoryID].Kind)
		}
		assert.True(t, ledger.SignedAmount(e.Kind, e.Amount).Equal(m.Amount))
	}
}

func TestCatalog_ExpenseCategory(t *testing.T) {
	cat, ok := catalog.ExpenseCategory("  insumos ")
	require.True(t, ok)
	assert.Equal(t, int64(1), cat.ID)

	_, ok = catalog.ExpenseCategory("Ventas")
	assert.False(t, ok, "income categories must not resolve")

	_, ok = catalog.ExpenseCategory("")
	assert.False(t, ok)
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"500", "500", true},
		{"12.34", "12.34", true},
		{"12,34", "12.34", true},
		{"1.005", "1.01", true},
		{" 2.50 ", "2.5", true},
		{"0.004", "", false},
		{"0", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"1e3", "", false},
		{"NaN", "", false},
		{"Inf", "", false},
		{"1.2.3", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ledger.ParseAmount(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "%q", tc.in)
			continue
		}
		require.NoError(t, err, "%q", tc.in)
		assert.True(t, dec(tc.out).Equal(got), "%q -> %s", tc.in, got)
	}
}
