package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/credstore"
	"github.com/boddenberg/gestor-gastos-bfa/internal/ledger"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func submit(t *testing.T, f *fixture, kind domain.Kind, amount string) {
	t.Helper()
	in := domain.MovementInput{Kind: kind, Description: "mov", Amount: amount}
	if kind == domain.KindExpense {
		in.CategoryName = "Insumos"
	}
	_, err := f.pipeline.Submit(context.Background(), in)
	require.NoError(t, err)
}

func TestView_NotReady(t *testing.T) {
	f := newFixture(t, &mockLedgerAPI{})

	view := f.board.View(ledger.Range{})

	assert.Equal(t, service.StatusIdle, view.Status)
	assert.Empty(t, view.Entries)
	assert.False(t, view.OverdraftAlert)
}

func TestView_FiltersAndAggregates(t *testing.T) {
	f := loadedFixture(t, &mockLedgerAPI{
		movements:  sampleMovements(),
		categories: []domain.Category{insumos},
	})

	view := f.board.View(ledger.Range{From: domain.NewDate(2025, 3, 5)})

	assert.Equal(t, service.StatusReady, view.Status)
	require.Len(t, view.Entries, 2)
	assert.True(t, view.Totals.Income.Equal(decimal.NewFromInt(1000)))
	assert.True(t, view.Totals.Expense.Equal(decimal.NewFromInt(300)))
	assert.True(t, view.Totals.Available.Equal(decimal.NewFromInt(700)))
	require.Len(t, view.Breakdown, 1)
	assert.Equal(t, "Insumos", view.Breakdown[0].Name)
	assert.Len(t, view.Anomalies, 1)
}

func TestView_OverdraftAlertFiresOncePerCrossing(t *testing.T) {
	f := loadedFixture(t, &mockLedgerAPI{categories: []domain.Category{insumos}})
	var alerts []bool
	record := func() { alerts = append(alerts, f.board.View(ledger.Range{}).OverdraftAlert) }

	// available: 0 → 100 → 50 → -20 → -5 → 30
	record()
	submit(t, f, domain.KindIncome, "100")
	record()
	submit(t, f, domain.KindExpense, "50")
	record()
	submit(t, f, domain.KindExpense, "70")
	record()
	submit(t, f, domain.KindIncome, "15")
	record()
	submit(t, f, domain.KindIncome, "35")
	record()

	assert.Equal(t, []bool{false, false, false, true, false, false}, alerts)
	assert.Equal(t, float64(1), f.metrics.Snapshot().OverdraftAlerts)
}

func TestView_RecomputingSameDataDoesNotRefire(t *testing.T) {
	f := loadedFixture(t, &mockLedgerAPI{
		categories: []domain.Category{insumos},
		movements: []domain.Movement{
			{ID: 1, Date: domain.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(-10), CategoryID: int64p(1)},
		},
	})

	assert.True(t, f.board.View(ledger.Range{}).OverdraftAlert)
	assert.False(t, f.board.View(ledger.Range{}).OverdraftAlert)
}

func TestView_NewSessionResetsEdgeMemory(t *testing.T) {
	api := &mockLedgerAPI{
		categories: []domain.Category{insumos},
		movements: []domain.Movement{
			{ID: 1, Date: domain.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(-10), CategoryID: int64p(1)},
		},
	}
	f := loadedFixture(t, api)
	require.True(t, f.board.View(ledger.Range{}).OverdraftAlert)

	ended := f.session.end()
	f.store.Reset(ended)
	f.session.mu.Lock()
	f.session.snap = authenticated(7).snap
	f.session.snap.Epoch = ended + 1
	f.session.mu.Unlock()
	require.NoError(t, f.store.Load(context.Background()))

	assert.True(t, f.board.View(ledger.Range{}).OverdraftAlert)
}

func overdrawnAPI() *mockLedgerAPI {
	return &mockLedgerAPI{
		categories: []domain.Category{insumos},
		movements: []domain.Movement{
			{ID: 1, Date: domain.NewDate(2025, 3, 1), Amount: decimal.NewFromInt(-10), CategoryID: int64p(1)},
		},
	}
}

func TestView_BalanceMemoryOutlivesDashboard(t *testing.T) {
	f := loadedFixture(t, overdrawnAPI())
	memory := credstore.NewMemoryStore()

	first := service.NewDashboard(f.store, f.metrics, zap.NewNop()).WithBalanceMemory(memory)
	assert.True(t, first.View(ledger.Range{}).OverdraftAlert)

	saved, ok, err := memory.LastAvailable(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, saved.Equal(decimal.NewFromInt(-10)), "saved %s", saved)

	// a later run over the same data must not alert again
	second := service.NewDashboard(f.store, f.metrics, zap.NewNop()).WithBalanceMemory(memory)
	assert.False(t, second.View(ledger.Range{}).OverdraftAlert)

	submit(t, f, domain.KindIncome, "30")
	assert.False(t, second.View(ledger.Range{}).OverdraftAlert)
	third := service.NewDashboard(f.store, f.metrics, zap.NewNop()).WithBalanceMemory(memory)
	submit(t, f, domain.KindExpense, "50")
	assert.True(t, third.View(ledger.Range{}).OverdraftAlert, "a new crossing after recovery alerts")
}

func TestView_BalanceMemoryIsPerUser(t *testing.T) {
	f := loadedFixture(t, overdrawnAPI())
	memory := credstore.NewMemoryStore()
	require.NoError(t, memory.SaveAvailable(context.Background(), 8, decimal.NewFromInt(-10)))

	board := service.NewDashboard(f.store, f.metrics, zap.NewNop()).WithBalanceMemory(memory)
	assert.True(t, board.View(ledger.Range{}).OverdraftAlert)
}

func TestView_BalanceMemoryFailureFallsBackToZero(t *testing.T) {
	f := loadedFixture(t, overdrawnAPI())
	memory := credstore.NewMemoryStore()
	memory.Err = errors.New("disk full")

	board := service.NewDashboard(f.store, f.metrics, zap.NewNop()).WithBalanceMemory(memory)
	assert.True(t, board.View(ledger.Range{}).OverdraftAlert)
}
