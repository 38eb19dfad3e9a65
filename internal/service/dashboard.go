package service

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/ledger"
	"github.com/boddenberg/gestor-gastos-bfa/internal/port"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerView is everything the frontend renders for a date range.
type LedgerView struct {
	Status         LoadStatus              `json:"status"`
	Range          ledger.Range            `json:"rango"`
	Entries        []domain.Entry          `json:"movimientos"`
	Totals         ledger.Totals           `json:"totales"`
	Breakdown      []ledger.CategoryAmount `json:"por_categoria"`
	OverdraftAlert bool                    `json:"alerta_saldo_negativo"`
	Anomalies      []domain.Entry          `json:"anomalias,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

const balanceMemoryTimeout = 2 * time.Second

// Dashboard derives views from the ledger store and remembers the last
// available balance so the overdraft alert fires once per crossing.
type Dashboard struct {
	store   *LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger
	memory  port.BalanceMemory

	mu            sync.Mutex
	primed        bool
	epoch         uint64
	prevAvailable decimal.Decimal
}

// NewDashboard creates a Dashboard over store.
func NewDashboard(store *LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *Dashboard {
	return &Dashboard{store: store, metrics: metrics, logger: logger}
}

// WithBalanceMemory makes the last available balance outlive the process,
// so a short-lived client does not re-alert on every run.
func (d *Dashboard) WithBalanceMemory(memory port.BalanceMemory) *Dashboard {
	d.memory = memory
	return d
}

// View filters, aggregates and groups the entries in r. Until the store is
// ready only the status is filled in; derived data is never computed from a
// partial load.
func (d *Dashboard) View(r ledger.Range) LedgerView {
	snap := d.store.Snapshot()
	view := LedgerView{Status: snap.Status, Range: r}

	if snap.Status != StatusReady {
		if snap.Err != nil {
			view.Error = snap.Err.Error()
		}
		return view
	}

	filtered := ledger.Filter(snap.Entries, r)
	view.Entries = filtered
	view.Totals = ledger.Aggregate(filtered)
	view.Breakdown = ledger.CategoryBreakdown(filtered)
	view.Anomalies = snap.Anomalies

	d.mu.Lock()
	if !d.primed || d.epoch != snap.Epoch {
		d.primed = true
		d.epoch = snap.Epoch
		d.prevAvailable = d.recall(snap.UserID)
	}
	prev := d.prevAvailable
	view.OverdraftAlert = ledger.DetectOverdraftEdge(prev, view.Totals.Available)
	d.prevAvailable = view.Totals.Available
	d.mu.Unlock()

	if !prev.Equal(view.Totals.Available) {
		d.remember(snap.UserID, view.Totals.Available)
	}

	if view.OverdraftAlert {
		d.metrics.IncrOverdraftAlert()
		d.logger.Info("available balance crossed below zero",
			zap.String("available", view.Totals.Available.String()),
		)
	}
	return view
}

func (d *Dashboard) recall(userID int64) decimal.Decimal {
	if d.memory == nil || userID == 0 {
		return decimal.Zero
	}
	ctx, cancel := context.WithTimeout(context.Background(), balanceMemoryTimeout)
	defer cancel()

	v, ok, err := d.memory.LastAvailable(ctx, userID)
	if err != nil {
		d.logger.Warn("failed to read last available balance", zap.Int64("user_id", userID), zap.Error(err))
		return decimal.Zero
	}
	if !ok {
		return decimal.Zero
	}
	return v
}

func (d *Dashboard) remember(userID int64, available decimal.Decimal) {
	if d.memory == nil || userID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), balanceMemoryTimeout)
	defer cancel()

	if err := d.memory.SaveAvailable(ctx, userID, available); err != nil {
		d.logger.Warn("failed to save last available balance", zap.Int64("user_id", userID), zap.Error(err))
	}
}
