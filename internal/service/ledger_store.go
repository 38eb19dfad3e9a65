// Package service provides the use cases built on top of the session:
// the ledger store, the dashboard, movement submission and contact.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/ledger"
	"github.com/boddenberg/gestor-gastos-bfa/internal/port"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/ledger")

// SessionReader is the read side of the session used by the services.
type SessionReader interface {
	Current() session.Snapshot
}

// LoadStatus tells whether the ledger data can be rendered.
type LoadStatus string

const (
	StatusIdle    LoadStatus = "idle"
	StatusLoading LoadStatus = "loading"
	StatusReady   LoadStatus = "ready"
	StatusFailed  LoadStatus = "failed"
)

// LedgerSnapshot is a copy of the store's contents.
type LedgerSnapshot struct {
	Status     LoadStatus
	Entries    []domain.Entry
	Categories []domain.Category
	Anomalies  []domain.Entry
	Err        error
	Epoch      uint64
	UserID     int64
}

// LedgerStore holds the current user's entries and categories. Its contents
// belong to one session epoch and are never visible under another.
type LedgerStore struct {
	api        port.LedgerAPI
	session    SessionReader
	categories port.Cache[int64, []domain.Category]
	metrics    *observability.Metrics
	logger     *zap.Logger

	mu      sync.RWMutex
	epoch   uint64
	userID  int64
	seq     uint64
	status  LoadStatus
	entries []domain.Entry
	catalog []domain.Category
	err     error
	// pending holds entries created while a load was in flight, oldest
	// first. They are merged into the next committed list.
	pending []domain.Entry
}

// NewLedgerStore creates an empty store.
func NewLedgerStore(api port.LedgerAPI, sess SessionReader, categories port.Cache[int64, []domain.Category], metrics *observability.Metrics, logger *zap.Logger) *LedgerStore {
	return &LedgerStore{
		api:        api,
		session:    sess,
		categories: categories,
		metrics:    metrics,
		logger:     logger,
		status:     StatusIdle,
	}
}

// Load fetches movements and categories in parallel and commits them once
// both have arrived. Categories are always fetched fresh.
func (s *LedgerStore) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "LedgerStore.Load")
	defer span.End()
	return s.load(ctx, false)
}

// Refresh reloads the movements. Categories come from the cache when present.
func (s *LedgerStore) Refresh(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "LedgerStore.Refresh")
	defer span.End()
	return s.load(ctx, true)
}

func (s *LedgerStore) load(ctx context.Context, cachedCategories bool) error {
	snap := s.session.Current()
	if snap.State != session.Authenticated || snap.User == nil {
		return &domain.ErrUnauthorized{Message: "no active session"}
	}
	userID := snap.User.ID

	s.mu.Lock()
	s.seq++
	seq := s.seq
	if s.epoch != snap.Epoch {
		s.pending = nil
	}
	s.epoch = snap.Epoch
	s.userID = userID
	s.status = StatusLoading
	s.entries = nil
	s.catalog = nil
	s.err = nil
	s.mu.Unlock()

	var (
		movements  []domain.Movement
		categories []domain.Category
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m, err := s.api.ListMovements(gCtx)
		if err != nil {
			return fmt.Errorf("movements fetch: %w", err)
		}
		movements = m
		return nil
	})

	g.Go(func() error {
		if cachedCategories {
			if cached, ok := s.categories.Get(userID); ok {
				s.metrics.IncrCacheHit("categories")
				categories = cached
				return nil
			}
		}
		s.metrics.IncrCacheMiss("categories")

		c, err := s.api.ListCategories(gCtx)
		if err != nil {
			return fmt.Errorf("categories fetch: %w", err)
		}
		categories = c
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Warn("ledger load failed", zap.Int64("user_id", userID), zap.Error(err))
		s.mu.Lock()
		if s.seq == seq && s.epoch == snap.Epoch {
			s.status = StatusFailed
			s.err = err
		}
		s.mu.Unlock()
		return err
	}

	catalog := ledger.NewCatalog(categories)
	entries := make([]domain.Entry, 0, len(movements))
	for _, m := range movements {
		e := ledger.EntryFromMovement(m, catalog)
		if e.Anomaly != "" {
			s.reportAnomaly(e)
		}
		entries = append(entries, e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Current().Epoch != snap.Epoch || s.seq != seq {
		s.logger.Debug("discarding stale ledger load", zap.Uint64("epoch", snap.Epoch))
		return &domain.ErrUnauthorized{Message: "session ended while loading"}
	}

	entries = mergePending(entries, s.pending)
	s.pending = nil

	s.categories.Set(userID, categories)
	s.status = StatusReady
	s.entries = entries
	s.catalog = categories
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("ledger.entries", len(entries)))
	return nil
}

// Snapshot returns a copy of the store. Data from an ended session is never
// returned.
func (s *LedgerStore) Snapshot() LedgerSnapshot {
	current := s.session.Current().Epoch

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.epoch != current {
		return LedgerSnapshot{Status: StatusIdle, Epoch: current}
	}

	snap := LedgerSnapshot{
		Status:     s.status,
		Err:        s.err,
		Epoch:      s.epoch,
		UserID:     s.userID,
		Entries:    append([]domain.Entry(nil), s.entries...),
		Categories: append([]domain.Category(nil), s.catalog...),
	}
	for _, e := range s.entries {
		if e.Anomaly != "" {
			snap.Anomalies = append(snap.Anomalies, e)
		}
	}
	return snap
}

// Prepend puts a freshly created entry at the front of the list. While a
// load is in flight the entry is held back and merged when the load commits.
// It is dropped when epoch is no longer current or nothing is loaded or
// loading; the next load fetches it from the backend.
func (s *LedgerStore) Prepend(epoch uint64, e domain.Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || s.session.Current().Epoch != epoch {
		return false
	}
	switch s.status {
	case StatusLoading:
		s.pending = append(s.pending, e)
	case StatusReady:
		entries := make([]domain.Entry, 0, len(s.entries)+1)
		entries = append(entries, e)
		s.entries = append(entries, s.entries...)
	default:
		return false
	}
	if e.Anomaly != "" {
		s.reportAnomaly(e)
	}
	return true
}

// ExpenseCategories returns the loaded categories of kind expense.
func (s *LedgerStore) ExpenseCategories() []domain.Category {
	snap := s.Snapshot()
	out := make([]domain.Category, 0, len(snap.Categories))
	for _, c := range snap.Categories {
		if c.Kind == domain.KindExpense {
			out = append(out, c)
		}
	}
	return out
}

// Reset drops everything loaded under epoch. Wired to session teardown.
func (s *LedgerStore) Reset(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}
	if s.userID != 0 {
		s.categories.Delete(s.userID)
	}
	s.seq++
	s.status = StatusIdle
	s.entries = nil
	s.catalog = nil
	s.err = nil
	s.pending = nil
	s.userID = 0
}

// mergePending puts the held back entries missing from loaded in front of
// it, newest first.
func mergePending(loaded, pending []domain.Entry) []domain.Entry {
	if len(pending) == 0 {
		return loaded
	}
	seen := make(map[int64]bool, len(loaded))
	for _, e := range loaded {
		seen[e.ID] = true
	}
	merged := make([]domain.Entry, 0, len(loaded)+len(pending))
	for i := len(pending) - 1; i >= 0; i-- {
		if !seen[pending[i].ID] {
			merged = append(merged, pending[i])
			seen[pending[i].ID] = true
		}
	}
	return append(merged, loaded...)
}

func (s *LedgerStore) reportAnomaly(e domain.Entry) {
	s.metrics.IncrLedgerAnomaly(e.Anomaly)
	s.logger.Warn("movement breaks the sign/category invariant",
		zap.Int64("movement_id", e.ID),
		zap.String("reason", e.Anomaly),
	)
}
