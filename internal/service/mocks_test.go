package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/cache"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockSession struct {
	mu   sync.Mutex
	snap session.Snapshot
}

func authenticated(userID int64) *mockSession {
	return &mockSession{snap: session.Snapshot{
		State: session.Authenticated,
		User:  &domain.User{ID: userID, Email: "ana@example.com", Name: "Ana"},
		Epoch: 1,
	}}
}

func (m *mockSession) Current() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// end simulates a logout: Anonymous and a new epoch.
func (m *mockSession) end() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ended := m.snap.Epoch
	m.snap = session.Snapshot{State: session.Anonymous, Epoch: ended + 1}
	return ended
}

type mockLedgerAPI struct {
	mu         sync.Mutex
	movements  []domain.Movement
	categories []domain.Category
	listErr    error
	createErr  error
	created    []domain.NewMovement
	stored     []domain.Movement
	catCalls   int
	movCalls   int
	// holdCategories, when set, blocks ListCategories until closed.
	holdCategories chan struct{}
	nextID         int64
}

func (m *mockLedgerAPI) ListMovements(context.Context) ([]domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movCalls++
	return append([]domain.Movement(nil), m.movements...), m.listErr
}

func (m *mockLedgerAPI) ListCategories(ctx context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	m.catCalls++
	hold := m.holdCategories
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Category(nil), m.categories...), nil
}

func (m *mockLedgerAPI) CreateMovement(_ context.Context, in domain.NewMovement) (*domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, in)
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	rec := domain.Movement{
		ID:          100 + m.nextID,
		Date:        domain.NewDate(2025, 3, 31),
		Description: in.Description,
		Amount:      in.Amount,
		CategoryID:  in.CategoryID,
	}
	m.stored = append([]domain.Movement{rec}, m.stored...)
	return &rec, nil
}

func (m *mockLedgerAPI) calls() (movements, categories int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.movCalls, m.catCalls
}

type mockContactAPI struct {
	sent []domain.ContactMessage
	err  error
}

func (m *mockContactAPI) SubmitContact(_ context.Context, msg domain.ContactMessage) error {
	m.sent = append(m.sent, msg)
	return m.err
}

// --- Fixtures ---

func int64p(v int64) *int64 { return &v }

var insumos = domain.Category{ID: 1, Name: "Insumos", Kind: domain.KindExpense}

type fixture struct {
	api      *mockLedgerAPI
	session  *mockSession
	store    *service.LedgerStore
	pipeline *service.MovementPipeline
	board    *service.Dashboard
	metrics  *observability.Metrics
}

func newFixture(t *testing.T, api *mockLedgerAPI) *fixture {
	t.Helper()
	sess := authenticated(7)
	metrics := observability.NewMetrics()
	categories := cache.New[int64, []domain.Category](time.Minute)
	t.Cleanup(categories.Close)

	store := service.NewLedgerStore(api, sess, categories, metrics, zap.NewNop())
	return &fixture{
		api:      api,
		session:  sess,
		store:    store,
		pipeline: service.NewMovementPipeline(api, sess, store, metrics, zap.NewNop()),
		board:    service.NewDashboard(store, metrics, zap.NewNop()),
		metrics:  metrics,
	}
}
