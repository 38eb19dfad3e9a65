package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/handler"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/cache"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/client"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/credstore"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/resilience"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"
	"github.com/boddenberg/gestor-gastos-bfa/internal/testutil/fakeapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type app struct {
	api    *fakeapi.Server
	router http.Handler
}

func newApp(t *testing.T) *app {
	t.Helper()
	api, ts := fakeapi.Start(t)
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	sess := session.New(credstore.NewMemoryStore(), metrics, logger)
	public := &http.Client{Transport: client.NewAuthTransport(nil, nil), Timeout: 5 * time.Second}
	authed := &http.Client{Transport: client.NewAuthTransport(nil, sess), Timeout: 5 * time.Second}
	cb := resilience.NewCircuitBreaker("handler-test", resilience.DefaultConfig())
	gestor := client.New(ts.URL, public, authed, cb, metrics, logger)

	categories := cache.New[int64, []domain.Category](time.Minute)
	t.Cleanup(categories.Close)
	store := service.NewLedgerStore(gestor, sess, categories, metrics, logger)
	sess.OnTeardown(store.Reset)

	router := handler.NewRouter(handler.Services{
		Sessions:  session.NewManager(sess, gestor, logger),
		Ledger:    store,
		Dashboard: service.NewDashboard(store, metrics, logger),
		Movements: service.NewMovementPipeline(gestor, sess, store, metrics, logger),
		Contact:   service.NewContactService(gestor, logger),
		Breaker:   cb,
	}, []string{"http://localhost:5173"}, metrics, logger)

	return &app{api: api, router: router}
}

func (a *app) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *app) login(t *testing.T) {
	t.Helper()
	a.api.Seed("ana@example.com", "secreto", "Ana")
	rec := a.do(t, http.MethodPost, "/v1/session/login", map[string]string{"email": "ana@example.com", "password": "secreto"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// waitReady polls the ledger until the background load has landed.
func (a *app) waitReady(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return a.do(t, http.MethodGet, "/v1/ledger", nil).Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

type ledgerBody struct {
	Status  string `json:"status"`
	Entries []struct {
		Description string `json:"concepto"`
		Category    string `json:"categoria"`
		Kind        string `json:"tipo"`
		Amount      string `json:"monto"`
	} `json:"movimientos"`
	Totals struct {
		Income    string `json:"ingresos"`
		Expense   string `json:"egresos"`
		Available string `json:"disponible"`
	} `json:"totales"`
	OverdraftAlert bool `json:"alerta_saldo_negativo"`
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
	Hint  string `json:"hint"`
}

// ============================================================
// Operational endpoints
// ============================================================

func TestHealthz(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/healthz", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	health := decode[domain.HealthStatus](t, rec)
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %s", health.Status)
	}
}

func TestReadyz(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/readyz", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	a := newApp(t)
	a.login(t)

	rec := a.do(t, http.MethodGet, "/metrics", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("gestor_session_transitions_total")) {
		t.Error("expected session metrics to be exposed")
	}
}

func TestCORSPreflight(t *testing.T) {
	a := newApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/session/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	a.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

// ============================================================
// Session
// ============================================================

func TestSession_LoginLoadsLedger(t *testing.T) {
	a := newApp(t)
	a.login(t)

	rec := a.do(t, http.MethodGet, "/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[session.Snapshot](t, rec)
	assert.Equal(t, session.Authenticated, snap.State)
	require.NotNil(t, snap.User)
	assert.Equal(t, "Ana", snap.User.Name)

	a.waitReady(t)
	assert.Equal(t, 1, a.api.Calls("GET /categorias"))
}

func TestSession_LoginBadCredentials(t *testing.T) {
	a := newApp(t)
	a.api.Seed("ana@example.com", "secreto", "Ana")

	rec := a.do(t, http.MethodPost, "/v1/session/login", map[string]string{"email": "ana@example.com", "password": "otra"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Credenciales inválidas", decode[errorBody](t, rec).Error)
}

func TestSession_LoginValidation(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/v1/session/login", map[string]string{"email": "", "password": "x"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decode[errorBody](t, rec).Field)
	assert.Zero(t, a.api.Calls("POST /token"))
}

func TestSession_RegisterDuplicateHintsLogin(t *testing.T) {
	a := newApp(t)
	a.api.Seed("ana@example.com", "secreto", "Ana")

	rec := a.do(t, http.MethodPost, "/v1/session/register", map[string]string{"email": "ana@example.com", "password": "secreto"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "El email ya está registrado", body.Error)
	assert.NotEmpty(t, body.Hint)
}

func TestSession_RegisterCreatesAndLogsIn(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/v1/session/register", map[string]string{"email": "luis@example.com", "password": "secreto"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	snap := decode[session.Snapshot](t, rec)
	assert.Equal(t, session.Authenticated, snap.State)
	assert.Equal(t, "luis", snap.User.Name)
}

func TestSession_LogoutLocksLedger(t *testing.T) {
	a := newApp(t)
	a.login(t)
	a.waitReady(t)

	rec := a.do(t, http.MethodDelete, "/v1/session", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/v1/ledger", nil).Code)
	assert.Equal(t, session.Anonymous, decode[session.Snapshot](t, a.do(t, http.MethodGet, "/v1/session", nil)).State)
}

// ============================================================
// Ledger and movements
// ============================================================

func TestLedger_RequiresSession(t *testing.T) {
	a := newApp(t)

	for _, path := range []string{"/v1/ledger", "/v1/categories"} {
		rec := a.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := a.do(t, http.MethodPost, "/v1/movements", map[string]string{"tipo": "ingreso", "concepto": "x", "monto": "1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMovements_ExpenseAppearsInLedger(t *testing.T) {
	a := newApp(t)
	a.login(t)
	a.waitReady(t)

	rec := a.do(t, http.MethodPost, "/v1/movements", map[string]any{"tipo": "ingreso", "concepto": "Venta", "monto": 1000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPost, "/v1/movements", map[string]any{"tipo": "egreso", "concepto": "Compra denim", "categoria": "Insumos", "monto": "500"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[domain.Entry](t, rec)
	assert.Equal(t, "Insumos", entry.Category)
	assert.Equal(t, domain.KindExpense, entry.Kind)

	view := decode[ledgerBody](t, a.do(t, http.MethodGet, "/v1/ledger", nil))
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "Compra denim", view.Entries[0].Description)
	assert.Equal(t, "1000", view.Totals.Income)
	assert.Equal(t, "500", view.Totals.Expense)
	assert.Equal(t, "500", view.Totals.Available)
}

func TestMovements_ValidationError(t *testing.T) {
	a := newApp(t)
	a.login(t)
	a.waitReady(t)

	rec := a.do(t, http.MethodPost, "/v1/movements", map[string]any{"tipo": "egreso", "concepto": "x", "categoria": "Viajes", "monto": "10"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "categoria", decode[errorBody](t, rec).Field)
}

func TestLedger_RangeAndOverdraft(t *testing.T) {
	a := newApp(t)
	a.login(t)
	a.waitReady(t)

	rec := a.do(t, http.MethodPost, "/v1/movements", map[string]any{"tipo": "egreso", "concepto": "Flete", "categoria": "Logística", "monto": "20"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	view := decode[ledgerBody](t, a.do(t, http.MethodGet, "/v1/ledger", nil))
	assert.True(t, view.OverdraftAlert)
	assert.False(t, decode[ledgerBody](t, a.do(t, http.MethodGet, "/v1/ledger", nil)).OverdraftAlert)

	empty := decode[ledgerBody](t, a.do(t, http.MethodGet, "/v1/ledger?from=1999-01-01&to=1999-12-31", nil))
	assert.Empty(t, empty.Entries)
	assert.Equal(t, "0", empty.Totals.Available)

	rec = a.do(t, http.MethodGet, "/v1/ledger?from=ayer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedger_Refresh(t *testing.T) {
	a := newApp(t)
	a.login(t)
	a.waitReady(t)

	rec := a.do(t, http.MethodPost, "/v1/ledger/refresh", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, a.api.Calls("GET /movimientos"))
	assert.Equal(t, 1, a.api.Calls("GET /categorias"), "refresh reuses cached categories")
}

func TestCategories_FilterByKind(t *testing.T) {
	a := newApp(t)
	a.login(t)
	a.waitReady(t)

	rec := a.do(t, http.MethodGet, "/v1/categories?tipo=egreso", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Categories []domain.Category `json:"categorias"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Categories, 3)
	for _, c := range body.Categories {
		assert.Equal(t, domain.KindExpense, c.Kind)
	}
}

// ============================================================
// Contact and client metrics
// ============================================================

func TestContact_IsPublic(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/v1/contact", domain.ContactMessage{Name: "Ana", Email: "ana@example.com", Message: "Hola"})

	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, a.api.Contacts(), 1)
}

func TestClientMetrics(t *testing.T) {
	a := newApp(t)
	a.login(t)

	rec := a.do(t, http.MethodGet, "/v1/metrics/client", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[observability.ClientSnapshot](t, rec)
	assert.Equal(t, float64(1), snap.SessionsEstablished)
}
