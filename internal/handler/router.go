package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// backgroundLoadTimeout bounds the ledger load started after a login.
const backgroundLoadTimeout = 30 * time.Second

// Services are the collaborators the router dispatches to.
type Services struct {
	Sessions  *session.Manager
	Ledger    *service.LedgerStore
	Dashboard *service.Dashboard
	Movements *service.MovementPipeline
	Contact   *service.ContactService
	Breaker   *gobreaker.CircuitBreaker
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, allowedOrigins []string, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Breaker))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Sesión
		// =============================================
		r.Get("/session", getSessionHandler(svc.Sessions))
		r.Post("/session/login", loginHandler(svc.Sessions, svc.Ledger, logger))
		r.Post("/session/register", registerHandler(svc.Sessions, svc.Ledger, logger))
		r.Delete("/session", logoutHandler(svc.Sessions, logger))

		// =============================================
		// 2. Contacto (público)
		// =============================================
		r.Post("/contact", contactHandler(svc.Contact, logger))

		// =============================================
		// 3. Métricas del cliente
		// =============================================
		r.Get("/metrics/client", clientMetricsHandler(metrics))

		// =============================================
		// 4. Movimientos (requiere sesión)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(RequireSession(svc.Sessions, logger))

			r.Get("/ledger", getLedgerHandler(svc.Dashboard, logger))
			r.Post("/ledger/refresh", refreshLedgerHandler(svc.Dashboard, svc.Ledger, logger))
			r.Post("/movements", createMovementHandler(svc.Movements, logger))
			r.Get("/categories", listCategoriesHandler(svc.Ledger, logger))
		})
	})

	return r
}

// ============================================================
// Health
// ============================================================

func healthzHandler(cb *gobreaker.CircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "bfa", Status: "healthy", LastChecked: now},
		}

		overall := "healthy"
		if cb != nil {
			backend := domain.ServiceHealth{Name: "gestor-api", Status: "healthy", Detail: cb.State().String(), LastChecked: now}
			if cb.State() != gobreaker.StateClosed {
				backend.Status = "degraded"
				overall = "degraded"
			}
			services = append(services, backend)
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func clientMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}

// loadLedger starts a ledger load detached from the request that caused it.
// The outcome lands in the store and is read through GET /v1/ledger.
func loadLedger(store *service.LedgerStore, logger *zap.Logger) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundLoadTimeout)
		defer cancel()
		if err := store.Load(ctx); err != nil {
			logger.Warn("background ledger load failed", zap.Error(err))
		}
	}()
}
