package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/config"
	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/handler"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/cache"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/client"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/credstore"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/resilience"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "reading .env: %v\n", err)
		os.Exit(1)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("gestor_api_url", cfg.GestorAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.String("credential_db", cfg.CredentialDBPath),
		zap.Duration("category_cache_ttl", cfg.CategoryCacheTTL),
		zap.Strings("cors_origins", cfg.CORSAllowedOrigins),
	)

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, "gestor-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Credential store ---
	store, err := credstore.OpenSQLite(context.Background(), cfg.CredentialDBPath)
	if err != nil {
		logger.Fatal("failed to open credential store", zap.Error(err))
	}
	defer store.Close()

	// --- Session ---
	sess := session.New(store, metrics, logger)

	// --- Clients ---
	cb := resilience.NewCircuitBreaker("gestor-api", cfg.Breaker.Resilience())
	publicHTTP := &http.Client{Transport: client.NewAuthTransport(nil, nil), Timeout: cfg.HTTPTimeout}
	authedHTTP := &http.Client{Transport: client.NewAuthTransport(nil, sess), Timeout: cfg.HTTPTimeout}
	gestor := client.New(cfg.GestorAPIURL, publicHTTP, authedHTTP, cb, metrics, logger)

	// --- Cache ---
	categoryCache := cache.New[int64, []domain.Category](cfg.CategoryCacheTTL)
	defer categoryCache.Close()

	// --- Services ---
	manager := session.NewManager(sess, gestor, logger)
	ledgerStore := service.NewLedgerStore(gestor, sess, categoryCache, metrics, logger)
	sess.OnTeardown(ledgerStore.Reset)

	// --- Restore the persisted session ---
	restored := manager.RestoreAsync(context.Background())
	go func() {
		if err := <-restored; err != nil {
			logger.Warn("session not restored", zap.Error(err))
			return
		}
		if manager.Current().State != session.Authenticated {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout*3)
		defer cancel()
		if err := ledgerStore.Load(ctx); err != nil {
			logger.Warn("initial ledger load failed", zap.Error(err))
		}
	}()

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Sessions:  manager,
		Ledger:    ledgerStore,
		Dashboard: service.NewDashboard(ledgerStore, metrics, logger),
		Movements: service.NewMovementPipeline(gestor, sess, ledgerStore, metrics, logger),
		Contact:   service.NewContactService(gestor, logger),
		Breaker:   cb,
	}, cfg.CORSAllowedOrigins, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
