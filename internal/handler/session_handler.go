package handler

import (
	"net/http"

	"github.com/boddenberg/gestor-gastos-bfa/internal/service"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"go.uber.org/zap"
)

// ============================================================
// 1. Sesión
// ============================================================

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"nombre,omitempty"`
}

func getSessionHandler(mgr *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, mgr.Current())
	}
}

func loginHandler(mgr *session.Manager, store *service.LedgerStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session/login")
		defer span.End()

		var req credentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if _, err := mgr.Login(ctx, req.Email, req.Password); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		loadLedger(store, logger)
		writeJSON(w, http.StatusOK, mgr.Current())
	}
}

func registerHandler(mgr *session.Manager, store *service.LedgerStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/session/register")
		defer span.End()

		var req credentialsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if _, err := mgr.Register(ctx, req.Email, req.Password, req.Name); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		loadLedger(store, logger)
		writeJSON(w, http.StatusCreated, mgr.Current())
	}
}

func logoutHandler(mgr *session.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mgr.Logout()
		logger.Debug("logout requested")
		w.WriteHeader(http.StatusNoContent)
	}
}
