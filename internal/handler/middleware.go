package handler

import (
	"net/http"

	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"go.uber.org/zap"
)

// SessionReader exposes the current session state.
type SessionReader interface {
	Current() session.Snapshot
}

// RequireSession rejects requests while no user is authenticated.
func RequireSession(sessions SessionReader, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sessions.Current().State != session.Authenticated {
				logger.Debug("session required", zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, "Iniciá sesión para continuar")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
