package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxRequestBody = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into v. An empty body is an error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validation *domain.ErrValidation
	var conflict *domain.ErrConflict
	var invalidCredentials *domain.ErrInvalidCredentials
	var unauthorized *domain.ErrUnauthorized
	var busy *domain.ErrSessionBusy
	var network *domain.ErrNetwork
	var server *domain.ErrServer

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("field", validation.Field), zap.String("error", validation.Message))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validation.Message, Field: validation.Field})
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Hint: "Iniciá sesión con ese email"})
	case errors.As(err, &invalidCredentials):
		logger.Debug("invalid credentials")
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &busy):
		logger.Info("session busy")
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &unauthorized):
		logger.Warn("unauthorized", zap.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, "Tu sesión expiró. Iniciá sesión nuevamente")
	case errors.As(err, &network):
		logger.Warn("backend unreachable", zap.String("operation", network.Operation), zap.Error(network.Err))
		writeError(w, http.StatusBadGateway, "No se pudo conectar con el servidor")
	case errors.As(err, &server):
		logger.Warn("backend rejected request", zap.Int("status", server.Status), zap.String("error", server.Message))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
