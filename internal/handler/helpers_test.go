package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", &domain.ErrValidation{Field: "monto", Message: "El monto debe ser mayor a 0"}, http.StatusBadRequest, "El monto debe ser mayor a 0"},
		{"conflict", &domain.ErrConflict{Message: "El email ya está registrado"}, http.StatusConflict, "El email ya está registrado"},
		{"invalid credentials", &domain.ErrInvalidCredentials{}, http.StatusUnauthorized, "Credenciales inválidas"},
		{"session busy", &domain.ErrSessionBusy{}, http.StatusConflict, "Ya hay un inicio de sesión en curso"},
		{"wrapped session busy", fmt.Errorf("login: %w", &domain.ErrSessionBusy{}), http.StatusConflict, "Ya hay un inicio de sesión en curso"},
		{"unauthorized", &domain.ErrUnauthorized{Message: "expired"}, http.StatusUnauthorized, "Tu sesión expiró. Iniciá sesión nuevamente"},
		{"network", &domain.ErrNetwork{Operation: "list_movements", Err: errors.New("refused")}, http.StatusBadGateway, "No se pudo conectar con el servidor"},
		{"server", &domain.ErrServer{Status: 422, Message: "Monto fuera de rango"}, http.StatusBadGateway, "Monto fuera de rango"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tc.err, zap.NewNop())

			assert.Equal(t, tc.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.msg, body.Error)
		})
	}
}
