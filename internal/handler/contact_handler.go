package handler

import (
	"net/http"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 2. Contacto
// ============================================================

func contactHandler(svc *service.ContactService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/contact")
		defer span.End()

		var msg domain.ContactMessage
		if err := decodeJSON(w, r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := svc.Submit(ctx, msg); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusAccepted, domain.SuccessResponse{Message: "Mensaje enviado"})
	}
}
