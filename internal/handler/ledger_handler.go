package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/ledger"
	"github.com/boddenberg/gestor-gastos-bfa/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 4. Movimientos
// ============================================================

// parseRange reads the optional from/to query parameters.
func parseRange(r *http.Request) (ledger.Range, error) {
	var rng ledger.Range
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			return rng, &domain.ErrValidation{Field: "from", Message: "Fecha inválida"}
		}
		rng.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			return rng, &domain.ErrValidation{Field: "to", Message: "Fecha inválida"}
		}
		rng.To = d
	}
	return rng, nil
}

// writeView answers 202 while the ledger is idle or loading.
func writeView(w http.ResponseWriter, view service.LedgerView) {
	switch view.Status {
	case service.StatusReady:
		writeJSON(w, http.StatusOK, view)
	case service.StatusFailed:
		writeJSON(w, http.StatusBadGateway, view)
	default:
		writeJSON(w, http.StatusAccepted, view)
	}
}

func getLedgerHandler(board *service.Dashboard, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/ledger")
		defer span.End()

		rng, err := parseRange(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		view := board.View(rng)
		span.SetAttributes(attribute.String("ledger.status", string(view.Status)))
		writeView(w, view)
	}
}

func refreshLedgerHandler(board *service.Dashboard, store *service.LedgerStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/ledger/refresh")
		defer span.End()

		rng, err := parseRange(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := store.Refresh(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeView(w, board.View(rng))
	}
}

type movementRequest struct {
	Kind        string          `json:"tipo"`
	Description string          `json:"concepto"`
	Category    string          `json:"categoria"`
	Amount      json.RawMessage `json:"monto"`
}

// amountText accepts the amount as typed in a form or as a JSON number.
func (m movementRequest) amountText() string {
	raw := strings.TrimSpace(string(m.Amount))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Amount, &s); err == nil {
		return s
	}
	return raw
}

func createMovementHandler(pipeline *service.MovementPipeline, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/movements")
		defer span.End()

		var req movementRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		entry, err := pipeline.Submit(ctx, domain.MovementInput{
			Kind:         domain.Kind(strings.ToLower(strings.TrimSpace(req.Kind))),
			Description:  req.Description,
			CategoryName: req.Category,
			Amount:       req.amountText(),
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, entry)
	}
}

type categoriesResponse struct {
	Status     service.LoadStatus `json:"status"`
	Categories []domain.Category  `json:"categorias"`
}

func listCategoriesHandler(store *service.LedgerStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var kind domain.Kind
		if v := r.URL.Query().Get("tipo"); v != "" {
			k, err := domain.ParseKind(v)
			if err != nil {
				handleServiceError(w, &domain.ErrValidation{Field: "tipo", Message: "Tipo inválido"}, logger)
				return
			}
			kind = k
		}

		snap := store.Snapshot()
		out := make([]domain.Category, 0, len(snap.Categories))
		for _, c := range snap.Categories {
			if kind == "" || c.Kind == kind {
				out = append(out, c)
			}
		}

		status := http.StatusOK
		if snap.Status != service.StatusReady {
			status = http.StatusAccepted
		}
		writeJSON(w, status, categoriesResponse{Status: snap.Status, Categories: out})
	}
}
