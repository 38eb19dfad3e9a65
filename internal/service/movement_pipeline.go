package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/ledger"
	"github.com/boddenberg/gestor-gastos-bfa/internal/port"
	"github.com/boddenberg/gestor-gastos-bfa/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxDescriptionLen = 200

// MovementPipeline validates, persists and reconciles new movements.
type MovementPipeline struct {
	api     port.LedgerAPI
	session SessionReader
	store   *LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMovementPipeline creates the submission pipeline.
func NewMovementPipeline(api port.LedgerAPI, sess SessionReader, store *LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *MovementPipeline {
	return &MovementPipeline{api: api, session: sess, store: store, metrics: metrics, logger: logger}
}

// Submit records a movement and returns its local entry. Invalid input is
// rejected before any network call. The server's id and date are kept; the
// entry is built exactly as a fresh load would build it.
func (p *MovementPipeline) Submit(ctx context.Context, in domain.MovementInput) (*domain.Entry, error) {
	ctx, span := tracer.Start(ctx, "MovementPipeline.Submit")
	defer span.End()

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, p.invalid("concepto", "El concepto es obligatorio")
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return nil, p.invalid("concepto", fmt.Sprintf("El concepto no puede superar %d caracteres", maxDescriptionLen))
	}
	if in.Kind != domain.KindIncome && in.Kind != domain.KindExpense {
		return nil, p.invalid("tipo", "El tipo debe ser ingreso o egreso")
	}
	amount, err := ledger.ParseAmount(in.Amount)
	if err != nil {
		return nil, p.invalid("monto", "El monto debe ser un número positivo")
	}

	sess := p.session.Current()
	if sess.State != session.Authenticated {
		return nil, &domain.ErrUnauthorized{Message: "no active session"}
	}

	snap := p.store.Snapshot()
	catalog := ledger.NewCatalog(snap.Categories)

	var categoryID *int64
	if in.Kind == domain.KindExpense {
		if snap.Status != StatusReady {
			return nil, p.invalid("categoria", "Las categorías todavía no están cargadas")
		}
		cat, ok := catalog.ExpenseCategory(in.CategoryName)
		if !ok {
			return nil, p.invalid("categoria", fmt.Sprintf("La categoría %q no existe", strings.TrimSpace(in.CategoryName)))
		}
		id := cat.ID
		categoryID = &id
	}

	span.SetAttributes(attribute.String("movement.kind", string(in.Kind)))

	created, err := p.api.CreateMovement(ctx, domain.NewMovement{
		Description: description,
		Amount:      ledger.SignedAmount(in.Kind, amount),
		CategoryID:  categoryID,
	})
	if err != nil {
		p.logger.Warn("movement submission failed", zap.Error(err))
		return nil, err
	}

	entry := ledger.EntryFromMovement(*created, catalog)
	p.metrics.IncrMovementSubmitted(string(entry.Kind))

	if !p.store.Prepend(sess.Epoch, entry) {
		p.logger.Debug("created movement not added to the local list",
			zap.Int64("movement_id", entry.ID),
		)
	}
	return &entry, nil
}

func (p *MovementPipeline) invalid(field, msg string) error {
	p.logger.Debug("movement rejected locally", zap.String("field", field), zap.String("reason", msg))
	return &domain.ErrValidation{Field: field, Message: msg}
}
