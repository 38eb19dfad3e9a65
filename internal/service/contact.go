package service

import (
	"context"
	"strings"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/port"

	"go.uber.org/zap"
)

// ContactService forwards the public contact form. No session is needed.
type ContactService struct {
	api    port.ContactAPI
	logger *zap.Logger
}

// NewContactService creates a ContactService.
func NewContactService(api port.ContactAPI, logger *zap.Logger) *ContactService {
	return &ContactService{api: api, logger: logger}
}

// Submit validates and sends msg.
func (s *ContactService) Submit(ctx context.Context, msg domain.ContactMessage) error {
	ctx, span := tracer.Start(ctx, "ContactService.Submit")
	defer span.End()

	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Message = strings.TrimSpace(msg.Message)

	switch {
	case msg.Name == "":
		return &domain.ErrValidation{Field: "nombre", Message: "El nombre es obligatorio"}
	case !strings.Contains(msg.Email, "@"):
		return &domain.ErrValidation{Field: "email", Message: "El email no es válido"}
	case msg.Message == "":
		return &domain.ErrValidation{Field: "mensaje", Message: "El mensaje es obligatorio"}
	}

	if err := s.api.SubmitContact(ctx, msg); err != nil {
		s.logger.Warn("contact submission failed", zap.Error(err))
		return err
	}
	return nil
}
