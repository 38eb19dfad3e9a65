package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("session")

// maxPasswordBytes is the bcrypt input limit enforced by the backend.
const maxPasswordBytes = 72

// Manager drives the session through restore, login, registration and
// logout. Restore, Login and Register are serialised; Logout is not and
// always wins over an operation in flight.
type Manager struct {
	session *Session
	api     port.AuthAPI
	logger  *zap.Logger
	now     func() time.Time

	opMu sync.Mutex
}

// NewManager creates a Manager for session.
func NewManager(session *Session, api port.AuthAPI, logger *zap.Logger) *Manager {
	return &Manager{
		session: session,
		api:     api,
		logger:  logger,
		now:     time.Now,
	}
}

// Session returns the managed session.
func (m *Manager) Session() *Session {
	return m.session
}

// Current returns a snapshot of the session.
func (m *Manager) Current() Snapshot {
	return m.session.Current()
}

// ============================================================
// Restore
// ============================================================

// Restore re-establishes the session from the persisted credential.
// A missing credential leaves the session Anonymous and returns nil.
// A rejected or expired credential is purged. When the backend cannot be
// reached the credential is kept for the next start.
func (m *Manager) Restore(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Manager.Restore")
	defer span.End()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	token, err := m.session.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to read stored credential", zap.Error(err))
		return err
	}
	if token == "" {
		return nil
	}

	if m.tokenExpired(token) {
		m.logger.Info("stored credential expired, purging")
		m.session.Teardown()
		return &domain.ErrUnauthorized{Message: "stored credential expired"}
	}

	epoch, ok := m.session.begin(token)
	if !ok {
		return nil
	}

	user, err := m.api.GetCurrentUser(ctx)
	if err != nil {
		var network *domain.ErrNetwork
		keep := errors.As(err, &network)
		m.session.abort(epoch, !keep)
		m.logger.Info("session restore failed",
			zap.Bool("credential_kept", keep),
			zap.Error(err),
		)
		return err
	}

	if !m.session.establish(epoch, user) {
		return &domain.ErrUnauthorized{Message: "session ended during restore"}
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))
	m.logger.Info("session restored", zap.Int64("user_id", user.ID))
	return nil
}

// RestoreAsync runs Restore in the background. The channel receives its
// result and is then closed.
func (m *Manager) RestoreAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- m.Restore(ctx)
	}()
	return done
}

// tokenExpired reads the exp claim without verifying the signature. Opaque
// or claim-less credentials are left for the backend to judge.
func (m *Manager) tokenExpired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !m.now().Before(claims.ExpiresAt.Time)
}

// ============================================================
// Login & registration
// ============================================================

// Login exchanges email and password for a credential and loads the user.
// An existing session is ended first.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Manager.Login")
	defer span.End()

	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.login(ctx, email, password)
}

// Register creates the account and then logs in with the same credentials.
// name defaults to the local part of email. A duplicate email returns
// ErrConflict and leaves the session untouched.
func (m *Manager) Register(ctx context.Context, email, password, name string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Manager.Register")
	defer span.End()

	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName(email)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if _, err := m.api.CreateUser(ctx, domain.NewUser{Name: name, Email: email, Password: password}); err != nil {
		m.logger.Info("registration rejected", zap.Error(err))
		return nil, err
	}
	m.logger.Info("user registered")

	return m.login(ctx, email, password)
}

func (m *Manager) login(ctx context.Context, email, password string) (*domain.User, error) {
	if m.session.Current().State != Anonymous {
		m.session.Teardown()
	}

	epoch, ok := m.session.begin("")
	if !ok {
		return nil, &domain.ErrSessionBusy{}
	}

	token, err := m.api.ObtainToken(ctx, email, password)
	if err != nil {
		m.session.abort(epoch, false)
		return nil, err
	}

	if !m.session.adopt(ctx, epoch, token) {
		return nil, &domain.ErrUnauthorized{Message: "session ended during login"}
	}

	user, err := m.api.GetCurrentUser(ctx)
	if err != nil {
		m.session.abort(epoch, true)
		return nil, err
	}

	if !m.session.establish(epoch, user) {
		return nil, &domain.ErrUnauthorized{Message: "session ended during login"}
	}
	m.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return user, nil
}

// ============================================================
// Logout
// ============================================================

// Logout ends the session locally. No network call is made.
func (m *Manager) Logout() {
	m.session.Teardown()
	m.logger.Info("user logged out")
}

// ============================================================
// Validation
// ============================================================

// DefaultName derives a display name from the local part of email.
func DefaultName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func validateCredentials(email, password string) error {
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || local == "" || domainPart == "" || strings.ContainsAny(email, " \t") {
		return &domain.ErrValidation{Field: "email", Message: "El email no es válido"}
	}
	if password == "" {
		return &domain.ErrValidation{Field: "password", Message: "La contraseña es obligatoria"}
	}
	if len(password) > maxPasswordBytes {
		return &domain.ErrValidation{Field: "password", Message: "La contraseña no puede superar 72 bytes"}
	}
	return nil
}
