// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the session and
// service layers from the concrete backend client and storage.
package port

import (
	"context"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// AuthAPI is the part of the backend that manages users and tokens.
type AuthAPI interface {
	CreateUser(ctx context.Context, u domain.NewUser) (*domain.User, error)
	ObtainToken(ctx context.Context, email, password string) (string, error)
	GetCurrentUser(ctx context.Context) (*domain.User, error)
}

// LedgerAPI reads and writes the current user's movements.
type LedgerAPI interface {
	ListMovements(ctx context.Context) ([]domain.Movement, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateMovement(ctx context.Context, m domain.NewMovement) (*domain.Movement, error)
}

// ContactAPI submits the public contact form.
type ContactAPI interface {
	SubmitContact(ctx context.Context, msg domain.ContactMessage) error
}

// CredentialStore persists the bearer credential across restarts.
// Load returns "" and no error when nothing is stored.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// BalanceMemory remembers each user's last seen available balance across
// process restarts. ok is false when nothing was saved for userID.
type BalanceMemory interface {
	LastAvailable(ctx context.Context, userID int64) (available decimal.Decimal, ok bool, err error)
	SaveAvailable(ctx context.Context, userID int64, available decimal.Decimal) error
}

// Cache provides generic caching with TTL.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
}
