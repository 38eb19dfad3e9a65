// Package domain defines the core entities of the expense manager.
// JSON tags follow the backend API contract (Spanish field names); the
// local Entry representation mirrors what the frontend renders.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ============================================================
// Kinds
// ============================================================

// Kind tells incomes and expenses apart.
type Kind string

const (
	KindIncome  Kind = "ingreso"
	KindExpense Kind = "egreso"
)

// ParseKind normalises the spellings used by the backend and the frontend.
// The backend stores expense categories as "gasto".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ingreso", "income":
		return KindIncome, nil
	case "egreso", "gasto", "expense":
		return KindExpense, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// ============================================================
// Users
// ============================================================

// User is the backend's user record, cached locally as the current user.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"nombre"`
}

// NewUser is the body for user creation.
type NewUser struct {
	Name     string `json:"nombre"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is the body returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// ============================================================
// Categories
// ============================================================

// Category is immutable reference data shared by all movements.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
	Kind Kind   `json:"tipo"`
}

// UnmarshalJSON accepts every kind spelling known to ParseKind.
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   int64  `json:"id"`
		Name string `json:"nombre"`
		Kind string `json:"tipo"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return fmt.Errorf("category %d: %w", raw.ID, err)
	}
	*c = Category{ID: raw.ID, Name: raw.Name, Kind: kind}
	return nil
}

// ============================================================
// Movements
// ============================================================

// Movement is a signed financial entry as stored by the backend.
// A positive amount is an income, a negative one an expense.
type Movement struct {
	ID          int64           `json:"id"`
	Date        Date            `json:"fecha"`
	Description string          `json:"descripcion"`
	Amount      decimal.Decimal `json:"monto"`
	CategoryID  *int64          `json:"categoria_id"`
}

// NewMovement is the body for movement creation. CategoryID is sent as an
// explicit null for incomes.
type NewMovement struct {
	Description string          `json:"descripcion"`
	Amount      decimal.Decimal `json:"monto"`
	CategoryID  *int64          `json:"categoria_id"`
}

// MarshalJSON sends the amount as a JSON number; the backend rejects strings.
func (m NewMovement) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Description string      `json:"descripcion"`
		Amount      json.Number `json:"monto"`
		CategoryID  *int64      `json:"categoria_id"`
	}{m.Description, json.Number(m.Amount.String()), m.CategoryID})
}

// Entry is the local, unsigned-with-kind representation of a Movement.
type Entry struct {
	ID          int64           `json:"id"`
	Date        Date            `json:"fecha"`
	Description string          `json:"concepto"`
	Category    string          `json:"categoria"`
	Kind        Kind            `json:"tipo"`
	Amount      decimal.Decimal `json:"monto"`
	Anomaly     string          `json:"anomalia,omitempty"`
}

// MovementInput is what the user fills in to record a movement.
type MovementInput struct {
	Kind         Kind
	Description  string
	CategoryName string
	Amount       string
}

// ============================================================
// Contact
// ============================================================

// ContactMessage is the public contact form.
type ContactMessage struct {
	Name    string `json:"nombre"`
	Email   string `json:"email"`
	Message string `json:"mensaje"`
}
