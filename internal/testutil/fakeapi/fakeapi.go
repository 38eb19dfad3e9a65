// Package fakeapi is an in-memory implementation of the expense manager
// backend contract, used to test the client core end to end.
package fakeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCategories is the catalog every fake backend starts with.
var DefaultCategories = []domain.Category{
	{ID: 1, Name: "Insumos", Kind: domain.KindExpense},
	{ID: 2, Name: "Logística", Kind: domain.KindExpense},
	{ID: 3, Name: "Servicios", Kind: domain.KindExpense},
	{ID: 4, Name: "Ventas", Kind: domain.KindIncome},
}

type account struct {
	user domain.User
	hash []byte
}

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	mu         sync.Mutex
	secret     []byte
	accounts   map[string]*account
	movements  map[int64][]domain.Movement
	categories []domain.Category
	contacts   []domain.ContactMessage
	calls      map[string]int
	gates      map[string]chan struct{}
	revoked    map[string]bool
	nextUserID int64
	nextMovID  int64

	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration
	// Today is the date stamped on created movements.
	Today domain.Date
}

// New creates an empty fake backend with the default categories.
func New() *Server {
	return &Server{
		secret:     []byte("fakeapi-secret"),
		accounts:   make(map[string]*account),
		movements:  make(map[int64][]domain.Movement),
		categories: append([]domain.Category(nil), DefaultCategories...),
		calls:      make(map[string]int),
		gates:      make(map[string]chan struct{}),
		revoked:    make(map[string]bool),
		TokenTTL:   time.Hour,
		Today:      domain.Today(),
	}
}

// Start serves s on an httptest server closed at the end of the test.
func Start(t testing.TB) (*Server, *httptest.Server) {
	t.Helper()
	s := New()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

// Handler returns the backend routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.track)

	r.Post("/usuarios", s.createUser)
	r.Post("/token", s.token)
	r.Post("/contacto", s.contact)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/usuarios/me", s.me)
		r.Get("/movimientos", s.listMovements)
		r.Post("/movimientos", s.createMovement)
		r.Get("/categorias", s.listCategories)
	})
	return r
}

// ============================================================
// Test helpers
// ============================================================

// Seed registers a user directly and returns it.
func (s *Server) Seed(email, password, name string) domain.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	u := domain.User{ID: s.nextUserID, Email: email, Name: name}
	s.accounts[strings.ToLower(email)] = &account{user: u, hash: hash}
	return u
}

// AddMovement stores a movement for userID and returns it with an id.
// A zero Date is stamped with Today.
func (s *Server) AddMovement(userID int64, m domain.Movement) domain.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMovID++
	m.ID = s.nextMovID
	if m.Date.IsZero() {
		m.Date = s.Today
	}
	// newest first, as the real backend orders them
	s.movements[userID] = append([]domain.Movement{m}, s.movements[userID]...)
	return m
}

// Movements returns what the backend stored for userID.
func (s *Server) Movements(userID int64) []domain.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Movement(nil), s.movements[userID]...)
}

// Contacts returns the contact messages received.
func (s *Server) Contacts() []domain.ContactMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ContactMessage(nil), s.contacts...)
}

// Calls returns how many requests hit "METHOD /path".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// IssueToken signs a token for email expiring at exp.
func (s *Server) IssueToken(email string, exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   email,
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// Revoke makes the backend reject token from now on.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// Hold blocks requests to "METHOD /path" until the returned release is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// ============================================================
// Middleware
// ============================================================

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls[route]++
		gate := s.gates[route]
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			detail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		s.mu.Lock()
		revoked := s.revoked[raw]
		s.mu.Unlock()
		if revoked {
			detail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			detail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		s.mu.Lock()
		acc := s.accounts[strings.ToLower(claims.Subject)]
		s.mu.Unlock()
		if acc == nil {
			detail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey{}, acc.user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in domain.NewUser
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		validation(w, "body", "JSON decode error")
		return
	}
	if in.Email == "" || in.Password == "" || in.Name == "" {
		validation(w, "body", "Field required")
		return
	}

	s.mu.Lock()
	_, exists := s.accounts[strings.ToLower(in.Email)]
	s.mu.Unlock()
	if exists {
		detail(w, http.StatusConflict, "El email ya está registrado")
		return
	}

	u := s.Seed(in.Email, in.Password, in.Name)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "password" {
		validation(w, "grant_type", "Field required")
		return
	}

	s.mu.Lock()
	acc := s.accounts[strings.ToLower(r.PostForm.Get("username"))]
	s.mu.Unlock()
	if acc == nil || bcrypt.CompareHashAndPassword(acc.hash, []byte(r.PostForm.Get("password"))) != nil {
		detail(w, http.StatusUnauthorized, "Credenciales inválidas")
		return
	}

	writeJSON(w, http.StatusOK, domain.TokenResponse{
		AccessToken: s.IssueToken(acc.user.Email, time.Now().Add(s.TokenTTL)),
		TokenType:   "bearer",
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r))
}

func (s *Server) listMovements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Movements(userFrom(r).ID))
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.categories))
	for _, c := range s.categories {
		kind := "ingreso"
		if c.Kind == domain.KindExpense {
			kind = "gasto"
		}
		out = append(out, map[string]any{"id": c.ID, "nombre": c.Name, "tipo": kind})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createMovement(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Description string          `json:"descripcion"`
		Amount      decimal.Decimal `json:"monto"`
		CategoryID  *int64          `json:"categoria_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		validation(w, "body", "JSON decode error")
		return
	}
	if strings.TrimSpace(in.Description) == "" {
		validation(w, "descripcion", "Field required")
		return
	}
	if in.CategoryID != nil && !s.hasCategory(*in.CategoryID) {
		validation(w, "categoria_id", fmt.Sprintf("Categoría %d no existe", *in.CategoryID))
		return
	}

	m := s.AddMovement(userFrom(r).ID, domain.Movement{
		Description: in.Description,
		Amount:      in.Amount,
		CategoryID:  in.CategoryID,
	})
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) contact(w http.ResponseWriter, r *http.Request) {
	var in domain.ContactMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Message == "" {
		validation(w, "body", "Field required")
		return
	}
	s.mu.Lock()
	s.contacts = append(s.contacts, in)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) hasCategory(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// ============================================================
// Helpers
// ============================================================

type userCtxKey struct{}

func userFrom(r *http.Request) domain.User {
	u, _ := r.Context().Value(userCtxKey{}).(domain.User)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func detail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// validation mimics the backend's 422 body: a list of {loc, msg}.
func validation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{{"loc": []string{"body", field}, "msg": msg}},
	})
}
