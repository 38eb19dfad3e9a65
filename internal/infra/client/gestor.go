// Package client talks to the expense manager backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

const maxBodyBytes = 1 << 20

// GestorClient implements the backend contract. Public endpoints go through
// the public http.Client; everything else through the authed one, whose
// transport is an AuthTransport bound to the session.
type GestorClient struct {
	baseURL string
	public  *http.Client
	authed  *http.Client
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// New creates a GestorClient.
func New(baseURL string, public, authed *http.Client, cb *gobreaker.CircuitBreaker, metrics *observability.Metrics, logger *zap.Logger) *GestorClient {
	return &GestorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		public:  public,
		authed:  authed,
		cb:      cb,
		metrics: metrics,
		logger:  logger,
	}
}

// ============================================================
// Users & tokens
// ============================================================

// CreateUser registers a new account. A duplicate email is ErrConflict.
func (c *GestorClient) CreateUser(ctx context.Context, u domain.NewUser) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "GestorClient.CreateUser")
	defer span.End()

	var user domain.User
	err := c.call(ctx, "create_user", c.public, http.MethodPost, "/usuarios", jsonBody(u), &user,
		func(status int, msg string) error {
			if status == http.StatusConflict {
				return &domain.ErrConflict{Message: msg}
			}
			return nil
		})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return &user, nil
}

// ObtainToken exchanges email and password for a bearer token. The backend
// expects an OAuth2 password-grant form.
func (c *GestorClient) ObtainToken(ctx context.Context, email, password string) (string, error) {
	ctx, span := tracer.Start(ctx, "GestorClient.ObtainToken")
	defer span.End()

	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)
	form.Set("grant_type", "password")

	var tok domain.TokenResponse
	err := c.call(ctx, "obtain_token", c.public, http.MethodPost, "/token", formBody(form), &tok,
		func(status int, _ string) error {
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return &domain.ErrInvalidCredentials{}
			}
			return nil
		})
	if err != nil {
		recordSpanError(span, err)
		return "", err
	}
	if tok.AccessToken == "" {
		err := &domain.ErrServer{Status: http.StatusOK, Message: "token response without access_token"}
		recordSpanError(span, err)
		return "", err
	}
	return tok.AccessToken, nil
}

// GetCurrentUser returns the user the session credential belongs to.
func (c *GestorClient) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "GestorClient.GetCurrentUser")
	defer span.End()

	var user domain.User
	if err := c.call(ctx, "get_current_user", c.authed, http.MethodGet, "/usuarios/me", nil, &user, unauthorized); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))
	return &user, nil
}

// ============================================================
// Ledger
// ============================================================

// ListMovements returns the user's movements as stored by the backend.
func (c *GestorClient) ListMovements(ctx context.Context) ([]domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "GestorClient.ListMovements")
	defer span.End()

	var movements []domain.Movement
	if err := c.call(ctx, "list_movements", c.authed, http.MethodGet, "/movimientos", nil, &movements, unauthorized); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("movements.count", len(movements)))
	return movements, nil
}

// ListCategories returns the category catalog.
func (c *GestorClient) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "GestorClient.ListCategories")
	defer span.End()

	var categories []domain.Category
	if err := c.call(ctx, "list_categories", c.authed, http.MethodGet, "/categorias", nil, &categories, unauthorized); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return categories, nil
}

// CreateMovement persists a movement. The returned record carries the
// server-assigned id and date.
func (c *GestorClient) CreateMovement(ctx context.Context, m domain.NewMovement) (*domain.Movement, error) {
	ctx, span := tracer.Start(ctx, "GestorClient.CreateMovement")
	defer span.End()

	var created domain.Movement
	if err := c.call(ctx, "create_movement", c.authed, http.MethodPost, "/movimientos", jsonBody(m), &created, unauthorized); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int64("movement.id", created.ID))
	return &created, nil
}

// SubmitContact sends the public contact form.
func (c *GestorClient) SubmitContact(ctx context.Context, msg domain.ContactMessage) error {
	ctx, span := tracer.Start(ctx, "GestorClient.SubmitContact")
	defer span.End()

	if err := c.call(ctx, "submit_contact", c.public, http.MethodPost, "/contacto", jsonBody(msg), nil, nil); err != nil {
		recordSpanError(span, err)
		return err
	}
	return nil
}

// ============================================================
// Plumbing
// ============================================================

type body struct {
	contentType string
	data        []byte
	err         error
}

func jsonBody(v any) *body {
	data, err := json.Marshal(v)
	return &body{contentType: "application/json", data: data, err: err}
}

func formBody(v url.Values) *body {
	return &body{contentType: "application/x-www-form-urlencoded", data: []byte(v.Encode())}
}

// classifyFunc maps an error status to a specific domain error, or nil to
// fall back to ErrServer.
type classifyFunc func(status int, msg string) error

func unauthorized(status int, msg string) error {
	if status == http.StatusUnauthorized {
		return &domain.ErrUnauthorized{Message: msg}
	}
	return nil
}

func (c *GestorClient) call(ctx context.Context, op string, hc *http.Client, method, path string, in *body, out any, classify classifyFunc) error {
	start := time.Now()
	err := c.execute(ctx, op, hc, method, path, in, out, classify)
	c.metrics.RecordOutbound(op, time.Since(start))

	if err != nil {
		c.metrics.IncrExternalError(errorKind(err))
		c.logger.Debug("backend call failed",
			zap.String("operation", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
	}
	return err
}

func (c *GestorClient) execute(ctx context.Context, op string, hc *http.Client, method, path string, in *body, out any, classify classifyFunc) error {
	var reader io.Reader
	if in != nil {
		if in.err != nil {
			return fmt.Errorf("encoding %s request: %w", op, in.err)
		}
		reader = bytes.NewReader(in.data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", in.contentType)
	}

	_, err = c.cb.Execute(func() (any, error) {
		resp, err := hc.Do(req)
		if err != nil {
			return nil, &domain.ErrNetwork{Operation: op, Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, &domain.ErrNetwork{Operation: op, Err: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg := extractDetail(raw)
			if classify != nil {
				if mapped := classify(resp.StatusCode, msg); mapped != nil {
					return nil, mapped
				}
			}
			return nil, &domain.ErrServer{Status: resp.StatusCode, Message: msg}
		}

		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, &domain.ErrServer{Status: resp.StatusCode, Message: fmt.Sprintf("malformed %s response: %v", op, err)}
		}
		return nil, nil
	})

	if resilience.IsOpen(err) {
		return &domain.ErrNetwork{Operation: op, Err: err}
	}
	return err
}

// extractDetail returns the backend's error text: the "detail" string, the
// first "msg" of a validation list, or the raw body.
func extractDetail(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &list) == nil && len(list) > 0 {
			return list[0].Msg
		}
	}
	return strings.TrimSpace(string(raw))
}

func errorKind(err error) string {
	var (
		network  *domain.ErrNetwork
		unauth   *domain.ErrUnauthorized
		creds    *domain.ErrInvalidCredentials
		conflict *domain.ErrConflict
	)
	switch {
	case errors.As(err, &network):
		return "network"
	case errors.As(err, &unauth):
		return "unauthorized"
	case errors.As(err, &creds):
		return "invalid_credentials"
	case errors.As(err, &conflict):
		return "conflict"
	default:
		return "server"
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
