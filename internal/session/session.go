// Package session owns the authentication lifecycle: the credential, the
// current user and the Anonymous → Authenticating → Authenticated machine.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/gestor-gastos-bfa/internal/domain"
	"github.com/boddenberg/gestor-gastos-bfa/internal/infra/observability"
	"github.com/boddenberg/gestor-gastos-bfa/internal/port"

	"go.uber.org/zap"
)

// State is a session lifecycle state.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "anonymous":
		*s = Anonymous
	case "authenticating":
		*s = Authenticating
	case "authenticated":
		*s = Authenticated
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Snapshot is a consistent copy of the session.
type Snapshot struct {
	State State        `json:"state"`
	User  *domain.User `json:"user,omitempty"`
	// Epoch changes every time a session ends. Results computed under an
	// older epoch are stale.
	Epoch uint64 `json:"-"`
}

// Session is the explicitly owned holder of the credential. It implements
// client.CredentialSource so the HTTP transport reads the token at call time.
type Session struct {
	mu    sync.RWMutex
	state State
	token string
	user  *domain.User
	epoch uint64

	store      port.CredentialStore
	listeners  []func(epoch uint64)

	// storeMu orders credential writes. savedEpoch is the epoch of the last
	// Save and is guarded by storeMu.
	storeMu    sync.Mutex
	savedEpoch uint64

	logger     *zap.Logger
	metrics    *observability.Metrics
	opsTimeout time.Duration
}

// New creates an Anonymous session persisting its credential in store.
func New(store port.CredentialStore, metrics *observability.Metrics, logger *zap.Logger) *Session {
	return &Session{
		store:      store,
		logger:     logger,
		metrics:    metrics,
		opsTimeout: 5 * time.Second,
	}
}

// OnTeardown registers fn to run after every session end, with the epoch
// that just ended. Listeners run outside the session lock.
func (s *Session) OnTeardown(fn func(epoch uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Current returns a snapshot of the session.
func (s *Session) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{State: s.state, Epoch: s.epoch}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Epoch returns the current session epoch.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Token returns the credential to attach to outbound requests.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Anonymous {
		return ""
	}
	return s.token
}

// Expire tears the session down when the backend rejected token. A rejection
// of a token that is no longer current is ignored.
func (s *Session) Expire(token string) {
	s.mu.Lock()
	if token == "" || token != s.token || s.state == Anonymous {
		s.mu.Unlock()
		return
	}
	ended := s.teardownLocked()
	s.mu.Unlock()

	s.purge(ended)
	s.logger.Warn("credential rejected by backend, session ended")
	s.notify(ended)
}

// Teardown ends the session and purges the stored credential. Always
// succeeds; storage failures are only logged.
func (s *Session) Teardown() {
	s.mu.Lock()
	wasActive := s.state != Anonymous
	ended := s.teardownLocked()
	s.mu.Unlock()

	s.purge(ended)
	if wasActive {
		s.notify(ended)
	}
}

// ============================================================
// Transitions used by the Manager
// ============================================================

// begin moves an Anonymous session to Authenticating and returns the epoch
// the attempt belongs to.
func (s *Session) begin(token string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Anonymous {
		return 0, false
	}
	s.state = Authenticating
	s.token = token
	s.metrics.IncrSessionTransition(Authenticating.String())
	return s.epoch, true
}

// adopt stores and persists a freshly obtained token, unless the attempt
// was cancelled by a teardown in the meantime.
func (s *Session) adopt(ctx context.Context, epoch uint64, token string) bool {
	s.mu.Lock()
	if s.epoch != epoch || s.state != Authenticating {
		s.mu.Unlock()
		return false
	}
	s.token = token
	s.mu.Unlock()

	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if s.Epoch() != epoch {
		return false
	}
	if err := s.store.Save(ctx, token); err != nil {
		s.logger.Warn("failed to persist credential", zap.Error(err))
	}
	s.savedEpoch = epoch
	return true
}

// establish completes an attempt. It reports false when the attempt is stale.
func (s *Session) establish(epoch uint64, user *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.state != Authenticating {
		return false
	}
	u := *user
	s.user = &u
	s.state = Authenticated
	s.metrics.IncrSessionTransition(Authenticated.String())
	return true
}

// abort returns a failed attempt to Anonymous. purge also drops the stored
// credential.
func (s *Session) abort(epoch uint64, purge bool) {
	s.mu.Lock()
	if s.epoch != epoch || s.state == Anonymous {
		s.mu.Unlock()
		return
	}
	ended := s.teardownLocked()
	s.mu.Unlock()

	if purge {
		s.purge(ended)
	}
	s.notify(ended)
}

func (s *Session) teardownLocked() uint64 {
	ended := s.epoch
	if s.state != Anonymous {
		s.metrics.IncrSessionTransition(Anonymous.String())
	}
	s.state = Anonymous
	s.token = ""
	s.user = nil
	s.epoch++
	return ended
}

// purge deletes the stored credential of the ended epoch. It runs without
// the session lock, so readers are never blocked on storage. A credential
// saved by a later session is left alone.
func (s *Session) purge(ended uint64) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if s.savedEpoch > ended {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opsTimeout)
	defer cancel()
	if err := s.store.Delete(ctx); err != nil {
		s.logger.Warn("failed to purge stored credential", zap.Error(err))
	}
}

func (s *Session) notify(ended uint64) {
	s.mu.RLock()
	listeners := append([]func(uint64){}, s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ended)
	}
}
