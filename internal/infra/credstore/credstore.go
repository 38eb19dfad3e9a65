// Package credstore persists the session's bearer credential and the
// per-user balance memory.
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	// sqlite driver
	_ "modernc.org/sqlite"
)

// TokenKey is the well-known key the credential is stored under.
const TokenKey = "user_token"

func availableKey(userID int64) string {
	return "last_available:" + strconv.FormatInt(userID, 10)
}

// ============================================================
// SQLite
// ============================================================

// SQLiteStore keeps the credential in a single key/value table.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening credential db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging credential db: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

// Load returns the stored credential, or "" when there is none.
func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, TokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}
	return token, nil
}

// Save replaces the stored credential.
func (s *SQLiteStore) Save(ctx context.Context, token string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		TokenKey, token)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

// Delete removes the stored credential. Deleting nothing is not an error.
func (s *SQLiteStore) Delete(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, TokenKey); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// LastAvailable returns the available balance saved for userID.
func (s *SQLiteStore) LastAvailable(ctx context.Context, userID int64) (decimal.Decimal, bool, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, availableKey(userID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("loading last available balance: %w", err)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parsing last available balance %q: %w", raw, err)
	}
	return v, true, nil
}

// SaveAvailable records the available balance last shown to userID.
func (s *SQLiteStore) SaveAvailable(ctx context.Context, userID int64, available decimal.Decimal) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		availableKey(userID), available.String())
	if err != nil {
		return fmt.Errorf("saving last available balance: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// ============================================================
// Memory
// ============================================================

// MemoryStore keeps the credential for the life of the process.
type MemoryStore struct {
	mu        sync.Mutex
	token     string
	available map[int64]decimal.Decimal
	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{available: make(map[int64]decimal.Decimal)}
}

func (m *MemoryStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.Err
}

func (m *MemoryStore) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.token = token
	return nil
}

func (m *MemoryStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.token = ""
	return nil
}

func (m *MemoryStore) LastAvailable(_ context.Context, userID int64) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return decimal.Zero, false, m.Err
	}
	v, ok := m.available[userID]
	return v, ok, nil
}

func (m *MemoryStore) SaveAvailable(_ context.Context, userID int64, available decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.available[userID] = available
	return nil
}
