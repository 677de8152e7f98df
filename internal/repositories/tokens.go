package repositories

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/desertthunder/tunescope/internal/models"
)

// TokenRepository persists the CLI's credentials in the client_tokens table.
//
// It satisfies services.TokenStore. Setting the access token with a non-zero expiry
// writes both rows in one transaction so readers never see a token paired with a stale expiry.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a token store backed by db
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get returns the stored value for kind.
// A read failure is reported as absent.
func (r *TokenRepository) Get(kind models.TokenKind) (string, bool) {
	query, args, err := sqb.Select("value").From("client_tokens").Where(sq.Eq{"kind": string(kind)}).ToSql()
	if err != nil {
		return "", false
	}

	var value string
	if err := r.db.QueryRow(query, args...).Scan(&value); err != nil {
		return "", false
	}
	return value, true
}

// Set overwrites the value for kind. A non-zero expiry is stored alongside
// as [models.AccessTokenExpiry].
func (r *TokenRepository) Set(kind models.TokenKind, value string, expiry time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown token kind %q", kind)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putToken(tx, kind, value); err != nil {
		return err
	}
	if !expiry.IsZero() {
		if err := putToken(tx, models.AccessTokenExpiry, strconv.FormatInt(expiry.Unix(), 10)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tokens: %w", err)
	}
	return nil
}

func putToken(tx *sql.Tx, kind models.TokenKind, value string) error {
	query, args, err := sqb.Insert("client_tokens").
		Options("OR REPLACE").
		Columns("kind", "value", "updated_at").
		Values(string(kind), value, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to store %s: %w", kind, err)
	}
	return nil
}

// Clear removes every stored token.
func (r *TokenRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM client_tokens"); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// MemoryTokenStore is an in-process token store.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	values map[models.TokenKind]string
}

// NewMemoryTokenStore creates an empty in-memory token store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{values: make(map[models.TokenKind]string)}
}

func (m *MemoryTokenStore) Get(kind models.TokenKind) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[kind]
	return v, ok
}

func (m *MemoryTokenStore) Set(kind models.TokenKind, value string, expiry time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown token kind %q", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[kind] = value
	if !expiry.IsZero() {
		m.values[models.AccessTokenExpiry] = strconv.FormatInt(expiry.Unix(), 10)
	}
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
	return nil
}

// ParseExpiry decodes a stored [models.AccessTokenExpiry] value.
func ParseExpiry(v string) (time.Time, bool) {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}
