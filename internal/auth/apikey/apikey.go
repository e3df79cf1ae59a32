// Package apikey keeps the API keys that unlock the gateway's write routes.
// Only the SHA-256 digest of a key is stored; the raw key is shown once, at
// creation.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/postgres"
)

var (
	ErrInvalidKey = fmt.Errorf("invalid api key: %w", apperrors.ErrUnauthorized)
	ErrExpiredKey = fmt.Errorf("api key expired: %w", apperrors.ErrUnauthorized)
)

const schema = `CREATE TABLE IF NOT EXISTS api_keys (
	id         BIGSERIAL PRIMARY KEY,
	key_hash   TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ
)`

// KeyInfo describes a stored key. The digest never leaves the package.
type KeyInfo struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the key had expired at now.
func (k *KeyInfo) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Validator checks keys against the api_keys table.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
	now    func() time.Time
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey-validator"),
		now:    time.Now,
	}
}

func (v *Validator) Migrate(ctx context.Context) error {
	return v.db.Migrate(ctx, schema)
}

// Validate returns the active key matching rawKey, ErrInvalidKey when there
// is none and ErrExpiredKey when it is past its expiry.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
	)
	err := v.db.DB.QueryRowContext(ctx,
		`SELECT id, name, created_at, expires_at FROM api_keys
		 WHERE key_hash = $1 AND is_active`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		info.ExpiresAt = &expiresAt.Time
	}
	if info.Expired(v.now()) {
		return nil, ErrExpiredKey
	}
	return &info, nil
}

// CreateKey stores a new key and returns it raw. It cannot be recovered
// later.
func (v *Validator) CreateKey(ctx context.Context, name string, expiresAt *time.Time) (string, error) {
	rawKey, err := generateRawKey()
	if err != nil {
		return "", err
	}
	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	if _, err := v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, expires_at) VALUES ($1, $2, $3)`,
		HashKey(rawKey), name, expiry,
	); err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", name)
	return rawKey, nil
}

func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE key_hash = $1 AND is_active`,
		HashKey(rawKey),
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns the active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT id, name, created_at, expires_at FROM api_keys
		 WHERE is_active ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k         KeyInfo
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the hex SHA-256 digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
