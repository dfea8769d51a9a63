package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wso2/identity-apps-sub079/internal/domain"
)

// APIKeyPrefix marks generated console API keys.
const APIKeyPrefix = "idc_"

// ErrKeyExpired is returned when a key is past its expiry.
var ErrKeyExpired = errors.New("api key expired")

// NewAPIKeySecret returns a fresh random key and its hash.
func NewAPIKeySecret() (raw, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw = APIKeyPrefix + hex.EncodeToString(buf)
	return raw, HashAPIKey(raw), nil
}

// HashAPIKey returns the SHA-256 hex digest stored for key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey stores key; KeyHash must already hold the hashed value.
func (r Repo) CreateAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	switch {
	case key.ID == "":
		return errors.New("id required")
	case strings.TrimSpace(key.ActorID) == "":
		return errors.New("actor_id required")
	case key.KeyHash == "":
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	if key.ExpiresAt != "" {
		if _, err := time.Parse(time.RFC3339, key.ExpiresAt); err != nil {
			return fmt.Errorf("expires_at: %w", err)
		}
	}
	_, err := r.exec(ctx, tx, `INSERT INTO api_keys(id, actor_id, name, key_hash, permissions, created_at, expires_at) VALUES (?,?,?,?,?,?,?)`,
		key.ID, key.ActorID, nullable(key.Name), key.KeyHash, joinPermissions(key.Permissions), key.CreatedAt, nullable(key.ExpiresAt))
	return err
}

// LookupAPIKey resolves a raw key presented by a client. Unknown keys
// yield ErrNotFound and keys past their expiry ErrKeyExpired. A hit
// stamps last_used_at.
func (r Repo) LookupAPIKey(ctx context.Context, raw string, now time.Time) (domain.APIKey, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.APIKey{}, ErrNotFound
	}
	key, err := scanAPIKey(r.DB.QueryRowContext(ctx, apiKeyColumns+` WHERE key_hash=? LIMIT 1`, HashAPIKey(raw)))
	if err != nil {
		return domain.APIKey{}, err
	}
	if key.ExpiresAt != "" {
		exp, err := time.Parse(time.RFC3339, key.ExpiresAt)
		if err != nil || !now.Before(exp) {
			return domain.APIKey{}, ErrKeyExpired
		}
	}
	key.LastUsedAt = now.UTC().Format(time.RFC3339)
	if _, err := r.DB.ExecContext(ctx, `UPDATE api_keys SET last_used_at=? WHERE id=?`, key.LastUsedAt, key.ID); err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// ListAPIKeys returns keys newest first, optionally for one actor.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	query := apiKeyColumns
	var args []any
	if actorID != "" {
		query += ` WHERE actor_id=?`
		args = append(args, actorID)
	}
	query += ` ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []domain.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deletes a key by ID.
func (r Repo) RevokeAPIKey(ctx context.Context, tx *sql.Tx, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	res, err := r.exec(ctx, tx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const apiKeyColumns = `SELECT id, actor_id, COALESCE(name,''), key_hash, permissions, created_at, COALESCE(expires_at,''), COALESCE(last_used_at,'') FROM api_keys`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (domain.APIKey, error) {
	var key domain.APIKey
	var perms string
	err := row.Scan(&key.ID, &key.ActorID, &key.Name, &key.KeyHash, &perms, &key.CreatedAt, &key.ExpiresAt, &key.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.APIKey{}, ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, err
	}
	key.Permissions = splitPermissions(perms)
	return key, nil
}

func joinPermissions(perms []string) string {
	var out []string
	for _, p := range perms {
		if p = strings.TrimSpace(p); p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return strings.Join(out, ",")
}

func splitPermissions(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (r Repo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.DB.ExecContext(ctx, query, args...)
}
