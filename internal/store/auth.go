package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// APIToken is a bearer token issued to a user record. Only the bcrypt hash of
// the secret is stored.
type APIToken struct {
	ID         string
	UserID     string
	SecretHash string
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// TokenExists reports whether a token id is taken.
func (s *Store) TokenExists(id string) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM api_tokens WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateAPIToken stores a token for userID.
func (s *Store) CreateAPIToken(ctx context.Context, token *APIToken) error {
	if token == nil {
		return fmt.Errorf("token is required")
	}
	if strings.TrimSpace(token.ID) == "" {
		return fmt.Errorf("token id is required")
	}
	if strings.TrimSpace(token.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(token.SecretHash) == "" {
		return fmt.Errorf("secret hash is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, user_id, secret_hash, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?)
	`, token.ID, token.UserID, token.SecretHash, formatTime(token.CreatedAt), nullTime(token.RevokedAt))
	return err
}

// GetActiveAPIToken returns a non-revoked token, or nil.
func (s *Store) GetActiveAPIToken(ctx context.Context, id string) (*APIToken, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, secret_hash, created_at, revoked_at
		FROM api_tokens
		WHERE id = ? AND revoked_at IS NULL
	`, id)
	var token APIToken
	var createdAt string
	var revokedAt sql.NullString
	if err := row.Scan(&token.ID, &token.UserID, &token.SecretHash, &createdAt, &revokedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	token.CreatedAt = parsed
	return &token, nil
}

// RevokeAPIToken marks a token revoked. Returns false if it was not active.
func (s *Store) RevokeAPIToken(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens
		SET revoked_at = ?
		WHERE id = ? AND revoked_at IS NULL
	`, formatTime(revokedAt), id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
