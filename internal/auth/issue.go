package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"famvault/internal/store"
)

// TokenWriter persists newly issued tokens.
type TokenWriter interface {
	TokenExists(id string) (bool, error)
	CreateAPIToken(ctx context.Context, token *store.APIToken) error
}

// IssueForUser creates and stores a token for userID. The returned bearer
// value is the only copy of the secret.
func IssueForUser(ctx context.Context, tokens TokenWriter, userID string, now time.Time) (tokenID, bearer string, err error) {
	if strings.TrimSpace(userID) == "" {
		return "", "", fmt.Errorf("user id is required")
	}
	tokenID, err = store.GenerateTokenID(tokens.TokenExists)
	if err != nil {
		return "", "", err
	}
	bearer, secretHash, err := IssueToken(tokenID)
	if err != nil {
		return "", "", err
	}
	if err := tokens.CreateAPIToken(ctx, &store.APIToken{
		ID:         tokenID,
		UserID:     userID,
		SecretHash: secretHash,
		CreatedAt:  now.UTC(),
	}); err != nil {
		return "", "", fmt.Errorf("store token: %w", err)
	}
	return tokenID, bearer, nil
}
