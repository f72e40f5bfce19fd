package store

import (
	"context"
	"testing"
	"time"

	"famvault/internal/models"
)

func TestAPITokenLifecycle(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := createTestRecord(t, st, models.KindUser, "pending", "Grace")
	tokenID, err := GenerateTokenID(st.TokenExists)
	if err != nil {
		t.Fatalf("token id: %v", err)
	}
	token := &APIToken{ID: tokenID, UserID: user.ID, SecretHash: "$2a$10$hash", CreatedAt: now}
	if err := st.CreateAPIToken(ctx, token); err != nil {
		t.Fatalf("create token: %v", err)
	}

	got, err := st.GetActiveAPIToken(ctx, tokenID)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if got == nil || got.UserID != user.ID || got.SecretHash != token.SecretHash {
		t.Fatalf("unexpected token %+v", got)
	}

	revoked, err := st.RevokeAPIToken(ctx, tokenID, now)
	if err != nil || !revoked {
		t.Fatalf("expected revoke, got %v (%v)", revoked, err)
	}
	got, err = st.GetActiveAPIToken(ctx, tokenID)
	if err != nil {
		t.Fatalf("get revoked: %v", err)
	}
	if got != nil {
		t.Fatal("expected revoked token to be inactive")
	}
}

func TestCreateAPITokenRequiresUserRecord(t *testing.T) {
	st := testStore(t)
	err := st.CreateAPIToken(context.Background(), &APIToken{
		ID: "tk-orphan", UserID: "us-nobody", SecretHash: "h", CreatedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected foreign key failure for unknown user")
	}
}
