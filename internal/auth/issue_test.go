package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"famvault/internal/store"
)

type fakeTokenWriter struct {
	stored    []store.APIToken
	createErr error
}

func (f *fakeTokenWriter) TokenExists(id string) (bool, error) {
	for _, token := range f.stored {
		if token.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTokenWriter) CreateAPIToken(_ context.Context, token *store.APIToken) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.stored = append(f.stored, *token)
	return nil
}

func TestIssueForUser(t *testing.T) {
	writer := &fakeTokenWriter{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tokenID, bearer, err := IssueForUser(context.Background(), writer, "us-abc123", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(bearer, tokenID+".") {
		t.Fatalf("bearer %q does not carry token id %q", bearer, tokenID)
	}
	if len(writer.stored) != 1 {
		t.Fatalf("expected one stored token, got %d", len(writer.stored))
	}
	stored := writer.stored[0]
	if stored.UserID != "us-abc123" || !stored.CreatedAt.Equal(now) {
		t.Fatalf("unexpected stored token %+v", stored)
	}
	if strings.Contains(stored.SecretHash, bearer) {
		t.Fatal("secret must not be stored in clear")
	}
	_, secret, err := ParseToken(bearer)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !VerifySecret(stored.SecretHash, secret) {
		t.Fatal("stored hash should verify the issued secret")
	}
}

func TestIssueForUserErrors(t *testing.T) {
	if _, _, err := IssueForUser(context.Background(), &fakeTokenWriter{}, " ", time.Now()); err == nil {
		t.Fatal("expected missing user error")
	}

	boom := errors.New("FOREIGN KEY constraint failed")
	_, _, err := IssueForUser(context.Background(), &fakeTokenWriter{createErr: boom}, "us-missing", time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
