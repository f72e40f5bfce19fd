package store

import (
	"strings"
	"testing"

	"famvault/internal/models"
)

func TestGenerateID(t *testing.T) {
	t.Run("valid prefix", func(t *testing.T) {
		id, err := GenerateID("ct", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(id) != 9 { // "ct-" + 6 chars
			t.Fatalf("expected length 9, got %d: %s", len(id), id)
		}
		if id[:3] != "ct-" {
			t.Fatalf("expected prefix ct-, got %s", id[:3])
		}
	})

	t.Run("empty prefix", func(t *testing.T) {
		_, err := GenerateID("", nil)
		if err == nil {
			t.Fatal("expected error for empty prefix")
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		calls := 0
		exists := func(id string) (bool, error) {
			calls++
			return calls < 3, nil // first 2 calls collide
		}
		id, err := GenerateID("ct", exists)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if calls != 3 {
			t.Fatalf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		exists := func(id string) (bool, error) {
			return true, nil
		}
		_, err := GenerateID("ct", exists)
		if err == nil {
			t.Fatal("expected error after max attempts")
		}
	})
}

func TestGenerateRecordAndTokenID(t *testing.T) {
	st := testStore(t)

	tests := []struct {
		kind   models.RecordKind
		prefix string
	}{
		{models.KindContact, "ct-"},
		{models.KindChild, "ch-"},
		{models.KindDocument, "dc-"},
		{models.KindUser, "us-"},
	}
	for _, tt := range tests {
		id, err := st.GenerateRecordID(tt.kind)
		if err != nil {
			t.Fatalf("generate %s id: %v", tt.kind, err)
		}
		if !strings.HasPrefix(id, tt.prefix) {
			t.Fatalf("expected %s prefix, got %q", tt.prefix, id)
		}
	}

	tokenID, err := GenerateTokenID(st.TokenExists)
	if err != nil {
		t.Fatalf("generate token id: %v", err)
	}
	if !strings.HasPrefix(tokenID, "tk-") {
		t.Fatalf("expected tk- prefix, got %q", tokenID)
	}
}
