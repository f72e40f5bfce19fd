package attach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"famvault/internal/models"
)

func TestBindThenRebindOrphansFirstBlob(t *testing.T) {
	h := newHarness(t, NormalizerConfig{})
	ctx := context.Background()
	record := h.createRecord(t, models.KindContact, "us-owner1", "Ada")
	owner := models.Principal{UserID: "us-owner1"}

	first := h.upload(t, jpegBytes(2048), "first.jpg", "")
	second := h.upload(t, pngBytes(1024), "second.png", "")

	if _, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, first, BindOptions{}); err != nil {
		t.Fatalf("bind first: %v", err)
	}
	updated, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, second, BindOptions{})
	if err != nil {
		t.Fatalf("bind second: %v", err)
	}

	att, ok := updated.Attachment(models.SlotImage)
	if !ok {
		t.Fatal("expected bound image")
	}
	if att.BlobID != second.ID || att.BlobFilename != "second.png" || att.BlobContentType != "image/png" {
		t.Fatalf("expected second descriptor, got %+v", att)
	}

	exists, err := h.blobs.Exists(ctx, first.ID)
	if err != nil || !exists {
		t.Fatalf("expected first blob to remain stored, got %v (%v)", exists, err)
	}
	if n := h.indexedBlobs(t); n != 1 {
		t.Fatalf("expected one unreferenced blob, got %d", n)
	}
}

func TestBindRejectsNonOwner(t *testing.T) {
	h := newHarness(t, NormalizerConfig{})
	ctx := context.Background()
	record := h.createRecord(t, models.KindChild, "us-parent", "Sam")
	desc := h.upload(t, jpegBytes(512), "sam.jpg", "")
	if _, err := h.binder.Bind(ctx, models.Principal{UserID: "us-parent"}, record.ID, models.SlotImage, desc, BindOptions{}); err != nil {
		t.Fatalf("owner bind: %v", err)
	}
	before, err := h.st.GetRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	other := h.upload(t, pngBytes(512), "other.png", "")
	for _, principal := range []models.Principal{{UserID: "us-stranger"}, {}} {
		if _, err := h.binder.Bind(ctx, principal, record.ID, models.SlotImage, other, BindOptions{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("bind as %q: expected ErrUnauthorized, got %v", principal.UserID, err)
		}
		if _, err := h.binder.Unbind(ctx, principal, record.ID, models.SlotImage, BindOptions{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("unbind as %q: expected ErrUnauthorized, got %v", principal.UserID, err)
		}
	}

	after, err := h.st.GetRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Version != before.Version {
		t.Fatalf("record mutated: version %d -> %d", before.Version, after.Version)
	}
	att, _ := after.Attachment(models.SlotImage)
	if att.BlobID != desc.ID {
		t.Fatalf("attachment changed to %q", att.BlobID)
	}
}

func TestBindPreconditions(t *testing.T) {
	h := newHarness(t, NormalizerConfig{})
	ctx := context.Background()
	owner := models.Principal{UserID: "us-owner1"}
	contact := h.createRecord(t, models.KindContact, owner.UserID, "Ada")
	desc := h.upload(t, []byte("%PDF-1.5 doc"), "doc.pdf", "")

	_, err := h.binder.Bind(ctx, owner, contact.ID, models.SlotFile, desc, BindOptions{})
	if !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	_, err = h.binder.Bind(ctx, owner, "ct-gone00", models.SlotImage, desc, BindOptions{})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	// A record deleted between the check and the write.
	doc := h.createRecord(t, models.KindDocument, owner.UserID, "Deed")
	racing := NewBinder(&deletingStore{RecordStore: h.st, delete: func() {
		if _, err := h.st.DeleteRecord(ctx, doc.ID); err != nil {
			t.Errorf("delete: %v", err)
		}
	}}, nil)
	_, err = racing.Bind(ctx, owner, doc.ID, models.SlotFile, desc, BindOptions{})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after concurrent delete, got %v", err)
	}
}

func TestBindVersionCheck(t *testing.T) {
	h := newHarness(t, NormalizerConfig{})
	ctx := context.Background()
	owner := models.Principal{UserID: "us-owner1"}
	record := h.createRecord(t, models.KindContact, owner.UserID, "Ada")
	desc := h.upload(t, pngBytes(128), "", "")

	if _, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, desc, BindOptions{ExpectedVersion: 5}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	updated, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, desc, BindOptions{ExpectedVersion: record.Version})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if updated.Version != record.Version+1 {
		t.Fatalf("expected version %d, got %d", record.Version+1, updated.Version)
	}
}

func TestBindWithDisplayName(t *testing.T) {
	h := newHarness(t, NormalizerConfig{})
	ctx := context.Background()
	owner := models.Principal{UserID: "us-owner1"}
	record := h.createRecord(t, models.KindContact, owner.UserID, "Ada")
	desc := h.upload(t, pngBytes(128), "", "")

	if _, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, desc, BindOptions{ExpectedVersion: 9, DisplayName: "Ada King"}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	updated, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, desc, BindOptions{DisplayName: "Ada King"})
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if updated.DisplayName != "Ada King" || updated.Version != record.Version+1 {
		t.Fatalf("expected renamed record at version %d, got %q v%d", record.Version+1, updated.DisplayName, updated.Version)
	}
	if _, ok := updated.Attachment(models.SlotImage); !ok {
		t.Fatalf("expected image bound")
	}
}

func TestConcurrentBindsAreAtomic(t *testing.T) {
	h := newHarness(t, NormalizerConfig{})
	ctx := context.Background()
	owner := models.Principal{UserID: "us-owner1"}
	record := h.createRecord(t, models.KindUser, "", "Grace")
	owner.UserID = record.Owner

	descs := make(map[string]models.BlobDescriptor)
	for i := 0; i < 6; i++ {
		d := h.upload(t, pngBytes(100+i), fmt.Sprintf("avatar-%d.png", i), "")
		descs[d.ID] = d
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(descs))
	for _, d := range descs {
		wg.Add(1)
		go func(d models.BlobDescriptor) {
			defer wg.Done()
			if _, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, d, BindOptions{}); err != nil {
				errs <- err
			}
		}(d)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("bind: %v", err)
	}

	got, err := h.st.GetRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	att, ok := got.Attachment(models.SlotImage)
	if !ok {
		t.Fatal("expected bound slot")
	}
	want, ok := descs[att.BlobID]
	if !ok {
		t.Fatalf("unknown blob %q", att.BlobID)
	}
	if att.BlobFilename != want.Filename || att.BlobContentType != want.ContentType {
		t.Fatalf("mixed attachment %+v, want %+v", att, want)
	}
}

func TestUnbindFallsBackToDefault(t *testing.T) {
	h := newHarness(t, NormalizerConfig{})
	ctx := context.Background()
	owner := models.Principal{UserID: "us-owner1"}
	record := h.createRecord(t, models.KindContact, owner.UserID, "Ada Lovelace")
	desc := h.upload(t, pngBytes(64), "", "")
	if _, err := h.binder.Bind(ctx, owner, record.ID, models.SlotImage, desc, BindOptions{}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	updated, err := h.binder.Unbind(ctx, owner, record.ID, models.SlotImage, BindOptions{})
	if err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if _, ok := updated.Attachment(models.SlotImage); ok {
		t.Fatal("expected empty slot")
	}
	if got := DefaultURL(updated, models.SlotImage); got != models.DefaultAvatarURL("Ada Lovelace") {
		t.Fatalf("unexpected default %q", got)
	}
}

// deletingStore deletes the record right before the slot write.
type deletingStore struct {
	RecordStore
	delete func()
}

func (d *deletingStore) BindSlot(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, expectedVersion int64) (*models.Record, error) {
	d.delete()
	return d.RecordStore.BindSlot(ctx, recordID, slot, att, expectedVersion)
}
