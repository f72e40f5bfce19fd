package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"famvault/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func createTestRecord(t *testing.T, st *Store, kind models.RecordKind, owner, name string) *models.Record {
	t.Helper()
	id, err := st.GenerateRecordID(kind)
	if err != nil {
		t.Fatalf("generate id: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	record := &models.Record{ID: id, Kind: kind, Owner: owner, DisplayName: name, CreatedAt: now, UpdatedAt: now}
	if err := st.CreateRecord(context.Background(), record); err != nil {
		t.Fatalf("create record: %v", err)
	}
	return record
}

func insertTestBlob(t *testing.T, st *Store, id, filename, contentType string, createdAt time.Time) models.BlobDescriptor {
	t.Helper()
	blob := models.BlobDescriptor{
		ID:             id,
		Filename:       filename,
		ContentType:    contentType,
		Length:         42,
		SHA256:         "deadbeef",
		StorageBackend: "local",
		StorageKey:     id,
		CreatedAt:      createdAt,
	}
	if err := st.InsertBlob(context.Background(), &blob); err != nil {
		t.Fatalf("insert blob: %v", err)
	}
	return blob
}

func TestCreateAndGetRecord(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	created := createTestRecord(t, st, models.KindContact, "us-owner1", "Ada Lovelace")
	got, err := st.GetRecord(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.DisplayName != "Ada Lovelace" || got.Owner != "us-owner1" || got.Kind != models.KindContact {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Version)
	}
	if len(got.Attachments) != 0 {
		t.Fatalf("expected no attachments, got %v", got.Attachments)
	}

	missing, err := st.GetRecord(ctx, "ct-nope00")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing record")
	}
}

func TestBindSlotReplacesWholeAttachment(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	record := createTestRecord(t, st, models.KindContact, "us-owner1", "Ada")
	first := insertTestBlob(t, st, "blob-1", "first.png", "image/png", now)
	second := insertTestBlob(t, st, "blob-2", "second.jpg", "image/jpeg", now)

	if _, err := st.BindSlot(ctx, record.ID, models.SlotImage, models.AttachmentFromDescriptor(first, now), 0); err != nil {
		t.Fatalf("bind first: %v", err)
	}
	updated, err := st.BindSlot(ctx, record.ID, models.SlotImage, models.AttachmentFromDescriptor(second, now), 0)
	if err != nil {
		t.Fatalf("bind second: %v", err)
	}

	att, ok := updated.Attachment(models.SlotImage)
	if !ok {
		t.Fatal("expected image attachment")
	}
	if att.BlobID != "blob-2" || att.BlobFilename != "second.jpg" || att.BlobContentType != "image/jpeg" {
		t.Fatalf("unexpected attachment %+v", att)
	}
	if updated.Version != 3 {
		t.Fatalf("expected version 3 after two binds, got %d", updated.Version)
	}

	// The replaced blob stays indexed but unreferenced.
	old, err := st.GetBlob(ctx, "blob-1")
	if err != nil || old == nil {
		t.Fatalf("expected first blob to remain indexed, got %v (%v)", old, err)
	}
	orphans, err := st.ListOrphanBlobs(ctx, now.Add(time.Hour), "", 10)
	if err != nil {
		t.Fatalf("list orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != "blob-1" {
		t.Fatalf("expected only the first blob orphaned, got %+v", orphans)
	}
}

func TestBindSlotWithNameCommitsTogether(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	record := createTestRecord(t, st, models.KindContact, "us-owner1", "Ada")
	blob := insertTestBlob(t, st, "blob-n1", "ada.png", "image/png", now)
	att := models.AttachmentFromDescriptor(blob, now)

	missing := att
	missing.BlobID = "reaped-already"
	if _, err := st.BindSlotWithName(ctx, record.ID, models.SlotImage, missing, "Ada King", 0); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
	if _, err := st.BindSlotWithName(ctx, record.ID, models.SlotImage, att, "Ada King", 5); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	got, err := st.GetRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DisplayName != "Ada" || got.Version != 1 {
		t.Fatalf("failed bind must not rename, got %q v%d", got.DisplayName, got.Version)
	}

	updated, err := st.BindSlotWithName(ctx, record.ID, models.SlotImage, att, "Ada King", 1)
	if err != nil {
		t.Fatalf("bind with name: %v", err)
	}
	if updated.DisplayName != "Ada King" || updated.Version != 2 {
		t.Fatalf("expected renamed record at version 2, got %q v%d", updated.DisplayName, updated.Version)
	}
	if a, ok := updated.Attachment(models.SlotImage); !ok || a.BlobID != "blob-n1" {
		t.Fatalf("expected bound image, got %+v", updated.Attachments)
	}
}

func TestBindSlotErrors(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	record := createTestRecord(t, st, models.KindDocument, "us-owner1", "Passport")
	blob := insertTestBlob(t, st, "blob-doc", "passport.pdf", "application/pdf", now)
	att := models.AttachmentFromDescriptor(blob, now)

	if _, err := st.BindSlot(ctx, "dc-ghost0", models.SlotFile, att, 0); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}

	missingBlob := att
	missingBlob.BlobID = "never-written"
	if _, err := st.BindSlot(ctx, record.ID, models.SlotFile, missingBlob, 0); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
	got, err := st.GetRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("failed bind must not bump version, got %d", got.Version)
	}

	if _, err := st.BindSlot(ctx, record.ID, models.SlotFile, att, 7); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	updated, err := st.BindSlot(ctx, record.ID, models.SlotFile, att, 1)
	if err != nil {
		t.Fatalf("bind with matching version: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
}

func TestConcurrentBindsLeaveOneWholeAttachment(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	record := createTestRecord(t, st, models.KindChild, "us-owner1", "Sam")

	const writers = 8
	descs := make(map[string]models.BlobDescriptor, writers)
	for i := 0; i < writers; i++ {
		id := fmt.Sprintf("blob-%02d", i)
		descs[id] = insertTestBlob(t, st, id, fmt.Sprintf("photo-%02d.jpg", i), fmt.Sprintf("image/x-test-%02d", i), now)
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for _, d := range descs {
		wg.Add(1)
		go func(d models.BlobDescriptor) {
			defer wg.Done()
			if _, err := st.BindSlot(ctx, record.ID, models.SlotImage, models.AttachmentFromDescriptor(d, now), 0); err != nil {
				errs <- err
			}
		}(d)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("bind: %v", err)
	}

	got, err := st.GetRecord(ctx, record.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	att, ok := got.Attachment(models.SlotImage)
	if !ok {
		t.Fatal("expected bound slot")
	}
	want, ok := descs[att.BlobID]
	if !ok {
		t.Fatalf("unexpected blob id %q", att.BlobID)
	}
	if att.BlobFilename != want.Filename || att.BlobContentType != want.ContentType {
		t.Fatalf("mixed attachment %+v for blob %+v", att, want)
	}

	if got.Version != 1+writers {
		t.Fatalf("expected version %d, got %d", 1+writers, got.Version)
	}
}

func TestUnbindSlot(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	record := createTestRecord(t, st, models.KindUser, "us-self", "Grace")
	blob := insertTestBlob(t, st, "blob-avatar", "me.png", "image/png", now)
	if _, err := st.BindSlot(ctx, record.ID, models.SlotImage, models.AttachmentFromDescriptor(blob, now), 0); err != nil {
		t.Fatalf("bind: %v", err)
	}

	updated, err := st.UnbindSlot(ctx, record.ID, models.SlotImage, 0, now)
	if err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if _, ok := updated.Attachment(models.SlotImage); ok {
		t.Fatal("expected slot cleared")
	}
	if updated.Version != 3 {
		t.Fatalf("expected version 3, got %d", updated.Version)
	}

	if _, err := st.UnbindSlot(ctx, "us-ghost0", models.SlotImage, 0, now); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdateRecordNameAndDelete(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	record := createTestRecord(t, st, models.KindContact, "us-owner1", "Old")
	updated, err := st.UpdateRecordName(ctx, record.ID, "New", 1, now)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.DisplayName != "New" || updated.Version != 2 {
		t.Fatalf("unexpected record %+v", updated)
	}
	if _, err := st.UpdateRecordName(ctx, record.ID, "Stale", 1, now); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	blob := insertTestBlob(t, st, "blob-x", "x.png", "image/png", now)
	if _, err := st.BindSlot(ctx, record.ID, models.SlotImage, models.AttachmentFromDescriptor(blob, now), 0); err != nil {
		t.Fatalf("bind: %v", err)
	}

	deleted, err := st.DeleteRecord(ctx, record.ID)
	if err != nil || !deleted {
		t.Fatalf("expected delete, got %v (%v)", deleted, err)
	}
	deleted, err = st.DeleteRecord(ctx, record.ID)
	if err != nil || deleted {
		t.Fatalf("expected second delete to be a no-op, got %v (%v)", deleted, err)
	}
	if got, _ := st.GetBlob(ctx, "blob-x"); got == nil {
		t.Fatal("expected blob to outlive its record")
	}
}

func TestListRecordsByOwner(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mine := createTestRecord(t, st, models.KindContact, "us-owner1", "Mine")
	createTestRecord(t, st, models.KindContact, "us-owner2", "Theirs")
	createTestRecord(t, st, models.KindChild, "us-owner1", "Child")
	blob := insertTestBlob(t, st, "blob-mine", "m.png", "image/png", now)
	if _, err := st.BindSlot(ctx, mine.ID, models.SlotImage, models.AttachmentFromDescriptor(blob, now), 0); err != nil {
		t.Fatalf("bind: %v", err)
	}

	records, err := st.ListRecordsByOwner(ctx, models.KindContact, "us-owner1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ID != mine.ID {
		t.Fatalf("unexpected records %+v", records)
	}
	if _, ok := records[0].Attachment(models.SlotImage); !ok {
		t.Fatal("expected listed record to carry its attachment")
	}
}
