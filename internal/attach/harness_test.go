package attach

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"famvault/internal/blobstore"
	"famvault/internal/models"
	"famvault/internal/store"
)

type harness struct {
	st         *store.Store
	backend    *blobstore.LocalFS
	blobs      *blobstore.Store
	writes     *countingWriter
	normalizer *Normalizer
	binder     *Binder
	gateway    *Gateway
	reaper     *Reaper
}

func newHarness(t *testing.T, cfg NormalizerConfig) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	backend, err := blobstore.NewLocalFS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new local fs: %v", err)
	}
	blobs := blobstore.New(backend, st, nil)
	writes := &countingWriter{inner: blobs}
	return &harness{
		st:         st,
		backend:    backend,
		blobs:      blobs,
		writes:     writes,
		normalizer: NewNormalizer(writes, cfg, nil),
		binder:     NewBinder(st, nil),
		gateway:    NewGateway(st, blobs, GatewayConfig{}, nil),
		reaper:     NewReaper(st, blobs, nil),
	}
}

func (h *harness) createRecord(t *testing.T, kind models.RecordKind, owner, name string) *models.Record {
	t.Helper()
	id, err := h.st.GenerateRecordID(kind)
	if err != nil {
		t.Fatalf("generate id: %v", err)
	}
	if kind == models.KindUser {
		owner = id
	}
	now := time.Now().UTC()
	record := &models.Record{ID: id, Kind: kind, Owner: owner, DisplayName: name, CreatedAt: now, UpdatedAt: now}
	if err := h.st.CreateRecord(context.Background(), record); err != nil {
		t.Fatalf("create record: %v", err)
	}
	return record
}

func (h *harness) upload(t *testing.T, data []byte, filename, contentType string) models.BlobDescriptor {
	t.Helper()
	desc, err := h.normalizer.Normalize(context.Background(), StreamedUpload{
		Reader:       bytes.NewReader(data),
		Filename:     filename,
		ContentType:  contentType,
		DeclaredSize: int64(len(data)),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return desc
}

// indexedBlobs counts every descriptor in the index that no slot references.
func (h *harness) indexedBlobs(t *testing.T) int {
	t.Helper()
	blobs, err := h.st.ListOrphanBlobs(context.Background(), time.Now().Add(time.Hour), "", 1000)
	if err != nil {
		t.Fatalf("list blobs: %v", err)
	}
	return len(blobs)
}

type countingWriter struct {
	inner     BlobWriter
	calls     int
	successes int
}

func (c *countingWriter) Write(ctx context.Context, r io.Reader, opts blobstore.WriteOptions) (models.BlobDescriptor, error) {
	c.calls++
	desc, err := c.inner.Write(ctx, r, opts)
	if err == nil {
		c.successes++
	}
	return desc, err
}

func jpegBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00})
	for i := 11; i < size; i++ {
		data[i] = byte(i * 31)
	}
	return data
}

func pngBytes(size int) []byte {
	data := make([]byte, size)
	copy(data, []byte("\x89PNG\r\n\x1a\n"))
	for i := 8; i < size; i++ {
		data[i] = byte(i)
	}
	return data
}
