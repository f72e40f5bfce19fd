package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"famvault/internal/models"
)

// Index persists blob descriptors. GetBlob returns nil, nil when absent.
type Index interface {
	InsertBlob(ctx context.Context, blob *models.BlobDescriptor) error
	GetBlob(ctx context.Context, id string) (*models.BlobDescriptor, error)
	DeleteBlob(ctx context.Context, id string) error
}

// WriteOptions carries the metadata stored alongside the bytes.
type WriteOptions struct {
	ContentType string
	Filename    string
}

// Store is the blob store: bytes live in a Backend, descriptors in an Index.
// A descriptor is only indexed after the backend has committed every byte.
type Store struct {
	backend Backend
	index   Index
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// New wires a blob store over backend and index.
func New(backend Backend, index Index, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		index:   index,
		logger:  logger.With("component", "blobstore", "backend", backend.Name()),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// BackendName reports which medium holds the bytes.
func (s *Store) BackendName() string {
	return s.backend.Name()
}

// Write consumes r under a fresh id and returns its descriptor.
//
// Errors raised by r itself (cancellation, decode failures, size limits) are
// returned unchanged so callers can classify them; failures of the storage
// medium or index are returned as *StorageWriteError. Either way nothing is
// indexed and no partial object remains.
func (s *Store) Write(ctx context.Context, r io.Reader, opts WriteOptions) (models.BlobDescriptor, error) {
	var zero models.BlobDescriptor
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	start := s.now()
	id := s.newID()
	src := &sourceReader{r: r, h: sha256.New()}

	n, err := s.backend.Put(ctx, id, src, opts.ContentType)
	if err != nil {
		blobWritesTotal.WithLabelValues(s.backend.Name(), "failed").Inc()
		if src.err != nil {
			return zero, src.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		s.logger.Error("blob write failed", "error", err)
		return zero, &StorageWriteError{Op: "put", Err: err}
	}
	if n != src.n {
		s.cleanup(id)
		blobWritesTotal.WithLabelValues(s.backend.Name(), "failed").Inc()
		return zero, &StorageWriteError{Op: "put", Err: fmt.Errorf("backend stored %d of %d bytes", n, src.n)}
	}

	desc := models.BlobDescriptor{
		ID:             id,
		Filename:       opts.Filename,
		ContentType:    opts.ContentType,
		Length:         src.n,
		SHA256:         hex.EncodeToString(src.h.Sum(nil)),
		StorageBackend: s.backend.Name(),
		StorageKey:     id,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.index.InsertBlob(context.WithoutCancel(ctx), &desc); err != nil {
		s.cleanup(id)
		blobWritesTotal.WithLabelValues(s.backend.Name(), "failed").Inc()
		s.logger.Error("blob index insert failed", "blob_id", id, "error", err)
		return zero, &StorageWriteError{Op: "index", Err: err}
	}

	blobWritesTotal.WithLabelValues(s.backend.Name(), "ok").Inc()
	blobWriteBytes.Add(float64(desc.Length))
	s.logger.Debug("blob written",
		"blob_id", id,
		"size", humanize.Bytes(uint64(desc.Length)),
		"content_type", desc.ContentType,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return desc, nil
}

// OpenRead returns an independent stream over the blob's bytes.
func (s *Store) OpenRead(ctx context.Context, id string) (io.ReadCloser, models.BlobDescriptor, error) {
	var zero models.BlobDescriptor
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, zero, ErrNotFound
	}
	desc, err := s.index.GetBlob(ctx, id)
	if err != nil {
		return nil, zero, &StorageReadError{Op: "index", Err: err}
	}
	if desc == nil {
		return nil, zero, ErrNotFound
	}
	rc, err := s.backend.Open(ctx, desc.StorageKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("blob indexed but missing from backend", "blob_id", id)
			return nil, zero, ErrNotFound
		}
		return nil, zero, &StorageReadError{Op: "open", Err: err}
	}
	return &readFailureReader{rc: rc}, *desc, nil
}

// Exists reports whether a descriptor is indexed for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	desc, err := s.index.GetBlob(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	return desc != nil, nil
}

// Delete removes the bytes and then the descriptor. Missing blobs are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	desc, err := s.index.GetBlob(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if desc == nil {
		return nil
	}
	if err := s.backend.Delete(ctx, desc.StorageKey); err != nil {
		return fmt.Errorf("delete blob bytes: %w", err)
	}
	return s.index.DeleteBlob(ctx, desc.ID)
}

func (s *Store) cleanup(key string) {
	if err := s.backend.Delete(context.Background(), key); err != nil {
		s.logger.Warn("remove unindexed blob bytes", "blob_id", key, "error", err)
	}
}

// sourceReader hashes and counts bytes and remembers errors raised by the
// caller's reader, as opposed to errors raised by the backend.
type sourceReader struct {
	r   io.Reader
	h   hash.Hash
	n   int64
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		s.h.Write(p[:n])
		s.n += int64(n)
	}
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// readFailureReader turns mid-stream backend errors into *StorageReadError.
type readFailureReader struct {
	rc io.ReadCloser
}

func (r *readFailureReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err != nil && err != io.EOF {
		var readErr *StorageReadError
		if !errors.As(err, &readErr) {
			err = &StorageReadError{Op: "read", Err: err}
		}
	}
	return n, err
}

func (r *readFailureReader) Close() error {
	return r.rc.Close()
}
