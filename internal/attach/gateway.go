package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"famvault/internal/blobstore"
	"famvault/internal/models"
)

// Fetch stages, in order.
const (
	StageResolvingRecord = "resolving_record"
	StageResolvingBlob   = "resolving_blob"
	StageStreaming       = "streaming"
	StageCompleted       = "completed"
	StageFailed          = "failed"
)

// BlobReader is the read half of the blob store.
type BlobReader interface {
	OpenRead(ctx context.Context, id string) (io.ReadCloser, models.BlobDescriptor, error)
}

// RecordReader resolves records for retrieval.
type RecordReader interface {
	GetRecord(ctx context.Context, id string) (*models.Record, error)
}

// GatewayConfig lists the slots anyone may read. Other slots are owner-only.
type GatewayConfig struct {
	PublicSlots []models.Slot
}

// Content is an open attachment stream. Callers must Close Reader.
type Content struct {
	Reader      io.ReadCloser
	ContentType string
	Filename    string
	Length      int64
	SHA256      string
}

// Gateway resolves a record slot to a byte stream.
type Gateway struct {
	records RecordReader
	blobs   BlobReader
	public  map[models.Slot]bool
	logger  *slog.Logger
}

// NewGateway builds a Gateway. A nil PublicSlots makes image slots public.
func NewGateway(records RecordReader, blobs BlobReader, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	publicSlots := cfg.PublicSlots
	if publicSlots == nil {
		publicSlots = []models.Slot{models.SlotImage}
	}
	public := make(map[models.Slot]bool, len(publicSlots))
	for _, slot := range publicSlots {
		public[slot] = true
	}
	return &Gateway{records: records, blobs: blobs, public: public, logger: logger.With("component", "gateway")}
}

// IsPublic reports whether slot is readable without ownership.
func (g *Gateway) IsPublic(slot models.Slot) bool {
	return g.public[slot]
}

// FetchAttachment opens the blob bound to slot. Absent records, empty slots,
// dangling blobs and slots the principal may not read all yield ErrNotFound.
// Storage failures yield ErrReadFailure.
func (g *Gateway) FetchAttachment(ctx context.Context, recordID string, slot models.Slot, principal *models.Principal) (*Content, error) {
	log := g.logger.With("record_id", recordID, "slot", slot)
	fail := func(stage string, err error) (*Content, error) {
		result := "not_found"
		level := slog.LevelDebug
		if errors.Is(err, ErrReadFailure) {
			result = "read_failure"
			level = slog.LevelError
		}
		fetchesTotal.WithLabelValues(result).Inc()
		log.Log(ctx, level, "attachment fetch failed", "stage", stage, "error", err)
		return nil, err
	}

	record, err := g.records.GetRecord(ctx, recordID)
	if err != nil {
		return fail(StageResolvingRecord, fmt.Errorf("%w: %w", ErrReadFailure, err))
	}
	if record == nil {
		return fail(StageResolvingRecord, ErrNotFound)
	}
	if !record.Kind.HasSlot(slot) {
		return fail(StageResolvingRecord, ErrNotFound)
	}
	if !g.public[slot] && (principal == nil || principal.UserID != record.Owner) {
		// Non-owners cannot tell a private slot from a missing one.
		return fail(StageResolvingRecord, ErrNotFound)
	}

	att, ok := record.Attachment(slot)
	if !ok {
		return fail(StageResolvingBlob, ErrNotFound)
	}
	rc, desc, err := g.blobs.OpenRead(ctx, att.BlobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			log.Warn("slot references missing blob", "blob_id", att.BlobID)
			return fail(StageResolvingBlob, ErrNotFound)
		}
		return fail(StageResolvingBlob, fmt.Errorf("%w: %w", ErrReadFailure, err))
	}

	contentType := strings.TrimSpace(desc.ContentType)
	if contentType == "" {
		contentType = fallbackContentType
	}
	filename := desc.Filename
	if filename == "" {
		filename = att.BlobFilename
	}
	log.Debug("attachment streaming", "stage", StageStreaming, "blob_id", desc.ID, "length", desc.Length)
	return &Content{
		Reader:      &trackedReader{rc: rc, log: log, want: desc.Length, start: time.Now()},
		ContentType: contentType,
		Filename:    filename,
		Length:      desc.Length,
		SHA256:      desc.SHA256,
	}, nil
}

// DefaultURL returns the synthesized representation for an unbound slot, or
// "" when the slot has none.
func DefaultURL(record *models.Record, slot models.Slot) string {
	if record == nil || slot != models.SlotImage {
		return ""
	}
	return models.DefaultAvatarURL(record.DisplayName)
}

// trackedReader finishes the fetch state machine: it reports read failures
// as ErrReadFailure and logs the terminal stage on Close.
type trackedReader struct {
	rc     io.ReadCloser
	log    *slog.Logger
	want   int64
	n      int64
	err    error
	start  time.Time
	closed bool
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.rc.Read(p)
	t.n += int64(n)
	if err != nil && err != io.EOF {
		if !errors.Is(err, ErrReadFailure) {
			err = fmt.Errorf("%w: %w", ErrReadFailure, err)
		}
		t.err = err
	}
	return n, err
}

func (t *trackedReader) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.rc.Close()
	servedBytes.Add(float64(t.n))
	switch {
	case t.err != nil:
		fetchesTotal.WithLabelValues("read_failure").Inc()
		t.log.Error("attachment stream failed", "stage", StageFailed, "bytes", t.n, "error", t.err)
	case t.n == 0 && t.want > 0:
		fetchesTotal.WithLabelValues("unread").Inc()
		t.log.Debug("attachment closed unread", "stage", StageCompleted)
	case t.n < t.want:
		fetchesTotal.WithLabelValues("aborted").Inc()
		t.log.Info("attachment stream aborted", "stage", StageFailed, "bytes", t.n, "length", t.want)
	default:
		fetchesTotal.WithLabelValues("ok").Inc()
		t.log.Debug("attachment served", "stage", StageCompleted, "bytes", t.n, "duration_ms", time.Since(t.start).Milliseconds())
	}
	return err
}
