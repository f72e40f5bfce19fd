package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"famvault/internal/models"
	"famvault/internal/store"
)

// RecordStore is the record persistence the binder and gateway need.
type RecordStore interface {
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	BindSlot(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, expectedVersion int64) (*models.Record, error)
	BindSlotWithName(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, displayName string, expectedVersion int64) (*models.Record, error)
	UnbindSlot(ctx context.Context, recordID string, slot models.Slot, expectedVersion int64, now time.Time) (*models.Record, error)
}

// BindOptions carries the optional optimistic concurrency check. Zero
// ExpectedVersion means last write wins. A non-empty DisplayName renames the
// record in the same commit as the bind.
type BindOptions struct {
	ExpectedVersion int64
	DisplayName     string
}

// Binder attaches stored blobs to record slots. A replaced blob is left in
// the store unreferenced.
type Binder struct {
	records RecordStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewBinder builds a Binder over records.
func NewBinder(records RecordStore, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{records: records, logger: logger.With("component", "binder"), now: time.Now}
}

// Bind sets slot on the record to desc.
func (b *Binder) Bind(ctx context.Context, principal models.Principal, recordID string, slot models.Slot, desc models.BlobDescriptor, opts BindOptions) (*models.Record, error) {
	if strings.TrimSpace(desc.ID) == "" {
		return nil, fmt.Errorf("descriptor id is required")
	}
	current, err := b.authorize(ctx, principal, recordID, slot)
	if err != nil {
		bindsTotal.WithLabelValues("bind", "rejected").Inc()
		return nil, err
	}
	prior, _ := current.Attachment(slot)

	att := models.AttachmentFromDescriptor(desc, b.now())
	var record *models.Record
	if opts.DisplayName != "" {
		record, err = b.records.BindSlotWithName(ctx, recordID, slot, att, opts.DisplayName, opts.ExpectedVersion)
	} else {
		record, err = b.records.BindSlot(ctx, recordID, slot, att, opts.ExpectedVersion)
	}
	if err != nil {
		bindsTotal.WithLabelValues("bind", "failed").Inc()
		return nil, mapStoreError(err)
	}
	bindsTotal.WithLabelValues("bind", "ok").Inc()
	b.logger.Info("slot bound",
		"record_id", recordID,
		"slot", slot,
		"blob_id", desc.ID,
		"version", record.Version,
		"replaced_blob_id", prior.BlobID,
	)
	return record, nil
}

// Unbind clears slot on the record.
func (b *Binder) Unbind(ctx context.Context, principal models.Principal, recordID string, slot models.Slot, opts BindOptions) (*models.Record, error) {
	if _, err := b.authorize(ctx, principal, recordID, slot); err != nil {
		bindsTotal.WithLabelValues("unbind", "rejected").Inc()
		return nil, err
	}
	record, err := b.records.UnbindSlot(ctx, recordID, slot, opts.ExpectedVersion, b.now())
	if err != nil {
		bindsTotal.WithLabelValues("unbind", "failed").Inc()
		return nil, mapStoreError(err)
	}
	bindsTotal.WithLabelValues("unbind", "ok").Inc()
	b.logger.Info("slot cleared", "record_id", recordID, "slot", slot, "version", record.Version)
	return record, nil
}

// authorize checks existence, slot validity and ownership, in that order.
func (b *Binder) authorize(ctx context.Context, principal models.Principal, recordID string, slot models.Slot) (*models.Record, error) {
	record, err := b.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	if !record.Kind.HasSlot(slot) {
		return nil, fmt.Errorf("%w: %s has no %q slot", ErrInvalidSlot, record.Kind, slot)
	}
	if principal.UserID == "" || principal.UserID != record.Owner {
		b.logger.Warn("slot mutation denied", "record_id", recordID, "slot", slot, "principal", principal.UserID)
		return nil, ErrUnauthorized
	}
	return record, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return ErrRecordNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return ErrVersionConflict
	default:
		return err
	}
}
