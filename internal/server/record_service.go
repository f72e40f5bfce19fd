package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"famvault/internal/attach"
	internalauth "famvault/internal/auth"
	"famvault/internal/models"
	"famvault/internal/store"
)

// RecordService runs record workflows on top of the normalizer and binder.
// Uploads are stored before any record mutation, so a failed upload leaves
// the record untouched.
type RecordService struct {
	records    store.RecordStore
	normalizer *attach.Normalizer
	binder     *attach.Binder
	logger     *slog.Logger
	now        func() time.Time
}

// RecordUpdate lists the changes of one update. Nil fields are unchanged.
type RecordUpdate struct {
	Name            *string
	Blob            *models.BlobDescriptor
	ExpectedVersion int64
}

// NewRecordService constructs a RecordService.
func NewRecordService(records store.RecordStore, normalizer *attach.Normalizer, binder *attach.Binder, logger *slog.Logger) *RecordService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{
		records:    records,
		normalizer: normalizer,
		binder:     binder,
		logger:     logger.With("component", "records"),
		now:        time.Now,
	}
}

// StoreUpload normalizes and stores one upload.
func (s *RecordService) StoreUpload(ctx context.Context, up attach.Upload) (models.BlobDescriptor, error) {
	if s.normalizer == nil {
		return models.BlobDescriptor{}, internalError(fmt.Errorf("uploads are not configured"))
	}
	return s.normalizer.Normalize(ctx, up)
}

// MaxUploadBytes returns the decoded upload limit.
func (s *RecordService) MaxUploadBytes() int64 {
	if s.normalizer == nil {
		return attach.DefaultMaxUploadBytes
	}
	return s.normalizer.MaxUploadBytes()
}

// Create inserts a record owned by principal and binds blob to the kind's
// slot when given.
func (s *RecordService) Create(ctx context.Context, principal models.Principal, kind models.RecordKind, name string, blob *models.BlobDescriptor) (*models.Record, error) {
	if kind == models.KindUser {
		return nil, forbidden(fmt.Errorf("user records are created by an administrator"))
	}
	displayName, err := internalauth.NormalizeDisplayName(name)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeMissingRequired)
	}

	id, err := s.records.GenerateRecordID(kind)
	if err != nil {
		return nil, storeFailure(err)
	}
	now := s.now().UTC()
	record := &models.Record{
		ID:          id,
		Kind:        kind,
		Owner:       principal.UserID,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.records.CreateRecord(ctx, record); err != nil {
		return nil, storeFailure(err)
	}
	s.logger.Info("record created", "record_id", id, "kind", kind, "owner", principal.UserID)

	if blob == nil {
		return record, nil
	}
	return s.binder.Bind(ctx, principal, id, primarySlot(kind), *blob, attach.BindOptions{})
}

// CreateUser inserts a user record. Users own themselves.
func (s *RecordService) CreateUser(ctx context.Context, name string) (*models.Record, error) {
	displayName, err := internalauth.NormalizeDisplayName(name)
	if err != nil {
		return nil, badRequestCode(err, ErrCodeMissingRequired)
	}
	id, err := s.records.GenerateRecordID(models.KindUser)
	if err != nil {
		return nil, storeFailure(err)
	}
	now := s.now().UTC()
	record := &models.Record{
		ID:          id,
		Kind:        models.KindUser,
		Owner:       id,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.records.CreateRecord(ctx, record); err != nil {
		return nil, storeFailure(err)
	}
	s.logger.Info("user created", "user_id", id)
	return record, nil
}

// Get returns a record the principal owns. Records of other owners read as
// missing.
func (s *RecordService) Get(ctx context.Context, principal models.Principal, kind models.RecordKind, id string) (*models.Record, error) {
	record, err := s.lookup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if record.Owner != principal.UserID {
		return nil, attach.ErrRecordNotFound
	}
	return record, nil
}

// List returns the principal's records of kind.
func (s *RecordService) List(ctx context.Context, principal models.Principal, kind models.RecordKind, limit int) ([]models.Record, error) {
	records, err := s.records.ListRecordsByOwner(ctx, kind, principal.UserID, limit)
	if err != nil {
		return nil, storeFailure(err)
	}
	return records, nil
}

// Authorize checks that principal may mutate the record, and that a
// positive expectedVersion is still current. Handlers call it before reading
// an upload so rejected requests store nothing.
func (s *RecordService) Authorize(ctx context.Context, principal models.Principal, kind models.RecordKind, id string, expectedVersion int64) (*models.Record, error) {
	record, err := s.lookup(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if principal.UserID == "" || record.Owner != principal.UserID {
		s.logger.Warn("record mutation denied", "record_id", id, "principal", principal.UserID)
		return nil, attach.ErrUnauthorized
	}
	if expectedVersion > 0 && record.Version != expectedVersion {
		return nil, attach.ErrVersionConflict
	}
	return record, nil
}

// Update renames the record and/or replaces its slot. A rename that comes
// with a blob is committed together with the bind.
func (s *RecordService) Update(ctx context.Context, principal models.Principal, kind models.RecordKind, id string, update RecordUpdate) (*models.Record, error) {
	if _, err := s.Authorize(ctx, principal, kind, id, 0); err != nil {
		return nil, err
	}

	displayName := ""
	if update.Name != nil {
		normalized, err := internalauth.NormalizeDisplayName(*update.Name)
		if err != nil {
			return nil, badRequestCode(err, ErrCodeInvalidArgument)
		}
		displayName = normalized
	}

	if update.Blob != nil {
		return s.binder.Bind(ctx, principal, id, primarySlot(kind), *update.Blob, attach.BindOptions{
			ExpectedVersion: update.ExpectedVersion,
			DisplayName:     displayName,
		})
	}
	if displayName == "" {
		return nil, badRequestCode(fmt.Errorf("nothing to update"), ErrCodeMissingRequired)
	}
	record, err := s.records.UpdateRecordName(ctx, id, displayName, update.ExpectedVersion, s.now().UTC())
	if err != nil {
		return nil, mapRecordStoreError(err)
	}
	return record, nil
}

// Unbind clears slot on the record.
func (s *RecordService) Unbind(ctx context.Context, principal models.Principal, kind models.RecordKind, id string, slot models.Slot, expectedVersion int64) (*models.Record, error) {
	if _, err := s.lookup(ctx, kind, id); err != nil {
		return nil, err
	}
	return s.binder.Unbind(ctx, principal, id, slot, attach.BindOptions{ExpectedVersion: expectedVersion})
}

// Delete removes the record and its slots. Blobs it referenced become
// orphans.
func (s *RecordService) Delete(ctx context.Context, principal models.Principal, kind models.RecordKind, id string) error {
	if kind == models.KindUser {
		return forbidden(fmt.Errorf("user records are removed by an administrator"))
	}
	record, err := s.lookup(ctx, kind, id)
	if err != nil {
		return err
	}
	if record.Owner != principal.UserID {
		return attach.ErrUnauthorized
	}
	deleted, err := s.records.DeleteRecord(ctx, id)
	if err != nil {
		return storeFailure(err)
	}
	if !deleted {
		return attach.ErrRecordNotFound
	}
	s.logger.Info("record deleted", "record_id", id, "kind", kind)
	return nil
}

// lookup loads a record and checks it is of kind.
func (s *RecordService) lookup(ctx context.Context, kind models.RecordKind, id string) (*models.Record, error) {
	if !strings.HasPrefix(id, kind.IDPrefix()+"-") {
		return nil, attach.ErrRecordNotFound
	}
	record, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return nil, storeFailure(err)
	}
	if record == nil || record.Kind != kind {
		return nil, attach.ErrRecordNotFound
	}
	return record, nil
}

func primarySlot(kind models.RecordKind) models.Slot {
	slots := kind.Slots()
	if len(slots) == 0 {
		return ""
	}
	return slots[0]
}

func mapRecordStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrRecordNotFound):
		return attach.ErrRecordNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return attach.ErrVersionConflict
	default:
		return storeFailure(err)
	}
}
