package store

import (
	"context"
	"time"

	"famvault/internal/blobstore"
	"famvault/internal/models"
)

// RecordStore abstracts record and slot persistence.
type RecordStore interface {
	RecordExists(id string) (bool, error)
	GenerateRecordID(kind models.RecordKind) (string, error)
	CreateRecord(ctx context.Context, record *models.Record) error
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	UpdateRecordName(ctx context.Context, id, displayName string, expectedVersion int64, now time.Time) (*models.Record, error)
	DeleteRecord(ctx context.Context, id string) (bool, error)
	ListRecordsByOwner(ctx context.Context, kind models.RecordKind, owner string, limit int) ([]models.Record, error)
	BindSlot(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, expectedVersion int64) (*models.Record, error)
	BindSlotWithName(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, displayName string, expectedVersion int64) (*models.Record, error)
	UnbindSlot(ctx context.Context, recordID string, slot models.Slot, expectedVersion int64, now time.Time) (*models.Record, error)
}

// BlobIndex is the blob descriptor index plus the orphan query.
type BlobIndex interface {
	blobstore.Index
	ListOrphanBlobs(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]models.BlobDescriptor, error)
}

// TokenStore persists API tokens.
type TokenStore interface {
	TokenExists(id string) (bool, error)
	CreateAPIToken(ctx context.Context, token *APIToken) error
	GetActiveAPIToken(ctx context.Context, id string) (*APIToken, error)
	RevokeAPIToken(ctx context.Context, id string, revokedAt time.Time) (bool, error)
}

var (
	_ RecordStore = (*Store)(nil)
	_ BlobIndex   = (*Store)(nil)
	_ TokenStore  = (*Store)(nil)
)
