package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"famvault/internal/models"
)

// InsertBlob indexes a durably stored blob.
func (s *Store) InsertBlob(ctx context.Context, blob *models.BlobDescriptor) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	if strings.TrimSpace(blob.ID) == "" {
		return fmt.Errorf("blob id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (id, filename, content_type, length, sha256, storage_backend, storage_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.Filename, blob.ContentType, blob.Length, blob.SHA256,
		blob.StorageBackend, blob.StorageKey, formatTime(blob.CreatedAt))
	return err
}

// GetBlob returns the descriptor for id, or nil if it is not indexed.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.BlobDescriptor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content_type, length, sha256, storage_backend, storage_key, created_at
		FROM blobs
		WHERE id = ?
	`, id)
	return scanBlob(row)
}

// DeleteBlob removes a descriptor from the index.
func (s *Store) DeleteBlob(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	return err
}

// ListOrphanBlobs returns blobs referenced by no slot and created before
// cutoff, ordered by id and starting after afterID.
func (s *Store) ListOrphanBlobs(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]models.BlobDescriptor, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.filename, b.content_type, b.length, b.sha256, b.storage_backend, b.storage_key, b.created_at
		FROM blobs b
		LEFT JOIN record_slots rs ON rs.blob_id = b.id
		WHERE rs.blob_id IS NULL
		  AND b.created_at < ?
		  AND b.id > ?
		ORDER BY b.id ASC
		LIMIT ?
	`, formatTime(cutoff), afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := make([]models.BlobDescriptor, 0)
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	return blobs, rows.Err()
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.BlobDescriptor, error) {
	var blob models.BlobDescriptor
	var createdAt string
	if err := scanner.Scan(&blob.ID, &blob.Filename, &blob.ContentType, &blob.Length, &blob.SHA256,
		&blob.StorageBackend, &blob.StorageKey, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsed
	return &blob, nil
}
