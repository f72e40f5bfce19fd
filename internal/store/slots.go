package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"famvault/internal/models"
)

// BindSlot stores att in slot, replacing any prior attachment, and bumps the
// record version. The slot row is written by a single statement in the same
// transaction as the version bump, so readers see either the old or the new
// attachment in full. The referenced blob must be indexed.
func (s *Store) BindSlot(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, expectedVersion int64) (*models.Record, error) {
	return s.bindSlot(ctx, recordID, slot, att, "", expectedVersion)
}

// BindSlotWithName is BindSlot plus a display name change, committed
// together under one version bump.
func (s *Store) BindSlotWithName(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, displayName string, expectedVersion int64) (*models.Record, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, fmt.Errorf("display name is required")
	}
	return s.bindSlot(ctx, recordID, slot, att, displayName, expectedVersion)
}

func (s *Store) bindSlot(ctx context.Context, recordID string, slot models.Slot, att models.Attachment, displayName string, expectedVersion int64) (*models.Record, error) {
	if strings.TrimSpace(att.BlobID) == "" {
		return nil, fmt.Errorf("blob id is required")
	}
	boundAt := att.BoundAt
	if boundAt.IsZero() {
		boundAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := "UPDATE records SET version = version + 1, updated_at = ? WHERE id = ?"
	args := []any{formatTime(boundAt), recordID}
	if displayName != "" {
		query = "UPDATE records SET display_name = ?, version = version + 1, updated_at = ? WHERE id = ?"
		args = []any{displayName, formatTime(boundAt), recordID}
	}
	if err = bumpVersion(ctx, tx, query, args, recordID, expectedVersion); err != nil {
		return nil, err
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE id = ?", att.BlobID).Scan(&exists)
	if err == sql.ErrNoRows {
		err = ErrBlobNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO record_slots (record_id, slot, blob_id, blob_filename, blob_content_type, bound_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id, slot) DO UPDATE SET
		  blob_id = excluded.blob_id,
		  blob_filename = excluded.blob_filename,
		  blob_content_type = excluded.blob_content_type,
		  bound_at = excluded.bound_at
	`, recordID, string(slot), att.BlobID, att.BlobFilename, att.BlobContentType, formatTime(boundAt))
	if err != nil {
		return nil, err
	}

	record, err := getRecord(ctx, tx, recordID)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

// UnbindSlot clears slot and bumps the record version. Clearing an empty slot
// still bumps the version.
func (s *Store) UnbindSlot(ctx context.Context, recordID string, slot models.Slot, expectedVersion int64, now time.Time) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := "UPDATE records SET version = version + 1, updated_at = ? WHERE id = ?"
	if err = bumpVersion(ctx, tx, query, []any{formatTime(now), recordID}, recordID, expectedVersion); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM record_slots WHERE record_id = ? AND slot = ?", recordID, string(slot)); err != nil {
		return nil, err
	}

	record, err := getRecord(ctx, tx, recordID)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

func listSlotsForRecords(ctx context.Context, q queryer, ids []string) (map[string]map[models.Slot]models.Attachment, error) {
	result := make(map[string]map[models.Slot]models.Attachment, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, `
		SELECT record_id, slot, blob_id, blob_filename, blob_content_type, bound_at
		FROM record_slots
		WHERE record_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY record_id, slot
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var recordID, slot, boundAt string
		var att models.Attachment
		if err := rows.Scan(&recordID, &slot, &att.BlobID, &att.BlobFilename, &att.BlobContentType, &boundAt); err != nil {
			return nil, err
		}
		parsed, err := parseTime(boundAt)
		if err != nil {
			return nil, err
		}
		att.BoundAt = parsed
		if result[recordID] == nil {
			result[recordID] = make(map[models.Slot]models.Attachment)
		}
		result[recordID][models.Slot(slot)] = att
	}
	return result, rows.Err()
}
