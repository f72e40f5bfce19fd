package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"famvault/internal/models"
)

// RecordExists reports whether a record with id exists.
func (s *Store) RecordExists(id string) (bool, error) {
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM records WHERE id = ? LIMIT 1", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GenerateRecordID returns a fresh id for a record of kind.
func (s *Store) GenerateRecordID(kind models.RecordKind) (string, error) {
	return GenerateID(kind.IDPrefix(), s.RecordExists)
}

// CreateRecord inserts a record with no bound slots. Version starts at 1.
func (s *Store) CreateRecord(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.TrimSpace(record.Owner) == "" {
		return fmt.Errorf("record owner is required")
	}
	if record.Version <= 0 {
		record.Version = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, kind, owner, display_name, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.ID, string(record.Kind), record.Owner, record.DisplayName, record.Version,
		formatTime(record.CreatedAt), formatTime(record.UpdatedAt))
	return err
}

// GetRecord returns a record with its bound slots, or nil if absent.
func (s *Store) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	return getRecord(ctx, s.db, id)
}

// UpdateRecordName changes the display name and bumps the version. A positive
// expectedVersion must match the stored version.
func (s *Store) UpdateRecordName(ctx context.Context, id, displayName string, expectedVersion int64, now time.Time) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := "UPDATE records SET display_name = ?, version = version + 1, updated_at = ? WHERE id = ?"
	args := []any{displayName, formatTime(now), id}
	if err = bumpVersion(ctx, tx, query, args, id, expectedVersion); err != nil {
		return nil, err
	}

	record, err := getRecord(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return record, nil
}

// DeleteRecord removes a record and its slot rows. Bound blobs stay in the
// blob index as orphans. Returns false when nothing was deleted.
func (s *Store) DeleteRecord(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListRecordsByOwner returns the owner's records of kind, newest first.
func (s *Store) ListRecordsByOwner(ctx context.Context, kind models.RecordKind, owner string, limit int) ([]models.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, owner, display_name, version, created_at, updated_at
		FROM records
		WHERE kind = ? AND owner = ?
		ORDER BY updated_at DESC, id ASC
		LIMIT ?
	`, string(kind), owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.Record, 0)
	ids := make([]string, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
		ids = append(ids, record.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return records, nil
	}

	slots, err := listSlotsForRecords(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if atts, ok := slots[records[i].ID]; ok {
			records[i].Attachments = atts
		}
	}
	return records, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, id string) (*models.Record, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, kind, owner, display_name, version, created_at, updated_at
		FROM records
		WHERE id = ?
	`, id)
	record, err := scanRecord(row)
	if err != nil || record == nil {
		return nil, err
	}
	slots, err := listSlotsForRecords(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	record.Attachments = slots[id]
	return record, nil
}

// bumpVersion runs an UPDATE that increments the record version, adding the
// optimistic version check when expectedVersion is positive. Zero affected
// rows are resolved into ErrRecordNotFound or ErrVersionConflict.
func bumpVersion(ctx context.Context, tx *sql.Tx, query string, args []any, id string, expectedVersion int64) error {
	if expectedVersion > 0 {
		query += " AND version = ?"
		args = append(args, expectedVersion)
	}
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM records WHERE id = ?", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrRecordNotFound
	}
	if err != nil {
		return err
	}
	return ErrVersionConflict
}

func scanRecord(scanner interface {
	Scan(dest ...any) error
}) (*models.Record, error) {
	var record models.Record
	var kind, createdAt, updatedAt string
	if err := scanner.Scan(&record.ID, &kind, &record.Owner, &record.DisplayName, &record.Version, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	record.Kind = models.RecordKind(kind)
	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &record, nil
}
