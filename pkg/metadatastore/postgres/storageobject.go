package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
)

const storageObjectColumns = `id, file_id, tier, object_key, availability_status, access_count, lease_count, last_accessed, checksum, error_message, created_at`

func scanStorageObject(row pgx.Row) (*domain.StorageObject, error) {
	var o domain.StorageObject
	var lastAccessed *time.Time
	err := row.Scan(&o.ID, &o.FileID, &o.Tier, &o.ObjectKey, &o.AvailabilityStatus,
		&o.AccessCount, &o.LeaseCount, &lastAccessed, &o.Checksum, &o.ErrorMessage, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastAccessed != nil {
		o.LastAccessed = *lastAccessed
	}
	return &o, nil
}

// nullableTime returns nil for a zero time.Time so it stores as SQL
// NULL instead of the year-1 epoch.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Store) GetStorageObject(ctx context.Context, fileID string, tier domain.Tier) (*domain.StorageObject, error) {
	row := s.querier.QueryRow(ctx,
		`SELECT `+storageObjectColumns+` FROM storage_objects WHERE file_id = $1 AND tier = $2`,
		fileID, tier)
	o, err := scanStorageObject(row)
	if err != nil {
		return nil, mapPgError(err, "GetStorageObject",
			apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "no storage object for tier "+string(tier), fileID))
	}
	return o, nil
}

// UpsertStorageObject inserts or updates the single row for
// (FileID, Tier), matching the "exactly one row per pair" invariant.
func (s *Store) UpsertStorageObject(ctx context.Context, o *domain.StorageObject) error {
	_, err := s.querier.Exec(ctx, `
		INSERT INTO storage_objects (id, file_id, tier, object_key, availability_status, access_count, lease_count, last_accessed, checksum, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (file_id, tier) DO UPDATE SET
			object_key = EXCLUDED.object_key,
			availability_status = EXCLUDED.availability_status,
			access_count = EXCLUDED.access_count,
			lease_count = EXCLUDED.lease_count,
			last_accessed = EXCLUDED.last_accessed,
			checksum = EXCLUDED.checksum,
			error_message = EXCLUDED.error_message
	`, o.ID, o.FileID, o.Tier, o.ObjectKey, o.AvailabilityStatus, o.AccessCount, o.LeaseCount,
		nullableTime(o.LastAccessed), o.Checksum, o.ErrorMessage, o.CreatedAt)
	if err != nil {
		return mapPgError(err, "UpsertStorageObject", apperr.NotFound(o.FileID))
	}
	return nil
}

// AcquireStorageLease increments lease_count in place (plus the access
// bookkeeping a read implies). A plain relative UPDATE keeps concurrent
// acquirers from losing increments the way a read-modify-write would.
func (s *Store) AcquireStorageLease(ctx context.Context, fileID string, tier domain.Tier) error {
	tag, err := s.querier.Exec(ctx, `
		UPDATE storage_objects
		SET lease_count = lease_count + 1,
		    access_count = access_count + 1,
		    last_accessed = now()
		WHERE file_id = $1 AND tier = $2
	`, fileID, tier)
	if err != nil {
		return mapPgError(err, "AcquireStorageLease", nil)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "no storage object for tier "+string(tier), fileID)
	}
	return nil
}

// ReleaseStorageLease decrements lease_count, clamped at zero, and
// touches nothing else on the row. A missing row is not an error.
func (s *Store) ReleaseStorageLease(ctx context.Context, fileID string, tier domain.Tier) error {
	_, err := s.querier.Exec(ctx, `
		UPDATE storage_objects
		SET lease_count = GREATEST(lease_count - 1, 0)
		WHERE file_id = $1 AND tier = $2
	`, fileID, tier)
	if err != nil {
		return mapPgError(err, "ReleaseStorageLease", nil)
	}
	return nil
}

func (s *Store) DeleteStorageObject(ctx context.Context, fileID string, tier domain.Tier) error {
	tag, err := s.querier.Exec(ctx, `DELETE FROM storage_objects WHERE file_id = $1 AND tier = $2`, fileID, tier)
	if err != nil {
		return mapPgError(err, "DeleteStorageObject", nil)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewForFile(apperr.ErrFileNotFoundInStorage, "no storage object for tier "+string(tier), fileID)
	}
	return nil
}
