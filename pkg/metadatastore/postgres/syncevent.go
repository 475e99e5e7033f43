package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
)

const syncEventColumns = `id, file_id, event_type, source_path, target_path, status, retry_count, max_retries, error_message, multipart_session_id, trash_metadata_id, original_folder_id, created_at, updated_at`

func scanSyncEvent(row pgx.Row) (*domain.SyncEvent, error) {
	var e domain.SyncEvent
	err := row.Scan(&e.ID, &e.FileID, &e.EventType, &e.SourcePath, &e.TargetPath, &e.Status,
		&e.RetryCount, &e.MaxRetries, &e.ErrorMessage, &e.MultipartSessionID, &e.TrashMetadataID,
		&e.OriginalFolderID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateSyncEvent(ctx context.Context, e *domain.SyncEvent) error {
	_, err := s.querier.Exec(ctx, `
		INSERT INTO sync_events (id, file_id, event_type, source_path, target_path, status, retry_count, max_retries, error_message, multipart_session_id, trash_metadata_id, original_folder_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.FileID, e.EventType, e.SourcePath, e.TargetPath, e.Status, e.RetryCount, e.MaxRetries,
		e.ErrorMessage, e.MultipartSessionID, e.TrashMetadataID, e.OriginalFolderID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return mapPgError(err, "CreateSyncEvent", apperr.NotFound(e.FileID))
	}
	return nil
}

func (s *Store) UpdateSyncEvent(ctx context.Context, e *domain.SyncEvent) error {
	tag, err := s.querier.Exec(ctx, `
		UPDATE sync_events SET status = $2, retry_count = $3, error_message = $4,
			trash_metadata_id = $5, original_folder_id = $6, updated_at = $7
		WHERE id = $1
	`, e.ID, e.Status, e.RetryCount, e.ErrorMessage, e.TrashMetadataID, e.OriginalFolderID, e.UpdatedAt)
	if err != nil {
		return mapPgError(err, "UpdateSyncEvent", nil)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ErrFileNotFound, "sync event not found: "+e.ID)
	}
	return nil
}

func (s *Store) GetSyncEvent(ctx context.Context, eventID string) (*domain.SyncEvent, error) {
	row := s.querier.QueryRow(ctx, `SELECT `+syncEventColumns+` FROM sync_events WHERE id = $1`, eventID)
	e, err := scanSyncEvent(row)
	if err != nil {
		return nil, mapPgError(err, "GetSyncEvent",
			apperr.New(apperr.ErrFileNotFound, "sync event not found: "+eventID))
	}
	return e, nil
}

func (s *Store) GetLatestSyncEvent(ctx context.Context, fileID string) (*domain.SyncEvent, error) {
	row := s.querier.QueryRow(ctx,
		`SELECT `+syncEventColumns+` FROM sync_events WHERE file_id = $1 ORDER BY created_at DESC LIMIT 1`,
		fileID)
	e, err := scanSyncEvent(row)
	if err != nil {
		return nil, mapPgError(err, "GetLatestSyncEvent",
			apperr.NewForFile(apperr.ErrFileNotFound, "no sync event recorded", fileID))
	}
	return e, nil
}
