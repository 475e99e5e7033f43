package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
)

func scanFile(row pgx.Row) (*domain.File, error) {
	var f domain.File
	err := row.Scan(&f.ID, &f.Name, &f.FolderID, &f.SizeBytes, &f.MimeType, &f.State,
		&f.CreatedBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

const fileColumns = `id, name, folder_id, size_bytes, mime_type, state, created_by, created_at, updated_at`

func (s *Store) GetFile(ctx context.Context, fileID string) (*domain.File, error) {
	row := s.querier.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, fileID)
	f, err := scanFile(row)
	if err != nil {
		return nil, mapPgError(err, "GetFile", apperr.NotFound(fileID))
	}
	return f, nil
}

func (s *Store) GetFileByPath(ctx context.Context, folderID, name string) (*domain.File, error) {
	row := s.querier.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE folder_id = $1 AND name = $2 AND state = 'ACTIVE'`,
		folderID, name)
	f, err := scanFile(row)
	if err != nil {
		return nil, mapPgError(err, "GetFileByPath", apperr.New(apperr.ErrFileNotFound, "file not found: "+folderID+"/"+name))
	}
	return f, nil
}

func (s *Store) CreateFile(ctx context.Context, f *domain.File) error {
	_, err := s.querier.Exec(ctx, `
		INSERT INTO files (id, name, folder_id, size_bytes, mime_type, state, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.Name, f.FolderID, f.SizeBytes, f.MimeType, f.State, f.CreatedBy, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return mapPgError(err, "CreateFile", apperr.DuplicateFile(f.FolderID+"/"+f.Name))
	}
	return nil
}

func (s *Store) UpdateFile(ctx context.Context, f *domain.File) error {
	tag, err := s.querier.Exec(ctx, `
		UPDATE files SET name = $2, folder_id = $3, size_bytes = $4, mime_type = $5, state = $6, updated_at = $7
		WHERE id = $1
	`, f.ID, f.Name, f.FolderID, f.SizeBytes, f.MimeType, f.State, f.UpdatedAt)
	if err != nil {
		return mapPgError(err, "UpdateFile", apperr.DuplicateFile(f.FolderID+"/"+f.Name))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(f.ID)
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	tag, err := s.querier.Exec(ctx, `DELETE FROM files WHERE id = $1`, fileID)
	if err != nil {
		return mapPgError(err, "DeleteFile", apperr.NotFound(fileID))
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fileID)
	}
	return nil
}

// FolderExists reports whether folderID has at least one ACTIVE file
// referencing it. The service treats folders as
// implicit, so existence is derived rather than stored.
func (s *Store) FolderExists(ctx context.Context, folderID string) (bool, error) {
	var exists bool
	err := s.querier.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM files WHERE folder_id = $1 AND state = 'ACTIVE')`,
		folderID,
	).Scan(&exists)
	if err != nil {
		return false, mapPgError(err, "FolderExists", nil)
	}
	return exists, nil
}
