package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
)

const uploadSessionColumns = `id, file_name, folder_id, total_size, mime_type, part_size, total_parts, uploaded_bytes, status, conflict_strategy, expires_at, file_id, created_by, created_at, updated_at`

func scanUploadSession(row pgx.Row) (*domain.UploadSession, error) {
	var s domain.UploadSession
	var fileID *string
	err := row.Scan(&s.ID, &s.FileName, &s.FolderID, &s.TotalSize, &s.MimeType, &s.PartSize, &s.TotalParts,
		&s.UploadedBytes, &s.Status, &s.ConflictStrategy, &s.ExpiresAt, &fileID, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if fileID != nil {
		s.FileID = *fileID
	}
	return &s, nil
}

// GetUploadSession also loads the session's completed parts, since
// CompletedParts is derived from upload_parts rather than stored.
func (s *Store) GetUploadSession(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	row := s.querier.QueryRow(ctx, `SELECT `+uploadSessionColumns+` FROM upload_sessions WHERE id = $1`, sessionID)
	sess, err := scanUploadSession(row)
	if err != nil {
		return nil, mapPgError(err, "GetUploadSession", apperr.SessionNotFound(sessionID))
	}

	parts, err := s.ListUploadParts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.CompletedParts = make(map[int]bool, len(parts))
	for _, p := range parts {
		sess.CompletedParts[p.PartNumber] = true
	}
	return sess, nil
}

func (s *Store) CreateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	_, err := s.querier.Exec(ctx, `
		INSERT INTO upload_sessions (id, file_name, folder_id, total_size, mime_type, part_size, total_parts, uploaded_bytes, status, conflict_strategy, expires_at, file_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, sess.ID, sess.FileName, sess.FolderID, sess.TotalSize, sess.MimeType, sess.PartSize, sess.TotalParts,
		sess.UploadedBytes, sess.Status, sess.ConflictStrategy, sess.ExpiresAt, nullableString(sess.FileID),
		sess.CreatedBy, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return mapPgError(err, "CreateUploadSession", nil)
	}
	return nil
}

func (s *Store) UpdateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	tag, err := s.querier.Exec(ctx, `
		UPDATE upload_sessions SET
			uploaded_bytes = $2, status = $3, expires_at = $4, file_id = $5, updated_at = $6
		WHERE id = $1
	`, sess.ID, sess.UploadedBytes, sess.Status, sess.ExpiresAt, nullableString(sess.FileID), sess.UpdatedAt)
	if err != nil {
		return mapPgError(err, "UpdateUploadSession", nil)
	}
	if tag.RowsAffected() == 0 {
		return apperr.SessionNotFound(sess.ID)
	}
	return nil
}

func (s *Store) RecordUploadPart(ctx context.Context, p *domain.UploadPart) error {
	_, err := s.querier.Exec(ctx, `
		INSERT INTO upload_parts (session_id, part_number, size_bytes, object_key, etag, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, part_number) DO UPDATE SET
			size_bytes = EXCLUDED.size_bytes,
			object_key = EXCLUDED.object_key,
			etag = EXCLUDED.etag,
			completed_at = EXCLUDED.completed_at
	`, p.SessionID, p.PartNumber, p.Size, p.ObjectKey, p.ETag, p.CompletedAt)
	if err != nil {
		return mapPgError(err, "RecordUploadPart", apperr.SessionNotFound(p.SessionID))
	}
	return nil
}

func (s *Store) ListUploadParts(ctx context.Context, sessionID string) ([]domain.UploadPart, error) {
	rows, err := s.querier.Query(ctx, `
		SELECT session_id, part_number, size_bytes, object_key, etag, completed_at
		FROM upload_parts WHERE session_id = $1 ORDER BY part_number
	`, sessionID)
	if err != nil {
		return nil, mapPgError(err, "ListUploadParts", nil)
	}
	defer rows.Close()

	var parts []domain.UploadPart
	for rows.Next() {
		var p domain.UploadPart
		if err := rows.Scan(&p.SessionID, &p.PartNumber, &p.Size, &p.ObjectKey, &p.ETag, &p.CompletedAt); err != nil {
			return nil, mapPgError(err, "ListUploadParts", nil)
		}
		parts = append(parts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "ListUploadParts", nil)
	}
	return parts, nil
}

// ListExpiredSessions returns up to limit ACTIVE/COMPLETING sessions
// last touched before the unix timestamp olderThan, oldest first. The
// orphan cleaner uses this to find sweep candidates.
func (s *Store) ListExpiredSessions(ctx context.Context, olderThan int64, limit int) ([]domain.UploadSession, error) {
	rows, err := s.querier.Query(ctx, `
		SELECT `+uploadSessionColumns+`
		FROM upload_sessions
		WHERE status IN ('ACTIVE', 'COMPLETING') AND updated_at < to_timestamp($1)
		ORDER BY updated_at ASC
		LIMIT $2
	`, olderThan, limit)
	if err != nil {
		return nil, mapPgError(err, "ListExpiredSessions", nil)
	}
	defer rows.Close()

	var sessions []domain.UploadSession
	for rows.Next() {
		sess, err := scanUploadSession(rows)
		if err != nil {
			return nil, mapPgError(err, "ListExpiredSessions", nil)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "ListExpiredSessions", nil)
	}
	return sessions, nil
}

// ListSessionsByStatus returns up to limit sessions whose status is one
// of statuses and whose updated_at predates olderThan, oldest first.
func (s *Store) ListSessionsByStatus(ctx context.Context, statuses []domain.SessionStatus, olderThan int64, limit int) ([]domain.UploadSession, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.querier.Query(ctx, `
		SELECT `+uploadSessionColumns+`
		FROM upload_sessions
		WHERE status = ANY($1) AND updated_at < to_timestamp($2)
		ORDER BY updated_at ASC
		LIMIT $3
	`, names, olderThan, limit)
	if err != nil {
		return nil, mapPgError(err, "ListSessionsByStatus", nil)
	}
	defer rows.Close()

	var sessions []domain.UploadSession
	for rows.Next() {
		sess, err := scanUploadSession(rows)
		if err != nil {
			return nil, mapPgError(err, "ListSessionsByStatus", nil)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "ListSessionsByStatus", nil)
	}
	return sessions, nil
}

// DeleteUploadSession removes a session row. Callers must delete its
// parts first (see DeleteUploadParts) to satisfy the foreign key.
func (s *Store) DeleteUploadSession(ctx context.Context, sessionID string) error {
	_, err := s.querier.Exec(ctx, `DELETE FROM upload_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return mapPgError(err, "DeleteUploadSession", nil)
	}
	return nil
}

// DeleteUploadParts removes every part row for a session.
func (s *Store) DeleteUploadParts(ctx context.Context, sessionID string) error {
	_, err := s.querier.Exec(ctx, `DELETE FROM upload_parts WHERE session_id = $1`, sessionID)
	if err != nil {
		return mapPgError(err, "DeleteUploadParts", nil)
	}
	return nil
}

// GetCompletingSessionByFileID finds the COMPLETING session that
// produced fileId, if any, for the download router's parts branch.
func (s *Store) GetCompletingSessionByFileID(ctx context.Context, fileID string) (*domain.UploadSession, error) {
	row := s.querier.QueryRow(ctx,
		`SELECT `+uploadSessionColumns+` FROM upload_sessions WHERE file_id = $1 AND status = $2`,
		fileID, domain.SessionCompleting)
	sess, err := scanUploadSession(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, mapPgError(err, "GetCompletingSessionByFileID", nil)
	}

	parts, err := s.ListUploadParts(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	sess.CompletedParts = make(map[int]bool, len(parts))
	for _, p := range parts {
		sess.CompletedParts[p.PartNumber] = true
	}
	return sess, nil
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
