package ports

import (
	"context"

	"github.com/marmos91/filestore/pkg/domain"
)

// Transaction is an open metadata-store transaction, acquired via
// MetadataStore.Begin. Callers must call Commit or Rollback exactly
// once; a sync handler that fails mid-way should Rollback so the
// SyncEvent retry sees pre-attempt state.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// MetadataStore is the system of record for files, folders, storage
// objects, upload sessions/parts and sync events. Adapters are
// transactional: Begin returns a Transaction plus a store bound to it,
// so a caller can read-modify-write several tables atomically.
type MetadataStore interface {
	Begin(ctx context.Context) (Transaction, MetadataStore, error)

	// Files and folders.
	GetFile(ctx context.Context, fileID string) (*domain.File, error)
	GetFileByPath(ctx context.Context, folderID, name string) (*domain.File, error)
	CreateFile(ctx context.Context, f *domain.File) error
	UpdateFile(ctx context.Context, f *domain.File) error
	DeleteFile(ctx context.Context, fileID string) error
	FolderExists(ctx context.Context, folderID string) (bool, error)

	// Storage objects, one row per (fileId, tier).
	GetStorageObject(ctx context.Context, fileID string, tier domain.Tier) (*domain.StorageObject, error)
	UpsertStorageObject(ctx context.Context, o *domain.StorageObject) error
	DeleteStorageObject(ctx context.Context, fileID string, tier domain.Tier) error

	// AcquireStorageLease atomically increments the (fileID, tier)
	// row's lease count, making an in-flight reader visible to
	// concurrent destructive-op checks. The store row, not process
	// memory, is what those checks read, so the increment must be
	// persisted before a stream is handed out. Fails if the row does
	// not exist.
	AcquireStorageLease(ctx context.Context, fileID string, tier domain.Tier) error

	// ReleaseStorageLease atomically decrements the lease count,
	// clamped at zero. It touches no other column: a release at the
	// end of a long download must not revert state transitions that
	// happened on the row in the meantime. Releasing a missing row is
	// a no-op (the object may have been purged mid-download).
	ReleaseStorageLease(ctx context.Context, fileID string, tier domain.Tier) error

	// Multipart upload sessions.
	GetUploadSession(ctx context.Context, sessionID string) (*domain.UploadSession, error)
	CreateUploadSession(ctx context.Context, s *domain.UploadSession) error
	UpdateUploadSession(ctx context.Context, s *domain.UploadSession) error
	RecordUploadPart(ctx context.Context, p *domain.UploadPart) error
	ListUploadParts(ctx context.Context, sessionID string) ([]domain.UploadPart, error)
	ListExpiredSessions(ctx context.Context, olderThan int64, limit int) ([]domain.UploadSession, error)
	// ListSessionsByStatus returns up to limit sessions in one of statuses
	// last touched before olderThan, oldest first. The orphan cleaner uses
	// this for the COMPLETING-too-long sweep (worker died mid-concat).
	ListSessionsByStatus(ctx context.Context, statuses []domain.SessionStatus, olderThan int64, limit int) ([]domain.UploadSession, error)
	DeleteUploadSession(ctx context.Context, sessionID string) error
	DeleteUploadParts(ctx context.Context, sessionID string) error

	// GetCompletingSessionByFileID finds the in-progress multipart
	// session (status COMPLETING) that produced fileId, used by the
	// download router's parts-branch fallback (spec §4.2 step 3). It
	// returns nil, nil if no such session exists.
	GetCompletingSessionByFileID(ctx context.Context, fileID string) (*domain.UploadSession, error)

	// Sync events.
	CreateSyncEvent(ctx context.Context, e *domain.SyncEvent) error
	UpdateSyncEvent(ctx context.Context, e *domain.SyncEvent) error
	GetSyncEvent(ctx context.Context, eventID string) (*domain.SyncEvent, error)
	GetLatestSyncEvent(ctx context.Context, fileID string) (*domain.SyncEvent, error)

	Close() error
}
