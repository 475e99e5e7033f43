package upload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// MultipartEngine implements spec §4.3's multipart upload state
// machine: initiate, uploadPart, complete, status, abort.
type MultipartEngine struct {
	Metadata ports.MetadataStore
	Cache    ports.CacheStore
	Queue    ports.JobQueue
	Config   Config

	Now   func() time.Time
	NewID func() string
}

// NewMultipartEngine constructs a MultipartEngine with the real clock
// and uuid generator.
func NewMultipartEngine(metadata ports.MetadataStore, cache ports.CacheStore, queue ports.JobQueue, cfg Config) *MultipartEngine {
	return &MultipartEngine{
		Metadata: metadata,
		Cache:    cache,
		Queue:    queue,
		Config:   cfg,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// Initiate implements admission.SessionFactory: it is invoked by the
// virtual queue once a request is admitted (or the caller of it knows
// to route pre-admission-threshold requests to Engine.Upload instead).
func (m *MultipartEngine) Initiate(ctx context.Context, req domain.UploadRequest, userID string) (string, error) {
	if req.TotalSize < m.Config.MinMultipartSizeBytes {
		return "", apperr.New(apperr.ErrFileTooSmallForMultipart, "file is too small for multipart upload")
	}

	folderID := domain.ResolveFolderID(req.FolderID)
	if err := validateFolder(ctx, m.Metadata, folderID); err != nil {
		return "", err
	}

	name := NormalizeFileName(req.FileName)
	if name == "" {
		return "", apperr.New(apperr.ErrInvalidFileName, "file name must not be empty")
	}

	partSize := m.Config.DefaultPartSizeBytes
	now := m.Now()
	sess := &domain.UploadSession{
		ID:               m.NewID(),
		FileName:         name,
		FolderID:         folderID,
		TotalSize:        req.TotalSize,
		MimeType:         req.MimeType,
		PartSize:         partSize,
		TotalParts:       domain.TotalPartsFor(req.TotalSize, partSize),
		Status:           domain.SessionActive,
		ConflictStrategy: conflictStrategyOrDefault(req.ConflictStrategy),
		ExpiresAt:        now.Add(m.Config.SessionTTL),
		CreatedBy:        req.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.Metadata.CreateUploadSession(ctx, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// UploadPart implements spec §4.3's uploadPart(sessionId, partNumber,
// bytes). A replayed part with identical content is detected by
// comparing MD5 etags and does not double-count toward uploadedBytes;
// RecordUploadPart's upsert makes the row write itself naturally
// idempotent regardless.
func (m *MultipartEngine) UploadPart(ctx context.Context, sessionID string, partNumber int, data io.Reader) (*domain.UploadSession, error) {
	sess, err := m.Metadata.GetUploadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.Now()
	if sess.Status != domain.SessionActive {
		return nil, apperr.New(apperr.ErrSessionExpired, "upload session is not active")
	}
	if now.After(sess.ExpiresAt) {
		sess.Status = domain.SessionExpired
		sess.UpdatedAt = now
		if updErr := m.Metadata.UpdateUploadSession(ctx, sess); updErr != nil {
			logger.Error("failed to mark expired session", "sessionId", sessionID, "error", updErr)
		}
		return nil, apperr.New(apperr.ErrSessionExpired, "upload session has expired")
	}
	if partNumber < 1 || partNumber > sess.TotalParts {
		return nil, apperr.New(apperr.ErrInvalidPartNumber, fmt.Sprintf("part number must be between 1 and %d", sess.TotalParts))
	}

	var previous *domain.UploadPart
	if sess.CompletedParts[partNumber] {
		parts, err := m.Metadata.ListUploadParts(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		for i := range parts {
			if parts[i].PartNumber == partNumber {
				previous = &parts[i]
				break
			}
		}
	}

	objectKey := domain.PartObjectKey(sessionID, partNumber)
	hasher := md5.New()
	written, err := m.Cache.StreamWrite(ctx, objectKey, io.TeeReader(data, hasher))
	if err != nil {
		return nil, apperr.NewForFile(apperr.ErrCacheReadFailed, "failed to write upload part: "+err.Error(), sessionID)
	}
	etag := hex.EncodeToString(hasher.Sum(nil))

	part := &domain.UploadPart{SessionID: sessionID, PartNumber: partNumber, Size: written, ObjectKey: objectKey, ETag: etag, CompletedAt: now}
	if err := m.Metadata.RecordUploadPart(ctx, part); err != nil {
		return nil, err
	}

	switch {
	case previous == nil:
		sess.UploadedBytes += written
	case previous.ETag != etag:
		sess.UploadedBytes += written - previous.Size
	}
	if sess.CompletedParts == nil {
		sess.CompletedParts = make(map[int]bool, sess.TotalParts)
	}
	sess.CompletedParts[partNumber] = true
	sess.UpdatedAt = now
	if err := m.Metadata.UpdateUploadSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Complete implements spec §4.3's complete(sessionId). Re-requesting
// complete on a COMPLETING or COMPLETED session returns the same
// minted File rather than erroring.
func (m *MultipartEngine) Complete(ctx context.Context, sessionID string) (*domain.File, error) {
	sess, err := m.Metadata.GetUploadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch sess.Status {
	case domain.SessionCompleted, domain.SessionCompleting:
		return m.Metadata.GetFile(ctx, sess.FileID)
	case domain.SessionAborted:
		return nil, apperr.New(apperr.ErrSessionAborted, "upload session was aborted")
	case domain.SessionExpired:
		return nil, apperr.New(apperr.ErrSessionExpired, "upload session has expired")
	case domain.SessionActive:
	default:
		return nil, apperr.New(apperr.ErrInvalidArgument, "session is not in a completable state: "+string(sess.Status))
	}

	if !sess.IsComplete() {
		return nil, apperr.New(apperr.ErrIncompleteParts, "not all parts have been uploaded")
	}

	name := sess.FileName
	existing, err := m.Metadata.GetFileByPath(ctx, sess.FolderID, name)
	conflict := err == nil
	if err != nil && !isFileNotFound(err) {
		return nil, err
	}

	if conflict {
		switch sess.ConflictStrategy {
		case domain.ConflictRename:
			name, err = resolveConflictName(name, func(candidate string) (bool, error) {
				_, lookupErr := m.Metadata.GetFileByPath(ctx, sess.FolderID, candidate)
				if lookupErr == nil {
					return true, nil
				}
				if isFileNotFound(lookupErr) {
					return false, nil
				}
				return false, lookupErr
			})
			if err != nil {
				return nil, err
			}
		case domain.ConflictSkip:
			return existing, m.abortForSkip(ctx, sess)
		default:
			// ERROR, and OVERWRITE (deferred per spec), both reject.
			return nil, apperr.New(apperr.ErrDuplicateFileExists, "a file with this name already exists")
		}
	}

	fileID := m.NewID()
	now := m.Now()
	f := &domain.File{
		ID:        fileID,
		Name:      name,
		FolderID:  sess.FolderID,
		SizeBytes: sess.UploadedBytes,
		MimeType:  sess.MimeType,
		State:     domain.FileActive,
		CreatedBy: sess.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	event, err := m.commitCompletingFile(ctx, f, sess, now)
	if err != nil {
		return nil, err
	}

	m.enqueueSync(ctx, f, event, sess.ID)
	return f, nil
}

func (m *MultipartEngine) abortForSkip(ctx context.Context, sess *domain.UploadSession) error {
	sess.Status = domain.SessionAborted
	sess.UpdatedAt = m.Now()
	if err := m.Metadata.UpdateUploadSession(ctx, sess); err != nil {
		return err
	}
	CleanupParts(ctx, m.Metadata, m.Cache, sess.ID)
	return nil
}

// commitCompletingFile inserts File, CACHE StorageObject (AVAILABLE
// with a placeholder checksum — the real blob and checksum only exist
// once the sync worker concatenates the parts), NAS StorageObject
// (SYNCING), a CREATE SyncEvent carrying MultipartSessionID, and
// transitions the session to COMPLETING, all in one transaction.
func (m *MultipartEngine) commitCompletingFile(ctx context.Context, f *domain.File, sess *domain.UploadSession, now time.Time) (*domain.SyncEvent, error) {
	tx, txMeta, err := m.Metadata.Begin(ctx)
	if err != nil {
		return nil, err
	}
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error("failed to roll back multipart complete transaction", "sessionId", sess.ID, "error", rbErr)
		}
		return cause
	}

	if err := txMeta.CreateFile(ctx, f); err != nil {
		return nil, rollback(err)
	}

	cacheObj := &domain.StorageObject{
		ID:                 f.ID,
		FileID:             f.ID,
		Tier:               domain.TierCache,
		ObjectKey:          f.ID,
		AvailabilityStatus: domain.Available,
		CreatedAt:          now,
	}
	if err := txMeta.UpsertStorageObject(ctx, cacheObj); err != nil {
		return nil, rollback(err)
	}

	nasObj := &domain.StorageObject{
		ID:                 f.ID + ":nas",
		FileID:             f.ID,
		Tier:               domain.TierNAS,
		ObjectKey:          domain.NASObjectKey(now, f.Name),
		AvailabilityStatus: domain.Syncing,
		CreatedAt:          now,
	}
	if err := txMeta.UpsertStorageObject(ctx, nasObj); err != nil {
		return nil, rollback(err)
	}

	sessionID := sess.ID
	event := &domain.SyncEvent{
		ID:                 m.NewID(),
		FileID:             f.ID,
		EventType:          domain.SyncCreate,
		TargetPath:         nasObj.ObjectKey,
		Status:             domain.SyncPending,
		MaxRetries:         domain.DefaultMaxRetries,
		MultipartSessionID: &sessionID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := txMeta.CreateSyncEvent(ctx, event); err != nil {
		return nil, rollback(err)
	}

	sess.Status = domain.SessionCompleting
	sess.FileID = f.ID
	sess.UpdatedAt = now
	if err := txMeta.UpdateUploadSession(ctx, sess); err != nil {
		return nil, rollback(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return event, nil
}

func (m *MultipartEngine) enqueueSync(ctx context.Context, f *domain.File, event *domain.SyncEvent, sessionID string) {
	payload := domain.SyncJobPayload{FileID: f.ID, Action: string(event.EventType), SyncEventID: event.ID, MultipartSessionID: sessionID}
	if _, err := m.Queue.Add(ctx, "NAS_FILE_SYNC", payload.Marshal(), ports.JobOptions{JobID: event.ID}); err != nil {
		logger.Error("failed to enqueue NAS sync job", "fileId", f.ID, "syncEventId", event.ID, "error", err)
		return
	}

	event.Status = domain.SyncQueued
	event.UpdatedAt = m.Now()
	if err := m.Metadata.UpdateSyncEvent(ctx, event); err != nil {
		logger.Error("failed to mark sync event queued", "syncEventId", event.ID, "error", err)
	}
}

// Status returns the session's current lifecycle state and progress.
func (m *MultipartEngine) Status(ctx context.Context, sessionID string) (*domain.UploadSession, error) {
	return m.Metadata.GetUploadSession(ctx, sessionID)
}

// Abort transitions an ACTIVE or COMPLETING session to ABORTED and
// triggers background cleanup of its staged parts.
func (m *MultipartEngine) Abort(ctx context.Context, sessionID string) error {
	sess, err := m.Metadata.GetUploadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.CanTransitionTo(domain.SessionAborted) {
		return apperr.New(apperr.ErrInvalidArgument, "session cannot be aborted from state "+string(sess.Status))
	}
	sess.Status = domain.SessionAborted
	sess.UpdatedAt = m.Now()
	if err := m.Metadata.UpdateUploadSession(ctx, sess); err != nil {
		return err
	}

	go CleanupParts(context.Background(), m.Metadata, m.Cache, sessionID)
	return nil
}
