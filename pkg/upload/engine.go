// Package upload implements spec §4.3's two upload engines: a one-shot
// path for small files and a multipart session machine for large ones,
// both writing through the cache tier and handing the NAS write off to
// the sync worker via a queued SyncEvent.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// Config carries the file-size thresholds the upload engines enforce.
// It is the upload-facing slice of config.Config's Admission/Multipart
// sections.
type Config struct {
	MaxFileSizeBytes     int64
	MinMultipartSizeBytes int64
	DefaultPartSizeBytes  int64
	SessionTTL            time.Duration
}

// Engine implements the small, one-shot upload path (spec §4.3,
// "Small upload").
type Engine struct {
	Metadata ports.MetadataStore
	Cache    ports.CacheStore
	Queue    ports.JobQueue
	Config   Config

	Now   func() time.Time
	NewID func() string
}

// NewEngine constructs an Engine with the real clock and uuid generator.
func NewEngine(metadata ports.MetadataStore, cache ports.CacheStore, queue ports.JobQueue, cfg Config) *Engine {
	return &Engine{
		Metadata: metadata,
		Cache:    cache,
		Queue:    queue,
		Config:   cfg,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// Request is a one-shot upload request. Data is streamed, never
// buffered whole: the engine computes its SHA-256 while writing it to
// the cache tier in a single pass.
type Request struct {
	FolderID  string
	FileName  string
	MimeType  string
	TotalSize int64
	Data      io.Reader
	CreatedBy string
}

// Upload runs spec §4.3's small-upload algorithm end to end and
// returns the created File.
func (e *Engine) Upload(ctx context.Context, req Request) (*domain.File, error) {
	if req.TotalSize > e.Config.MaxFileSizeBytes {
		return nil, apperr.New(apperr.ErrFileTooLarge, "file exceeds maximum allowed size")
	}

	folderID := domain.ResolveFolderID(req.FolderID)
	if err := validateFolder(ctx, e.Metadata, folderID); err != nil {
		return nil, err
	}

	name := NormalizeFileName(req.FileName)
	if name == "" {
		return nil, apperr.New(apperr.ErrInvalidFileName, "file name must not be empty")
	}

	fileID := e.NewID()
	now := e.Now()

	hasher := sha256.New()
	written, err := e.Cache.StreamWrite(ctx, fileID, io.TeeReader(req.Data, hasher))
	if err != nil {
		return nil, apperr.NewForFile(apperr.ErrCacheReadFailed, "failed to write upload to cache: "+err.Error(), fileID)
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	f := &domain.File{
		ID:        fileID,
		Name:      name,
		FolderID:  folderID,
		SizeBytes: written,
		MimeType:  req.MimeType,
		State:     domain.FileActive,
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	event, err := e.commitNewFile(ctx, f, checksum, now)
	if err != nil {
		if delErr := e.Cache.Delete(context.Background(), fileID); delErr != nil {
			logger.Error("failed to compensate cache write after commit failure", "fileId", fileID, "error", delErr)
		}
		return nil, err
	}

	e.enqueueSync(ctx, f, event)
	return f, nil
}

// commitNewFile inserts File, both StorageObject rows, and a PENDING
// CREATE SyncEvent in one transaction (spec §4.3 step 5). Same-named
// files uploaded at distinct instants legitimately coexist — createdAt
// is part of the identity the spec keys duplicate detection on, so a
// one-shot upload never needs the rename/skip/overwrite machinery
// multipart's complete() uses.
func (e *Engine) commitNewFile(ctx context.Context, f *domain.File, checksum string, now time.Time) (*domain.SyncEvent, error) {
	tx, txMeta, err := e.Metadata.Begin(ctx)
	if err != nil {
		return nil, err
	}
	rollback := func(cause error) error {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error("failed to roll back upload transaction", "fileId", f.ID, "error", rbErr)
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
		Checksum:           &checksum,
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

	event := &domain.SyncEvent{
		ID:         e.NewID(),
		FileID:     f.ID,
		EventType:  domain.SyncCreate,
		TargetPath: nasObj.ObjectKey,
		Status:     domain.SyncPending,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := txMeta.CreateSyncEvent(ctx, event); err != nil {
		return nil, rollback(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return event, nil
}

// enqueueSync hands the NAS write off to the sync worker's queue. A
// failure here just leaves the SyncEvent PENDING; the sync worker (or
// a retry of this enqueue) picks it up later, so it is logged, not
// propagated — the upload itself already succeeded.
func (e *Engine) enqueueSync(ctx context.Context, f *domain.File, event *domain.SyncEvent) {
	payload := domain.SyncJobPayload{FileID: f.ID, Action: string(event.EventType), SyncEventID: event.ID}
	if _, err := e.Queue.Add(ctx, "NAS_FILE_SYNC", payload.Marshal(), ports.JobOptions{JobID: event.ID}); err != nil {
		logger.Error("failed to enqueue NAS sync job", "fileId", f.ID, "syncEventId", event.ID, "error", err)
		return
	}

	event.Status = domain.SyncQueued
	event.UpdatedAt = e.Now()
	if err := e.Metadata.UpdateSyncEvent(ctx, event); err != nil {
		logger.Error("failed to mark sync event queued", "syncEventId", event.ID, "error", err)
	}
}
