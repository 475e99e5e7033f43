// Package fileops implements the mutation half of the file lifecycle
// spec.md's File state DAG describes: rename, move, trash, restore and
// purge. Each operation validates preconditions against the current
// File/StorageObject state, writes the metadata change and a PENDING
// SyncEvent in one transaction, flips the NAS StorageObject to SYNCING
// so concurrent mutations and downloads see the file as busy, and
// enqueues the NAS_FILE_SYNC job the same way pkg/upload's engines do
// — the actual NAS side effect is entirely pkg/syncworker's job.
package fileops

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
	"github.com/marmos91/filestore/pkg/upload"
)

// Engine implements rename/move/trash/restore/purge.
type Engine struct {
	Metadata ports.MetadataStore
	Queue    ports.JobQueue

	Now   func() time.Time
	NewID func() string
}

// NewEngine constructs an Engine with the real clock and uuid generator.
func NewEngine(metadata ports.MetadataStore, queue ports.JobQueue) *Engine {
	return &Engine{
		Metadata: metadata,
		Queue:    queue,
		Now:      func() time.Time { return time.Now().UTC() },
		NewID:    uuid.NewString,
	}
}

// loadMutable loads fileID's File and NAS StorageObject, rejecting if
// the file is not ACTIVE (callers that operate on trashed files, i.e.
// Restore and Purge, load directly instead) or if the NAS tier is
// already mid-sync.
func (e *Engine) loadMutable(ctx context.Context, fileID string) (*domain.File, *domain.StorageObject, error) {
	f, err := e.Metadata.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	switch f.State {
	case domain.FileTrashed:
		return nil, nil, apperr.InTrash(fileID)
	case domain.FileDeleted:
		return nil, nil, apperr.Deleted(fileID)
	}

	nasObj, err := e.Metadata.GetStorageObject(ctx, fileID, domain.TierNAS)
	if err != nil {
		return nil, nil, err
	}
	if nasObj.MutationBlocked() {
		return nil, nil, apperr.Syncing(fileID)
	}
	return f, nasObj, nil
}

// Rename implements spec §4.5's rename producer side: validate the new
// name, check for a destination collision, commit the rename and queue
// the NAS mutation.
func (e *Engine) Rename(ctx context.Context, fileID, newName string) (*domain.File, error) {
	f, nasObj, err := e.loadMutable(ctx, fileID)
	if err != nil {
		return nil, err
	}

	name := upload.NormalizeFileName(newName)
	if err := upload.ValidateRename(f.Name, name); err != nil {
		return nil, err
	}

	if dup, err := lookupDuplicate(ctx, e.Metadata, f.FolderID, name, f.ID); err != nil {
		return nil, err
	} else if dup != nil {
		return nil, apperr.DuplicateFile(f.FolderID + "/" + name)
	}

	now := e.Now()
	oldName := f.Name
	f.Name = name
	f.UpdatedAt = now

	event := &domain.SyncEvent{
		ID:         e.NewID(),
		FileID:     f.ID,
		EventType:  domain.SyncRename,
		SourcePath: oldName,
		TargetPath: name,
		Status:     domain.SyncPending,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := e.commitMutation(ctx, f, nasObj, event); err != nil {
		return nil, err
	}
	e.enqueueSync(ctx, f.ID, event)
	return f, nil
}

// Move implements spec §4.5's move producer side. A DUPLICATE_FILE_EXISTS
// at the destination is either rejected or, under ConflictSkip, turned
// into a no-op that reports skipped=true.
func (e *Engine) Move(ctx context.Context, fileID, targetFolderID string, strategy domain.ConflictStrategy) (f *domain.File, skipped bool, err error) {
	f, nasObj, err := e.loadMutable(ctx, fileID)
	if err != nil {
		return nil, false, err
	}

	targetFolderID = domain.ResolveFolderID(targetFolderID)
	if err := validateTargetFolder(ctx, e.Metadata, targetFolderID); err != nil {
		return nil, false, err
	}

	if dup, err := lookupDuplicate(ctx, e.Metadata, targetFolderID, f.Name, f.ID); err != nil {
		return nil, false, err
	} else if dup != nil {
		if conflictStrategyOrDefault(strategy) == domain.ConflictSkip {
			return f, true, nil
		}
		return nil, false, apperr.DuplicateFile(targetFolderID + "/" + f.Name)
	}

	now := e.Now()
	originalFolderID := f.FolderID
	f.FolderID = targetFolderID
	f.UpdatedAt = now

	event := &domain.SyncEvent{
		ID:               e.NewID(),
		FileID:           f.ID,
		EventType:        domain.SyncMove,
		SourcePath:       originalFolderID,
		TargetPath:       targetFolderID,
		Status:           domain.SyncPending,
		MaxRetries:       domain.DefaultMaxRetries,
		OriginalFolderID: &originalFolderID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := e.commitMutation(ctx, f, nasObj, event); err != nil {
		return nil, false, err
	}
	e.enqueueSync(ctx, f.ID, event)
	return f, false, nil
}

// Trash implements spec §4.5's trash producer side, including the
// request-path lease check (§8's "trash blocked by lease" property) —
// the worker re-checks the same condition defensively, but rejecting
// here avoids a pointless enqueue-then-retry round trip.
func (e *Engine) Trash(ctx context.Context, fileID string) (*domain.File, error) {
	f, err := e.Metadata.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.State == domain.FileTrashed {
		return nil, apperr.New(apperr.ErrFileAlreadyTrashed, "file is already trashed")
	}
	if !f.CanTransitionTo(domain.FileTrashed) {
		return nil, apperr.Deleted(fileID)
	}

	nasObj, err := e.Metadata.GetStorageObject(ctx, fileID, domain.TierNAS)
	if err != nil {
		return nil, err
	}
	if nasObj.LeaseCount > 0 {
		return nil, apperr.InUse(fileID)
	}
	if nasObj.MutationBlocked() {
		return nil, apperr.Syncing(fileID)
	}

	now := e.Now()
	trashMetadataID := e.NewID()
	f.State = domain.FileTrashed
	f.UpdatedAt = now

	event := &domain.SyncEvent{
		ID:              e.NewID(),
		FileID:          f.ID,
		EventType:       domain.SyncTrash,
		Status:          domain.SyncPending,
		MaxRetries:      domain.DefaultMaxRetries,
		TrashMetadataID: &trashMetadataID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.commitMutation(ctx, f, nasObj, event); err != nil {
		return nil, err
	}
	e.enqueueSync(ctx, f.ID, event)
	return f, nil
}

// Restore implements spec §4.5's restore producer side: move a
// TRASHED file back to ACTIVE, recovering the trashMetadataId the
// original trash SyncEvent minted so the worker can reverse
// TrashObjectKey.
func (e *Engine) Restore(ctx context.Context, fileID string) (*domain.File, error) {
	f, err := e.Metadata.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if f.State != domain.FileTrashed {
		return nil, apperr.New(apperr.ErrInvalidArgument, "file is not in trash")
	}

	nasObj, err := e.Metadata.GetStorageObject(ctx, fileID, domain.TierNAS)
	if err != nil {
		return nil, err
	}
	if nasObj.MutationBlocked() {
		return nil, apperr.Syncing(fileID)
	}

	trashEvent, err := e.Metadata.GetLatestSyncEvent(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if trashEvent.TrashMetadataID == nil {
		return nil, apperr.New(apperr.ErrInvalidArgument, "no trash record found for file")
	}

	now := e.Now()
	f.State = domain.FileActive
	f.UpdatedAt = now

	event := &domain.SyncEvent{
		ID:              e.NewID(),
		FileID:          f.ID,
		EventType:       domain.SyncRestore,
		Status:          domain.SyncPending,
		MaxRetries:      domain.DefaultMaxRetries,
		TrashMetadataID: trashEvent.TrashMetadataID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.commitMutation(ctx, f, nasObj, event); err != nil {
		return nil, err
	}
	e.enqueueSync(ctx, f.ID, event)
	return f, nil
}

// Purge implements spec §4.5's purge producer side: queue the
// irreversible NAS+cache delete for a TRASHED file. The File itself is
// flipped to DELETED by the sync worker once both tiers are cleaned up
// (handlePurge), not here, so a crash between commit and the worker
// picking up the job leaves the file visibly TRASHED rather than
// silently gone.
func (e *Engine) Purge(ctx context.Context, fileID string) error {
	f, err := e.Metadata.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f.State != domain.FileTrashed {
		return apperr.New(apperr.ErrInvalidArgument, "only a trashed file can be purged")
	}

	nasObj, err := e.Metadata.GetStorageObject(ctx, fileID, domain.TierNAS)
	if err != nil {
		return err
	}
	if nasObj.MutationBlocked() {
		return apperr.Syncing(fileID)
	}

	now := e.Now()
	event := &domain.SyncEvent{
		ID:         e.NewID(),
		FileID:     f.ID,
		EventType:  domain.SyncPurge,
		Status:     domain.SyncPending,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	nasObj.AvailabilityStatus = domain.Syncing
	tx, txMeta, err := e.Metadata.Begin(ctx)
	if err != nil {
		return err
	}
	if err := txMeta.UpsertStorageObject(ctx, nasObj); err != nil {
		e.rollback(ctx, tx, err)
		return err
	}
	if err := txMeta.CreateSyncEvent(ctx, event); err != nil {
		e.rollback(ctx, tx, err)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	e.enqueueSync(ctx, f.ID, event)
	return nil
}

// commitMutation persists f's update, flips nasObj to SYNCING so
// concurrent mutations/downloads see the file as busy, and creates the
// PENDING SyncEvent, all in one transaction.
func (e *Engine) commitMutation(ctx context.Context, f *domain.File, nasObj *domain.StorageObject, event *domain.SyncEvent) error {
	nasObj.AvailabilityStatus = domain.Syncing

	tx, txMeta, err := e.Metadata.Begin(ctx)
	if err != nil {
		return err
	}
	if err := txMeta.UpdateFile(ctx, f); err != nil {
		e.rollback(ctx, tx, err)
		return err
	}
	if err := txMeta.UpsertStorageObject(ctx, nasObj); err != nil {
		e.rollback(ctx, tx, err)
		return err
	}
	if err := txMeta.CreateSyncEvent(ctx, event); err != nil {
		e.rollback(ctx, tx, err)
		return err
	}
	return tx.Commit(ctx)
}

func (e *Engine) rollback(ctx context.Context, tx ports.Transaction, cause error) {
	if err := tx.Rollback(ctx); err != nil {
		logger.Error("failed to roll back fileops transaction", "error", err, "cause", cause)
	}
}

// enqueueSync hands the NAS mutation off to the sync worker's queue,
// mirroring pkg/upload's enqueueSync exactly: a failure here just
// leaves the SyncEvent PENDING for a later retry, so it's logged, not
// propagated.
func (e *Engine) enqueueSync(ctx context.Context, fileID string, event *domain.SyncEvent) {
	payload := domain.SyncJobPayload{FileID: fileID, Action: string(event.EventType), SyncEventID: event.ID}
	if _, err := e.Queue.Add(ctx, "NAS_FILE_SYNC", payload.Marshal(), ports.JobOptions{JobID: event.ID}); err != nil {
		logger.Error("failed to enqueue NAS sync job", "fileId", fileID, "syncEventId", event.ID, "error", err)
		return
	}

	event.Status = domain.SyncQueued
	event.UpdatedAt = e.Now()
	if err := e.Metadata.UpdateSyncEvent(ctx, event); err != nil {
		logger.Error("failed to mark sync event queued", "syncEventId", event.ID, "error", err)
	}
}
