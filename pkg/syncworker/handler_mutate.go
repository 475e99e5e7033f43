package syncworker

import (
	"context"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
)

// handleRename implements spec §4.5's rename action: move the NAS
// object to a new key that keeps the original's timestamp prefix but
// substitutes the file's current (already-renamed-at-the-metadata-
// layer) name.
func (w *Worker) handleRename(ctx context.Context, event *domain.SyncEvent, nasObj *domain.StorageObject) error {
	f, err := w.Metadata.GetFile(ctx, event.FileID)
	if err != nil {
		return err
	}

	target := domain.RenameObjectKey(nasObj.ObjectKey, f.Name, w.Now())
	if target == nasObj.ObjectKey {
		nasObj.AvailabilityStatus = domain.Available
		return w.Metadata.UpsertStorageObject(ctx, nasObj)
	}

	if err := w.moveIdempotent(ctx, nasObj.ObjectKey, target); err != nil {
		return err
	}

	nasObj.ObjectKey = target
	nasObj.AvailabilityStatus = domain.Available
	return w.Metadata.UpsertStorageObject(ctx, nasObj)
}

// handleMove implements spec §4.5's move action. The objectKey scheme
// this service uses (domain.NASObjectKey) is flat — it carries no
// folder path component, folders being a purely logical grouping over
// FolderID — so there is no physical path to relocate; only the
// destination-folder-still-exists guard and the revert-on-missing-
// folder behavior from the spec apply.
func (w *Worker) handleMove(ctx context.Context, event *domain.SyncEvent, nasObj *domain.StorageObject) error {
	f, err := w.Metadata.GetFile(ctx, event.FileID)
	if err != nil {
		return err
	}

	exists, err := w.Metadata.FolderExists(ctx, f.FolderID)
	if err != nil {
		return err
	}
	if !exists && f.FolderID != domain.RootFolderID && event.OriginalFolderID != nil {
		f.FolderID = *event.OriginalFolderID
		f.UpdatedAt = w.Now()
		if err := w.Metadata.UpdateFile(ctx, f); err != nil {
			return err
		}
	}

	nasObj.AvailabilityStatus = domain.Available
	return w.Metadata.UpsertStorageObject(ctx, nasObj)
}

// handleTrash implements spec §4.5's trash action: refuse while a
// reader holds a lease (retryable — the sync worker's own retry loop
// redelivers it), otherwise move the object under .trash/.
func (w *Worker) handleTrash(ctx context.Context, event *domain.SyncEvent, nasObj *domain.StorageObject) error {
	if nasObj.LeaseCount > 0 {
		return apperr.NewForFile(apperr.ErrFileInUse, "file has active readers", event.FileID)
	}
	if event.TrashMetadataID == nil {
		return apperr.New(apperr.ErrInvalidArgument, "trash sync event missing trashMetadataId")
	}

	trashPath := domain.TrashObjectKey(*event.TrashMetadataID, nasObj.ObjectKey)
	if err := w.moveIdempotent(ctx, nasObj.ObjectKey, trashPath); err != nil {
		return err
	}

	nasObj.ObjectKey = trashPath
	nasObj.AvailabilityStatus = domain.Available
	return w.Metadata.UpsertStorageObject(ctx, nasObj)
}

// handleRestore implements spec §4.5's restore action: move the
// trashed object back out from under .trash/, recovering its
// pre-trash objectKey.
func (w *Worker) handleRestore(ctx context.Context, event *domain.SyncEvent, nasObj *domain.StorageObject) error {
	if event.TrashMetadataID == nil {
		return apperr.New(apperr.ErrInvalidArgument, "restore sync event missing trashMetadataId")
	}

	original := domain.OriginalObjectKeyFromTrash(*event.TrashMetadataID, nasObj.ObjectKey)
	if err := w.moveIdempotent(ctx, nasObj.ObjectKey, original); err != nil {
		return err
	}

	nasObj.ObjectKey = original
	nasObj.AvailabilityStatus = domain.Available
	return w.Metadata.UpsertStorageObject(ctx, nasObj)
}

// handlePurge implements spec §4.5's purge action: best-effort cache
// cleanup (non-fatal), mandatory NAS cleanup (fatal on failure), then
// mark the File DELETED.
func (w *Worker) handlePurge(ctx context.Context, event *domain.SyncEvent, nasObj *domain.StorageObject) error {
	if err := w.Cache.Delete(ctx, event.FileID); err != nil && !isNotFound(err) {
		logger.Error("failed to delete cache blob during purge", "fileId", event.FileID, "error", err)
	}
	if err := w.Metadata.DeleteStorageObject(ctx, event.FileID, domain.TierCache); err != nil && !isNotFound(err) {
		logger.Error("failed to delete cache storage object during purge", "fileId", event.FileID, "error", err)
	}

	if err := w.NAS.Delete(ctx, nasObj.ObjectKey); err != nil && !isNotFound(err) {
		return apperr.NewForFile(apperr.ErrNASReadFailed, "failed to delete NAS object: "+err.Error(), event.FileID)
	}
	if err := w.Metadata.DeleteStorageObject(ctx, event.FileID, domain.TierNAS); err != nil {
		return err
	}

	f, err := w.Metadata.GetFile(ctx, event.FileID)
	if err != nil {
		return err
	}
	f.State = domain.FileDeleted
	f.UpdatedAt = w.Now()
	return w.Metadata.UpdateFile(ctx, f)
}

// moveIdempotent treats a missing source as "already applied" — a
// prior attempt at this same sync event completed the physical move
// but failed before the StorageObject row was updated.
func (w *Worker) moveIdempotent(ctx context.Context, src, dst string) error {
	err := w.NAS.Move(ctx, src, dst)
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		if exists, existsErr := w.NAS.Exists(ctx, dst); existsErr == nil && exists {
			return nil
		}
	}
	return apperr.NewForFile(apperr.ErrNASReadFailed, "failed to move NAS object: "+err.Error(), src)
}
