package fileops

import (
	"context"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// validateTargetFolder requires folderID to exist, raising the
// move-specific TARGET_FOLDER_NOT_FOUND code rather than upload's
// generic FOLDER_NOT_FOUND (spec §6's error table distinguishes them).
func validateTargetFolder(ctx context.Context, metadata ports.MetadataStore, folderID string) error {
	if folderID == domain.RootFolderID {
		return nil
	}
	exists, err := metadata.FolderExists(ctx, folderID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.New(apperr.ErrTargetFolderNotFound, "target folder not found")
	}
	return nil
}

func isFileNotFound(err error) bool {
	code, ok := apperr.CodeOf(err)
	return ok && code == apperr.ErrFileNotFound
}

func conflictStrategyOrDefault(s domain.ConflictStrategy) domain.ConflictStrategy {
	if s == "" {
		return domain.ConflictError
	}
	return s
}

// lookupDuplicate reports whether a file named name already exists in
// folderID, distinct from selfID (renaming/moving a file onto its own
// current name/folder is never a conflict with itself).
func lookupDuplicate(ctx context.Context, metadata ports.MetadataStore, folderID, name, selfID string) (*domain.File, error) {
	existing, err := metadata.GetFileByPath(ctx, folderID, name)
	if err != nil {
		if isFileNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if existing.ID == selfID {
		return nil, nil
	}
	return existing, nil
}
