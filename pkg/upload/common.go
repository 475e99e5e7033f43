package upload

import (
	"context"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

// validateFolder requires folderID to already exist, unless it is the
// implicit root folder (which always exists).
func validateFolder(ctx context.Context, metadata ports.MetadataStore, folderID string) error {
	if folderID == domain.RootFolderID {
		return nil
	}
	exists, err := metadata.FolderExists(ctx, folderID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.FolderNotFound(folderID)
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

// CleanupParts best-effort deletes every cache-tier part blob for a
// session plus its part rows. Used by Abort, by the sync worker once
// it has concatenated parts into the merged cache blob, and by the
// orphan cleaner for expired/stuck sessions.
func CleanupParts(ctx context.Context, metadata ports.MetadataStore, cache ports.CacheStore, sessionID string) {
	parts, err := metadata.ListUploadParts(ctx, sessionID)
	if err != nil {
		logger.Error("failed to list parts for cleanup", "sessionId", sessionID, "error", err)
		return
	}
	for _, p := range parts {
		if err := cache.Delete(ctx, p.ObjectKey); err != nil {
			logger.Error("failed to delete part blob", "sessionId", sessionID, "partNumber", p.PartNumber, "error", err)
		}
	}
	if err := metadata.DeleteUploadParts(ctx, sessionID); err != nil {
		logger.Error("failed to delete part rows", "sessionId", sessionID, "error", err)
	}
}
