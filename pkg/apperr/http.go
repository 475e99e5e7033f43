package apperr

import "net/http"

// HTTPStatus maps an error Code to the HTTP status code the glue layer
// should respond with, per spec §7's disposition column.
func (c Code) HTTPStatus() int {
	switch c {
	case ErrInvalidFileName, ErrFileExtensionChangeNotAllowed, ErrFileTooLarge,
		ErrFileTooSmallForMultipart, ErrInvalidRange, ErrInvalidArgument, ErrInvalidPartNumber:
		return http.StatusBadRequest
	case ErrFileNotFound, ErrFileInTrash, ErrFileDeleted, ErrFolderNotFound, ErrRootFolderNotFound, ErrSessionNotFound, ErrTargetFolderNotFound:
		return http.StatusNotFound
	case ErrFileSyncing, ErrFileInUse, ErrFileAlreadyTrashed, ErrFolderSyncInProgress,
		ErrSessionExpired, ErrSessionAlreadyCompleted, ErrSessionAborted,
		ErrIncompleteParts, ErrPartMismatch, ErrDuplicateFileExists, ErrAdmissionQueueFull:
		return http.StatusConflict
	case ErrFileStorageUnavailable, ErrFileNotFoundInStorage, ErrCacheReadFailed,
		ErrNASReadFailed, ErrFolderSyncFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
