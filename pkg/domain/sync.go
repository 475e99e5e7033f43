package domain

import "time"

// SyncEventType identifies which file mutation a SyncEvent propagates
// to the NAS tier.
type SyncEventType string

const (
	SyncCreate  SyncEventType = "CREATE"
	SyncRename  SyncEventType = "RENAME"
	SyncMove    SyncEventType = "MOVE"
	SyncTrash   SyncEventType = "TRASH"
	SyncRestore SyncEventType = "RESTORE"
	SyncPurge   SyncEventType = "PURGE"
)

// SyncStatus is the lifecycle state of a SyncEvent.
type SyncStatus string

const (
	SyncPending    SyncStatus = "PENDING"
	SyncQueued     SyncStatus = "QUEUED"
	SyncProcessing SyncStatus = "PROCESSING"
	SyncDone       SyncStatus = "DONE"
	SyncFailed     SyncStatus = "FAILED"
)

// DefaultMaxRetries is the default retry budget for a SyncEvent.
const DefaultMaxRetries = 3

// SyncEvent records one queued mutation against a file's NAS object.
//
// The three pointer fields carry event-type-specific context a generic
// fileId/action payload can't: MultipartSessionID tells the upload
// handler to compose the NAS object from parts instead of a cache
// blob, TrashMetadataID names the .trash/<id>__ prefix for trash/
// restore, and OriginalFolderID is the move handler's revert target if
// the destination folder is gone by the time the job runs.
type SyncEvent struct {
	ID           string
	FileID       string
	EventType    SyncEventType
	SourcePath   string
	TargetPath   string
	Status       SyncStatus
	RetryCount   int
	MaxRetries   int
	ErrorMessage *string

	MultipartSessionID *string
	TrashMetadataID    *string
	OriginalFolderID   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanTransitionTo reports whether moving from e.Status to next is legal.
func (e *SyncEvent) CanTransitionTo(next SyncStatus) bool {
	switch e.Status {
	case SyncPending:
		return next == SyncQueued
	case SyncQueued:
		return next == SyncProcessing
	case SyncProcessing:
		return next == SyncDone || next == SyncPending || next == SyncFailed
	default:
		return false // DONE and FAILED are terminal
	}
}

// ExhaustedRetries reports whether another retry attempt is permitted.
func (e *SyncEvent) ExhaustedRetries() bool {
	return e.RetryCount >= e.MaxRetries
}
