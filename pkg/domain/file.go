// Package domain holds the core data model: File, StorageObject,
// UploadSession, UploadPart, SyncEvent, QueueTicket, and ProgressRecord.
package domain

import (
	"path"
	"strings"
	"time"
)

// FileState is the lifecycle state of a File.
type FileState string

const (
	FileActive  FileState = "ACTIVE"
	FileTrashed FileState = "TRASHED"
	FileDeleted FileState = "DELETED"
)

// File is the metadata record for a stored object. Its name is never
// mutated after creation except via Rename, which preserves the
// extension. State transitions form a DAG:
// ACTIVE -> TRASHED -> {ACTIVE (restore), DELETED (purge)}.
// Once DELETED no further mutation is permitted.
type File struct {
	ID        string
	Name      string
	FolderID  string
	SizeBytes int64
	MimeType  string
	State     FileState
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Extension returns the file's extension, derived (never stored) from
// Name via path.Ext, lower-cased for comparison purposes only.
func (f *File) Extension() string {
	return strings.ToLower(path.Ext(f.Name))
}

// CanTransitionTo reports whether moving from f.State to next is a legal
// File state transition.
func (f *File) CanTransitionTo(next FileState) bool {
	switch f.State {
	case FileActive:
		return next == FileTrashed
	case FileTrashed:
		return next == FileActive || next == FileDeleted
	case FileDeleted:
		return false
	default:
		return false
	}
}

// SameExtension reports whether two file names have the same extension
// under case-insensitive comparison, the invariant Rename must preserve.
func SameExtension(oldName, newName string) bool {
	return strings.ToLower(path.Ext(oldName)) == strings.ToLower(path.Ext(newName))
}
