package domain

import (
	"fmt"
	"time"
)

// ConflictStrategy controls how an upload resolves a name collision
// within the destination folder.
type ConflictStrategy string

const (
	ConflictError    ConflictStrategy = "ERROR"
	ConflictRename   ConflictStrategy = "RENAME"
	ConflictSkip     ConflictStrategy = "SKIP"
	ConflictOverwrite ConflictStrategy = "OVERWRITE"
)

// SessionStatus is the lifecycle state of an UploadSession.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleting SessionStatus = "COMPLETING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionAborted   SessionStatus = "ABORTED"
	SessionExpired   SessionStatus = "EXPIRED"
)

// UploadSession tracks a multipart upload in progress.
type UploadSession struct {
	ID               string
	FileName         string
	FolderID         string
	TotalSize        int64
	MimeType         string
	PartSize         int64
	TotalParts       int
	CompletedParts   map[int]bool
	UploadedBytes    int64
	Status           SessionStatus
	ConflictStrategy ConflictStrategy
	ExpiresAt        time.Time
	FileID           string // set once Status == SessionCompleted
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TotalPartsFor computes ceil(totalSize / partSize).
func TotalPartsFor(totalSize, partSize int64) int {
	if partSize <= 0 {
		return 0
	}
	n := totalSize / partSize
	if totalSize%partSize != 0 {
		n++
	}
	return int(n)
}

// CanTransitionTo reports whether moving from s.Status to next is legal.
func (s *UploadSession) CanTransitionTo(next SessionStatus) bool {
	switch s.Status {
	case SessionActive:
		return next == SessionCompleting || next == SessionAborted || next == SessionExpired
	case SessionCompleting:
		return next == SessionCompleted || next == SessionAborted
	default:
		return false // terminal states are sticky
	}
}

// IsComplete reports whether every part 1..TotalParts has been recorded.
func (s *UploadSession) IsComplete() bool {
	if len(s.CompletedParts) != s.TotalParts {
		return false
	}
	for i := 1; i <= s.TotalParts; i++ {
		if !s.CompletedParts[i] {
			return false
		}
	}
	return true
}

// PartObjectKey is the cache-tier key a multipart part is staged
// under (spec §4.3): multipart/<sessionId>/part_<5-digit>. Shared by
// pkg/upload (writer) and pkg/syncworker (reader, for parts→file
// concatenation).
func PartObjectKey(sessionID string, partNumber int) string {
	return fmt.Sprintf("multipart/%s/part_%05d", sessionID, partNumber)
}

// UploadPart is a single part of a multipart upload, stored in the
// cache tier until the session completes.
type UploadPart struct {
	SessionID   string
	PartNumber  int
	Size        int64
	ObjectKey   string
	ETag        string // MD5 hex
	CompletedAt time.Time
}
