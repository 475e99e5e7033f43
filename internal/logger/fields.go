package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so logs aggregate and query cleanly.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Operation identity
	// ========================================================================
	KeyOperation = "operation" // upload, download, rename, move, trash, restore, purge, ...
	KeyFileID    = "file_id"   // File identifier
	KeyFolderID  = "folder_id" // Folder identifier
	KeyUserID    = "user_id"   // Requesting user id
	KeyFileName  = "file_name" // File basename
	KeyMimeType  = "mime_type" // File MIME type
	KeySize      = "size"      // File/part size in bytes

	// ========================================================================
	// Upload sessions & parts
	// ========================================================================
	KeySessionID   = "session_id"    // UploadSession identifier
	KeyPartNumber  = "part_number"   // UploadPart sequence number
	KeyPartCount   = "part_count"    // Total expected parts
	KeyConflict    = "conflict_mode" // Conflict resolution strategy applied

	// ========================================================================
	// Storage tiers
	// ========================================================================
	KeyTier         = "tier"          // cache or nas
	KeyAvailability = "availability"  // AVAILABLE, SYNCING, MISSING, EVICTING, ERROR
	KeyObjectKey    = "object_key"    // NAS/cache object key
	KeyLeaseCount   = "lease_count"   // Active reader lease count

	// ========================================================================
	// Sync pipeline
	// ========================================================================
	KeySyncEventID = "sync_event_id" // SyncEvent identifier
	KeySyncAction  = "sync_action"   // upload, rename, move, trash, restore, purge
	KeyLockKey     = "lock_key"      // Distributed lock key (file-sync:<fileId>)

	// ========================================================================
	// Admission / virtual queue
	// ========================================================================
	KeyTicketID     = "ticket_id"      // QueueTicket identifier
	KeyTicketStatus = "ticket_status"  // WAITING, READY, ACTIVE
	KeyQueuePos     = "queue_position" // Position in the FIFO queue

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // Byte offset for range reads/writes
	KeyRangeStart   = "range_start"   // Range request start
	KeyRangeEnd     = "range_end"     // Range request end
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyRequestID  = "request_id"  // HTTP request id

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Typed error code
	KeySource     = "source"      // Data source: cache, nas, metadata_store
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheHit = "cache_hit" // Cache hit indicator

	// ========================================================================
	// Metadata / Job Queue
	// ========================================================================
	KeyMetadataStore = "metadata_store" // Metadata store backend name
	KeyJobID         = "job_id"         // Job queue entry identifier
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// ----------------------------------------------------------------------------
// Operation identity
// ----------------------------------------------------------------------------

// Operation returns a slog.Attr for the operation being performed
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// FileID returns a slog.Attr for a file identifier
func FileID(id string) slog.Attr {
	return slog.String(KeyFileID, id)
}

// FolderID returns a slog.Attr for a folder identifier
func FolderID(id string) slog.Attr {
	return slog.String(KeyFolderID, id)
}

// UserID returns a slog.Attr for a user identifier
func UserID(id string) slog.Attr {
	return slog.String(KeyUserID, id)
}

// FileName returns a slog.Attr for a file basename
func FileName(name string) slog.Attr {
	return slog.String(KeyFileName, name)
}

// MimeType returns a slog.Attr for a MIME type
func MimeType(mt string) slog.Attr {
	return slog.String(KeyMimeType, mt)
}

// Size returns a slog.Attr for a size in bytes
func Size(s int64) slog.Attr {
	return slog.Int64(KeySize, s)
}

// ----------------------------------------------------------------------------
// Upload sessions & parts
// ----------------------------------------------------------------------------

// SessionID returns a slog.Attr for an upload session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// PartNumber returns a slog.Attr for an upload part sequence number
func PartNumber(n int) slog.Attr {
	return slog.Int(KeyPartNumber, n)
}

// PartCount returns a slog.Attr for the total expected part count
func PartCount(n int) slog.Attr {
	return slog.Int(KeyPartCount, n)
}

// ConflictMode returns a slog.Attr for the conflict resolution strategy applied
func ConflictMode(mode string) slog.Attr {
	return slog.String(KeyConflict, mode)
}

// ----------------------------------------------------------------------------
// Storage tiers
// ----------------------------------------------------------------------------

// Tier returns a slog.Attr for a storage tier (cache, nas)
func Tier(t string) slog.Attr {
	return slog.String(KeyTier, t)
}

// Availability returns a slog.Attr for a StorageObject availability status
func Availability(status string) slog.Attr {
	return slog.String(KeyAvailability, status)
}

// ObjectKey returns a slog.Attr for a NAS/cache object key
func ObjectKey(key string) slog.Attr {
	return slog.String(KeyObjectKey, key)
}

// LeaseCount returns a slog.Attr for the active reader lease count
func LeaseCount(n int) slog.Attr {
	return slog.Int(KeyLeaseCount, n)
}

// ----------------------------------------------------------------------------
// Sync pipeline
// ----------------------------------------------------------------------------

// SyncEventID returns a slog.Attr for a sync event identifier
func SyncEventID(id string) slog.Attr {
	return slog.String(KeySyncEventID, id)
}

// SyncAction returns a slog.Attr for the sync action (upload, rename, ...)
func SyncAction(action string) slog.Attr {
	return slog.String(KeySyncAction, action)
}

// LockKey returns a slog.Attr for a distributed lock key
func LockKey(key string) slog.Attr {
	return slog.String(KeyLockKey, key)
}

// ----------------------------------------------------------------------------
// Admission / virtual queue
// ----------------------------------------------------------------------------

// TicketID returns a slog.Attr for a queue ticket identifier
func TicketID(id string) slog.Attr {
	return slog.String(KeyTicketID, id)
}

// TicketStatus returns a slog.Attr for a queue ticket status
func TicketStatus(status string) slog.Attr {
	return slog.String(KeyTicketStatus, status)
}

// QueuePosition returns a slog.Attr for a ticket's FIFO position
func QueuePosition(pos int) slog.Attr {
	return slog.Int(KeyQueuePos, pos)
}

// ----------------------------------------------------------------------------
// I/O Operations
// ----------------------------------------------------------------------------

// Offset returns a slog.Attr for a byte offset
func Offset(off int64) slog.Attr {
	return slog.Int64(KeyOffset, off)
}

// RangeStart returns a slog.Attr for a range request start
func RangeStart(off int64) slog.Attr {
	return slog.Int64(KeyRangeStart, off)
}

// RangeEnd returns a slog.Attr for a range request end
func RangeEnd(off int64) slog.Attr {
	return slog.Int64(KeyRangeEnd, off)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int64) slog.Attr {
	return slog.Int64(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int64) slog.Attr {
	return slog.Int64(KeyBytesWritten, n)
}

// ----------------------------------------------------------------------------
// Client Identification
// ----------------------------------------------------------------------------

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// RequestID returns a slog.Attr for an HTTP request id
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a typed error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Source returns a slog.Attr for data source
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ----------------------------------------------------------------------------
// Cache Layer
// ----------------------------------------------------------------------------

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// ----------------------------------------------------------------------------
// Metadata / Job Queue
// ----------------------------------------------------------------------------

// MetadataStore returns a slog.Attr for the metadata store backend name
func MetadataStore(name string) slog.Attr {
	return slog.String(KeyMetadataStore, name)
}

// JobID returns a slog.Attr for a job queue entry identifier
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}
