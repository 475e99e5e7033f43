// Package ports declares the interfaces every core component depends on.
// Concrete adapters live under pkg/storage, pkg/lock, pkg/queue and
// pkg/progress; components accept these interfaces via constructor
// injection and never reach for a concrete adapter type directly.
package ports

import (
	"context"
	"io"
)

// CacheStore is the fast tier: local disk or an S3-compatible bucket
// fronting the slow NAS. Every method is keyed by objectKey, the same
// key space used by NASStore.
type CacheStore interface {
	// Write stores the full object in one call.
	Write(ctx context.Context, objectKey string, data []byte) error

	// StreamWrite stores an object from a reader without buffering the
	// whole payload in memory.
	StreamWrite(ctx context.Context, objectKey string, r io.Reader) (int64, error)

	// Read returns the full object.
	Read(ctx context.Context, objectKey string) ([]byte, error)

	// StreamRead opens the object for sequential reading. Callers must
	// close the returned reader.
	StreamRead(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// RangeStreamRead opens the object starting at offset, for length
	// bytes. length < 0 means "to end of object".
	RangeStreamRead(ctx context.Context, objectKey string, offset, length int64) (io.ReadCloser, error)

	Delete(ctx context.Context, objectKey string) error
	Exists(ctx context.Context, objectKey string) (bool, error)
	Move(ctx context.Context, srcKey, dstKey string) error
	Size(ctx context.Context, objectKey string) (int64, error)

	// Rmdir removes an empty prefix/directory. A no-op for adapters
	// without a real directory hierarchy (e.g. flat S3 buckets).
	Rmdir(ctx context.Context, prefix string) error
}

// NASStore is the slow, durable tier. It carries everything CacheStore
// does plus preallocation and chunked writes for the parallel large-file
// upload path, and folder operations that mirror the metadata tree.
type NASStore interface {
	CacheStore

	// Preallocate reserves size bytes at objectKey before concurrent
	// chunk writes begin, so each chunk can seek independently.
	Preallocate(ctx context.Context, objectKey string, size int64) error

	// ChunkWrite writes bytes at offset into a preallocated object.
	ChunkWrite(ctx context.Context, objectKey string, data []byte, offset int64) error

	CreateFolder(ctx context.Context, path string) error
	DeleteFolder(ctx context.Context, path string) error
	MoveFolder(ctx context.Context, srcPath, dstPath string) error
}
