package ports

import (
	"context"
	"time"
)

// LockOptions configures a single WithLock call.
type LockOptions struct {
	// TTL is the lock's lease duration; it expires automatically if the
	// holder dies without releasing it.
	TTL time.Duration

	// WaitTimeout bounds how long WithLock blocks trying to acquire the
	// lock before giving up.
	WaitTimeout time.Duration

	// AutoRenew extends the lease in the background for the duration of
	// fn, so a slow sync handler doesn't lose the lock mid-flight.
	AutoRenew     bool
	RenewInterval time.Duration
}

// DistributedLock serializes mutations to the same fileId across
// process instances. The sync worker acquires "file-sync:<fileId>"
// before running a handler so CREATE/RENAME/MOVE/TRASH/RESTORE/PURGE
// against one file never race each other.
type DistributedLock interface {
	// WithLock runs fn while holding key, releasing it when fn returns
	// (or panics). It returns fn's error, or a lock-acquisition error if
	// the lock could not be obtained within WaitTimeout.
	WithLock(ctx context.Context, key string, opts LockOptions, fn func(ctx context.Context) error) error
}
