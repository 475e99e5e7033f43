// Package redislock implements ports.DistributedLock on top of Redis,
// using redsync for the acquire/release/extend protocol the way the
// sync worker needs it: one lock per fileId, auto-renewed while a
// handler runs so it survives longer than its nominal TTL.
package redislock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/ports"
)

const (
	defaultTTL         = 60 * time.Second
	defaultWaitTimeout = 10 * time.Second
	defaultRenewEvery  = 20 * time.Second
)

// Lock implements ports.DistributedLock.
type Lock struct {
	rs *redsync.Redsync
}

// New builds a Lock against an existing Redis client. The client's
// lifecycle (Close) is the caller's responsibility.
func New(client *goredislib.Client) *Lock {
	pool := goredis.NewPool(client)
	return &Lock{rs: redsync.New(pool)}
}

// WithLock acquires "filestore-lock:<key>" and runs fn while holding
// it. When opts.AutoRenew is set, a background goroutine extends the
// lease every opts.RenewInterval (default 20s) until fn returns; if
// the renewer stops (process died, goroutine panicked) the lock
// expires on its own and another worker may take over — handlers must
// therefore be idempotent, per spec §5's re-entrancy requirement.
func (l *Lock) WithLock(ctx context.Context, key string, opts ports.LockOptions, fn func(ctx context.Context) error) error {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	waitTimeout := opts.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}

	mu := l.rs.NewMutex("filestore-lock:"+key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1),
	)

	acquireCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	if err := acquireWithRetry(acquireCtx, mu); err != nil {
		return apperr.New(apperr.ErrFolderSyncInProgress, "could not acquire lock "+key)
	}

	stop := make(chan struct{})
	defer close(stop)

	if opts.AutoRenew {
		interval := opts.RenewInterval
		if interval <= 0 {
			interval = defaultRenewEvery
		}
		go renewLoop(mu, interval, stop)
	}

	fnErr := fn(ctx)

	if _, unlockErr := mu.UnlockContext(ctx); unlockErr != nil && fnErr == nil {
		return unlockErr
	}
	return fnErr
}

// acquireWithRetry polls Lock until it succeeds or acquireCtx expires,
// since redsync.WithTries(1) fails fast rather than blocking.
func acquireWithRetry(acquireCtx context.Context, mu *redsync.Mutex) error {
	backoff := 50 * time.Millisecond
	for {
		err := mu.LockContext(acquireCtx)
		if err == nil {
			return nil
		}
		select {
		case <-acquireCtx.Done():
			return acquireCtx.Err()
		case <-time.After(backoff):
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

func renewLoop(mu *redsync.Mutex, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if ok, err := mu.Extend(); !ok || err != nil {
				return
			}
		}
	}
}

var _ ports.DistributedLock = (*Lock)(nil)

// ErrNotHeld is returned when a caller tries to release a lock it
// never acquired. Currently unused by WithLock (which always pairs
// acquire/release internally) but kept for adapters that expose
// manual acquire/release in the future.
var ErrNotHeld = errors.New("redislock: lock not held")
