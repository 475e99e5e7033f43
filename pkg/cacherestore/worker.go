// Package cacherestore implements spec §4.6: the NAS-to-cache
// promotion worker that repopulates an evicted or never-cached file on
// a download-triggered cache miss.
package cacherestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

const (
	queueName = "CACHE_RESTORE"

	lockTTL = 120 * time.Second
)

// Config carries the cache-restore worker's concurrency, the
// worker-facing slice of config.Config's CacheRestore section.
type Config struct {
	Concurrency int
}

// Job is the payload a download handler enqueues on a cache miss.
type Job struct {
	FileID string `json:"fileId"`
}

// Marshal encodes j for JobQueue.Add.
func (j Job) Marshal() []byte {
	data, _ := json.Marshal(j)
	return data
}

// Worker drains CACHE_RESTORE and promotes NAS objects back into the
// cache tier, one file at a time per fileId.
type Worker struct {
	Metadata ports.MetadataStore
	Cache    ports.CacheStore
	NAS      ports.NASStore
	Lock     ports.DistributedLock
	Queue    ports.JobQueue
	Config   Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New constructs a Worker.
func New(metadata ports.MetadataStore, cache ports.CacheStore, nas ports.NASStore, lock ports.DistributedLock, queue ports.JobQueue, cfg Config) *Worker {
	return &Worker{
		Metadata: metadata,
		Cache:    cache,
		NAS:      nas,
		Lock:     lock,
		Queue:    queue,
		Config:   cfg,
	}
}

// Enqueue schedules a cache-restore attempt for fileId, deduplicated by
// the queue via JobID == the lock key.
func Enqueue(ctx context.Context, queue ports.JobQueue, fileID string) error {
	key := "cache-restore:" + fileID
	_, err := queue.Add(ctx, queueName, Job{FileID: fileID}.Marshal(), ports.JobOptions{JobID: key})
	return err
}

// Start begins consuming CACHE_RESTORE in the background. A no-op if
// already started.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.stopped = make(chan struct{})
	w.mu.Unlock()

	concurrency := w.Config.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	logger.Info("starting cache restore worker", "queue", queueName, "concurrency", concurrency)

	go func() {
		defer close(w.stopped)
		if err := w.Queue.Process(runCtx, queueName, w.handle, ports.ProcessOptions{Concurrency: concurrency}); err != nil {
			logger.Error("cache restore worker stopped", "error", err)
		}
	}()
}

// Stop signals the worker to stop consuming and waits up to timeout
// for it to drain in-flight jobs.
func (w *Worker) Stop(timeout time.Duration) {
	w.mu.Lock()
	cancel := w.cancel
	stopped := w.stopped
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-stopped:
		logger.Info("cache restore worker stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("cache restore worker stop timed out")
	}
}

func (w *Worker) handle(ctx context.Context, job ports.Job) error {
	var payload Job
	if err := json.Unmarshal(job.Data, &payload); err != nil {
		logger.Error("malformed cache restore job payload", "jobId", job.ID, "error", err)
		return nil
	}

	lockKey := "cache-restore:" + payload.FileID
	return w.Lock.WithLock(ctx, lockKey, ports.LockOptions{TTL: lockTTL}, func(ctx context.Context) error {
		return w.restore(ctx, payload.FileID)
	})
}

// restore implements spec §4.6's algorithm.
func (w *Worker) restore(ctx context.Context, fileID string) error {
	cacheExists, err := w.Cache.Exists(ctx, fileID)
	if err != nil {
		return err
	}

	cacheObj, cacheErr := w.Metadata.GetStorageObject(ctx, fileID, domain.TierCache)
	cacheRowExists := cacheErr == nil

	if cacheExists && cacheRowExists && cacheObj.AvailabilityStatus == domain.Available {
		return nil // already promoted
	}

	if cacheExists {
		return w.flipCacheAvailable(ctx, fileID, cacheObj, cacheRowExists)
	}

	nasObj, err := w.Metadata.GetStorageObject(ctx, fileID, domain.TierNAS)
	if err != nil || nasObj.AvailabilityStatus != domain.Available {
		logger.Warn("skipping cache restore: NAS object not available", "fileId", fileID)
		return nil
	}

	if err := w.streamNASToCache(ctx, fileID, nasObj, cacheObj, cacheRowExists); err != nil {
		return err
	}
	return nil
}

// flipCacheAvailable handles step 2: the cache blob already exists but
// its row is missing or stale.
func (w *Worker) flipCacheAvailable(ctx context.Context, fileID string, cacheObj *domain.StorageObject, rowExists bool) error {
	if !rowExists {
		cacheObj = &domain.StorageObject{ID: fileID, FileID: fileID, Tier: domain.TierCache, ObjectKey: fileID}
	}
	cacheObj.ObjectKey = fileID
	cacheObj.AvailabilityStatus = domain.Available
	return w.Metadata.UpsertStorageObject(ctx, cacheObj)
}

// streamNASToCache implements steps 4-6: copy NAS -> Cache, verify
// size, flip the CACHE row.
func (w *Worker) streamNASToCache(ctx context.Context, fileID string, nasObj, cacheObj *domain.StorageObject, cacheRowExists bool) error {
	r, err := w.NAS.StreamRead(ctx, nasObj.ObjectKey)
	if err != nil {
		return apperr.NewForFile(apperr.ErrNASReadFailed, "failed to read NAS object: "+err.Error(), fileID)
	}
	defer r.Close()

	if _, err := w.Cache.StreamWrite(ctx, fileID, r); err != nil {
		w.failRestore(ctx, fileID, cacheObj, cacheRowExists)
		return apperr.NewForFile(apperr.ErrCacheReadFailed, "failed to write cache object: "+err.Error(), fileID)
	}

	if ok := w.verifySize(ctx, fileID, nasObj.ObjectKey); !ok {
		w.failRestore(ctx, fileID, cacheObj, cacheRowExists)
		return apperr.NewForFile(apperr.ErrCacheReadFailed, "cache/NAS size mismatch after restore", fileID)
	}

	if !cacheRowExists {
		cacheObj = &domain.StorageObject{ID: fileID, FileID: fileID, Tier: domain.TierCache}
	}
	cacheObj.ObjectKey = fileID
	cacheObj.AvailabilityStatus = domain.Available
	cacheObj.Checksum = nasObj.Checksum
	return w.Metadata.UpsertStorageObject(ctx, cacheObj)
}

// verifySize compares cache and NAS object sizes, skipping the check
// (logging, not failing) if either size can't be obtained.
func (w *Worker) verifySize(ctx context.Context, fileID, nasObjectKey string) bool {
	cacheSize, cacheErr := w.Cache.Size(ctx, fileID)
	nasSize, nasErr := w.NAS.Size(ctx, nasObjectKey)
	if cacheErr != nil || nasErr != nil {
		logger.Warn("skipping cache restore size verification", "fileId", fileID, "cacheErr", cacheErr, "nasErr", nasErr)
		return true
	}
	return cacheSize == nasSize
}

func (w *Worker) failRestore(ctx context.Context, fileID string, cacheObj *domain.StorageObject, cacheRowExists bool) {
	if err := w.Cache.Delete(ctx, fileID); err != nil {
		logger.Error("failed to delete partial cache blob after restore failure", "fileId", fileID, "error", err)
	}
	if !cacheRowExists {
		cacheObj = &domain.StorageObject{ID: fileID, FileID: fileID, Tier: domain.TierCache, ObjectKey: fileID}
	}
	cacheObj.AvailabilityStatus = domain.Missing
	if err := w.Metadata.UpsertStorageObject(ctx, cacheObj); err != nil {
		logger.Error("failed to flip cache row to MISSING after restore failure", "fileId", fileID, "error", err)
	}
}
