// Package syncworker implements spec §4.5: the per-file NAS sync
// pipeline. A single NAS_FILE_SYNC queue carries one job per SyncEvent;
// the worker serializes all mutation against a given fileId behind a
// distributed lock, dispatches by action, and retries with backoff
// until the event's retry budget is exhausted.
package syncworker

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/apperr"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
)

const (
	queueName = "NAS_FILE_SYNC"

	lockTTL         = 60 * time.Second
	lockWaitTimeout = 30 * time.Second
	lockRenewEvery  = 25 * time.Second
)

// Config carries the sync worker's size thresholds and concurrency,
// the worker-facing slice of config.Config's Sync section.
type Config struct {
	Concurrency                  int
	ParallelUploadThresholdBytes int64
	ParallelUploadChunkBytes     int64
	ParallelUploadChunks         int
	MaxRetries                   int
	ProgressLogIntervalPercent   int
}

// Worker drains NAS_FILE_SYNC and applies queued mutations to the NAS
// tier, one file at a time per fileId.
type Worker struct {
	Metadata ports.MetadataStore
	Cache    ports.CacheStore
	NAS      ports.NASStore
	Lock     ports.DistributedLock
	Queue    ports.JobQueue
	Progress ports.ProgressStore
	Config   Config

	Now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New constructs a Worker with the real clock.
func New(metadata ports.MetadataStore, cache ports.CacheStore, nas ports.NASStore, lock ports.DistributedLock, queue ports.JobQueue, progress ports.ProgressStore, cfg Config) *Worker {
	return &Worker{
		Metadata: metadata,
		Cache:    cache,
		NAS:      nas,
		Lock:     lock,
		Queue:    queue,
		Progress: progress,
		Config:   cfg,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start begins consuming NAS_FILE_SYNC in the background. It is a
// no-op if already started.
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
		concurrency = 5
	}

	logger.Info("starting sync worker", "queue", queueName, "concurrency", concurrency)

	go func() {
		defer close(w.stopped)
		if err := w.Queue.Process(runCtx, queueName, w.handle, ports.ProcessOptions{Concurrency: concurrency}); err != nil {
			logger.Error("sync worker stopped", "error", err)
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
		logger.Info("sync worker stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("sync worker stop timed out")
	}
}

// handle implements ports.JobHandler for the NAS_FILE_SYNC queue.
func (w *Worker) handle(ctx context.Context, job ports.Job) error {
	payload, err := domain.UnmarshalSyncJobPayload(job.Data)
	if err != nil {
		logger.Error("malformed sync job payload", "jobId", job.ID, "error", err)
		return nil // a malformed payload will never succeed; don't retry forever
	}

	lockKey := "file-sync:" + payload.FileID
	return w.Lock.WithLock(ctx, lockKey, ports.LockOptions{
		TTL:           lockTTL,
		WaitTimeout:   lockWaitTimeout,
		AutoRenew:     true,
		RenewInterval: lockRenewEvery,
	}, func(ctx context.Context) error {
		return w.processEvent(ctx, payload)
	})
}

// processEvent runs one SyncEvent to completion or failure. Business
// outcomes (handler errors, retry exhaustion) are fully absorbed into
// the SyncEvent's own state and reported back as nil: the domain model
// is the single source of truth for whether a mutation should be
// retried, not the queue's transport-level redelivery. Only failures
// to even start the attempt (event/lock infrastructure) propagate, so
// the queue's own backoff redelivers those.
func (w *Worker) processEvent(ctx context.Context, payload domain.SyncJobPayload) error {
	event, err := w.loadEventForProcessing(ctx, payload)
	if err != nil {
		return err
	}
	if event == nil {
		return nil // already terminal, nothing to do
	}

	nasObj, err := w.Metadata.GetStorageObject(ctx, payload.FileID, domain.TierNAS)
	if err != nil {
		if isNotFound(err) {
			w.markDone(ctx, event)
			return nil
		}
		return err
	}

	handlerErr := w.dispatch(ctx, event, nasObj)
	if handlerErr == nil {
		w.markDone(ctx, event)
		return nil
	}

	logger.Error("sync handler failed", "syncEventId", event.ID, "fileId", payload.FileID, "action", payload.Action, "error", handlerErr)
	w.retryOrFail(ctx, event, handlerErr)
	return nil
}

// loadEventForProcessing loads the SyncEvent and transitions it
// PENDING/QUEUED -> PROCESSING. It returns (nil, nil) if the event is
// already in a terminal state (a stale redelivery of an already-done
// job), which the caller treats as a no-op.
func (w *Worker) loadEventForProcessing(ctx context.Context, payload domain.SyncJobPayload) (*domain.SyncEvent, error) {
	if payload.SyncEventID == "" {
		return nil, apperr.New(apperr.ErrInvalidArgument, "sync job payload missing syncEventId")
	}

	event, err := w.Metadata.GetSyncEvent(ctx, payload.SyncEventID)
	if err != nil {
		return nil, err
	}
	if event.Status == domain.SyncDone || event.Status == domain.SyncFailed {
		return nil, nil
	}
	if !event.CanTransitionTo(domain.SyncProcessing) {
		return nil, nil
	}

	event.Status = domain.SyncProcessing
	event.UpdatedAt = w.Now()
	if err := w.Metadata.UpdateSyncEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (w *Worker) dispatch(ctx context.Context, event *domain.SyncEvent, nasObj *domain.StorageObject) error {
	switch event.EventType {
	case domain.SyncCreate:
		return w.handleUpload(ctx, event, nasObj)
	case domain.SyncRename:
		return w.handleRename(ctx, event, nasObj)
	case domain.SyncMove:
		return w.handleMove(ctx, event, nasObj)
	case domain.SyncTrash:
		return w.handleTrash(ctx, event, nasObj)
	case domain.SyncRestore:
		return w.handleRestore(ctx, event, nasObj)
	case domain.SyncPurge:
		return w.handlePurge(ctx, event, nasObj)
	default:
		return apperr.New(apperr.ErrInvalidArgument, "unknown sync event type: "+string(event.EventType))
	}
}

func (w *Worker) markDone(ctx context.Context, event *domain.SyncEvent) {
	event.Status = domain.SyncDone
	event.UpdatedAt = w.Now()
	if err := w.Metadata.UpdateSyncEvent(ctx, event); err != nil {
		logger.Error("failed to mark sync event done", "syncEventId", event.ID, "error", err)
	}
}

// retryOrFail implements spec §4.5 step 4: increment retryCount; if
// the budget remains, revert to PENDING for redelivery, else mark
// FAILED with the handler's error recorded.
func (w *Worker) retryOrFail(ctx context.Context, event *domain.SyncEvent, cause error) {
	event.RetryCount++
	msg := cause.Error()
	event.ErrorMessage = &msg
	event.UpdatedAt = w.Now()

	if event.ExhaustedRetries() {
		event.Status = domain.SyncFailed
	} else {
		event.Status = domain.SyncPending
	}

	if err := w.Metadata.UpdateSyncEvent(ctx, event); err != nil {
		logger.Error("failed to record sync event retry state", "syncEventId", event.ID, "error", err)
		return
	}
	if event.Status == domain.SyncPending {
		w.requeue(ctx, event)
	}
}

// requeue re-enqueues a PENDING event for another attempt. The queue's
// own JobID-keyed idempotency would treat a same-ID re-add as a no-op,
// so retries use a fresh job id each time.
func (w *Worker) requeue(ctx context.Context, event *domain.SyncEvent) {
	multipartSessionID := ""
	if event.MultipartSessionID != nil {
		multipartSessionID = *event.MultipartSessionID
	}
	payload := domain.SyncJobPayload{
		FileID:             event.FileID,
		Action:             string(event.EventType),
		SyncEventID:        event.ID,
		MultipartSessionID: multipartSessionID,
	}
	delay := backoffDelay(event.RetryCount)
	if _, err := w.Queue.Add(ctx, queueName, payload.Marshal(), ports.JobOptions{Delay: delay}); err != nil {
		logger.Error("failed to requeue sync event", "syncEventId", event.ID, "error", err)
	} else {
		event.Status = domain.SyncQueued
		event.UpdatedAt = w.Now()
		if err := w.Metadata.UpdateSyncEvent(ctx, event); err != nil {
			logger.Error("failed to mark requeued sync event queued", "syncEventId", event.ID, "error", err)
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	d := time.Second
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > time.Minute {
			return time.Minute
		}
	}
	return d
}

func isNotFound(err error) bool {
	code, ok := apperr.CodeOf(err)
	return ok && (code == apperr.ErrFileNotFoundInStorage || code == apperr.ErrFileNotFound)
}
