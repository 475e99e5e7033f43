// Package redisqueue implements ports.JobQueue on top of Redis lists
// and sorted sets — a reliable-queue pattern (BRPOPLPUSH into a
// per-queue processing list, delayed jobs held in a ZSET keyed by
// ready time) standing in for the BullMQ-style job queue spec §6
// describes, since this module's runtime is Go rather than Node.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/marmos91/filestore/pkg/ports"
)

// Queue implements ports.JobQueue.
type Queue struct {
	client *redis.Client
}

func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

type jobRecord struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Data       []byte          `json:"data"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"maxRetries"`
	Backoff    ports.BackoffPolicy `json:"backoff"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

func waitingKey(name string) string  { return "filestore:queue:" + name + ":waiting" }
func activeKey(name string) string   { return "filestore:queue:" + name + ":active" }
func delayedKey(name string) string  { return "filestore:queue:" + name + ":delayed" }
func jobKey(name, id string) string  { return "filestore:queue:" + name + ":job:" + id }
func statusKey(name, id string) string { return "filestore:queue:" + name + ":status:" + id }

// activeDeadlineKey holds a ZSET of active job ids scored by the
// instant their consumer is presumed dead; the reaper requeues
// anything past its score.
func activeDeadlineKey(name string) string { return "filestore:queue:" + name + ":active:deadlines" }

const (
	// jobRecordTTL bounds every job/status key so the idempotency
	// markers Add relies on can't accumulate forever; terminal jobs
	// are shortened to terminalTTL once their outcome is known.
	jobRecordTTL = 24 * time.Hour
	terminalTTL  = time.Hour

	// activeGrace is how long a popped job may sit in the active list
	// before the reaper assumes its consumer crashed and requeues it.
	// Handlers are idempotent, so redelivering a job whose consumer is
	// merely slow is safe.
	activeGrace = 5 * time.Minute
)

// Add enqueues a job. When opts.JobID is set and a job with that id
// already exists, Add is a no-op and returns the existing record —
// this is what makes enqueueing a sync event idempotent across
// at-least-once producer retries.
func (q *Queue) Add(ctx context.Context, name string, data []byte, opts ports.JobOptions) (ports.Job, error) {
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}

	exists, err := q.client.Exists(ctx, jobKey(name, id)).Result()
	if err != nil {
		return ports.Job{}, err
	}
	if exists == 1 {
		return q.load(ctx, name, id)
	}

	rec := jobRecord{
		ID:         id,
		Name:       name,
		Data:       data,
		MaxRetries: opts.Attempts,
		Backoff:    opts.Backoff,
		EnqueuedAt: time.Now(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return ports.Job{}, err
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKey(name, id), payload, jobRecordTTL)
	pipe.Set(ctx, statusKey(name, id), string(ports.JobWaiting), jobRecordTTL)
	if opts.Delay > 0 {
		pipe.ZAdd(ctx, delayedKey(name), redis.Z{
			Score:  float64(time.Now().Add(opts.Delay).UnixMilli()),
			Member: id,
		})
	} else {
		pipe.LPush(ctx, waitingKey(name), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return ports.Job{}, err
	}

	return toJob(rec), nil
}

func (q *Queue) load(ctx context.Context, name, id string) (ports.Job, error) {
	raw, err := q.client.Get(ctx, jobKey(name, id)).Bytes()
	if err != nil {
		return ports.Job{}, err
	}
	var rec jobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ports.Job{}, err
	}
	return toJob(rec), nil
}

func toJob(rec jobRecord) ports.Job {
	return ports.Job{
		ID:         rec.ID,
		Name:       rec.Name,
		Data:       rec.Data,
		Attempts:   rec.Attempts,
		MaxRetries: rec.MaxRetries,
		EnqueuedAt: rec.EnqueuedAt,
	}
}

// Process runs opts.Concurrency worker goroutines pulling from the
// waiting list (and promoting due delayed jobs) until ctx is
// cancelled. A handler error reschedules the job per its backoff
// policy, up to MaxRetries, after which it's marked failed.
func (q *Queue) Process(ctx context.Context, name string, handler ports.JobHandler, opts ports.ProcessOptions) error {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	stop := make(chan struct{})
	go q.promoteDelayedLoop(ctx, name, stop)
	defer close(stop)

	errCh := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			errCh <- q.workerLoop(ctx, name, handler)
		}()
	}

	for i := 0; i < concurrency; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

func (q *Queue) promoteDelayedLoop(ctx context.Context, name string, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteDelayed(ctx, name)
			q.reapOrphans(ctx, name)
		}
	}
}

func (q *Queue) promoteDelayed(ctx context.Context, name string) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, delayedKey(name), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return
	}
	for _, id := range ids {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, delayedKey(name), id)
		pipe.LPush(ctx, waitingKey(name), id)
		pipe.Exec(ctx)
	}
}

func (q *Queue) workerLoop(ctx context.Context, name string, handler ports.JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		id, err := q.client.BRPopLPush(ctx, waitingKey(name), activeKey(name), time.Second).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		q.client.ZAdd(ctx, activeDeadlineKey(name), redis.Z{
			Score:  float64(time.Now().Add(activeGrace).UnixMilli()),
			Member: id,
		})
		q.client.Set(ctx, statusKey(name, id), string(ports.JobActive), jobRecordTTL)
		q.runOne(ctx, name, id, handler)
		q.client.LRem(ctx, activeKey(name), 1, id)
		q.client.ZRem(ctx, activeDeadlineKey(name), id)
	}
}

// reapOrphans requeues jobs stranded in the active list by a consumer
// that died between popping and finishing: anything whose deadline has
// passed goes back to waiting for redelivery.
func (q *Queue) reapOrphans(ctx context.Context, name string) {
	now := float64(time.Now().UnixMilli())
	ids, err := q.client.ZRangeByScore(ctx, activeDeadlineKey(name), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return
	}
	for _, id := range ids {
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, activeDeadlineKey(name), id)
		pipe.LRem(ctx, activeKey(name), 1, id)
		pipe.Set(ctx, statusKey(name, id), string(ports.JobWaiting), jobRecordTTL)
		pipe.LPush(ctx, waitingKey(name), id)
		pipe.Exec(ctx)
	}
}

func (q *Queue) runOne(ctx context.Context, name, id string, handler ports.JobHandler) {
	raw, err := q.client.Get(ctx, jobKey(name, id)).Bytes()
	if err != nil {
		return
	}
	var rec jobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return
	}

	handlerErr := handler(ctx, toJob(rec))
	if handlerErr == nil {
		q.client.Set(ctx, statusKey(name, id), string(ports.JobDone), terminalTTL)
		q.client.Expire(ctx, jobKey(name, id), terminalTTL)
		return
	}

	rec.Attempts++
	if rec.MaxRetries > 0 && rec.Attempts >= rec.MaxRetries {
		q.client.Set(ctx, statusKey(name, id), string(ports.JobFailed), terminalTTL)
		q.client.Expire(ctx, jobKey(name, id), terminalTTL)
		return
	}

	payload, _ := json.Marshal(rec)
	q.client.Set(ctx, jobKey(name, id), payload, jobRecordTTL)
	q.client.Set(ctx, statusKey(name, id), string(ports.JobWaiting), jobRecordTTL)

	delay := backoffDelay(rec.Backoff, rec.Attempts)
	q.client.ZAdd(ctx, delayedKey(name), redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: id,
	})
}

func backoffDelay(policy ports.BackoffPolicy, attempt int) time.Duration {
	base := policy.Delay
	if base <= 0 {
		base = time.Second
	}
	if policy.Type != "exponential" {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (q *Queue) Status(ctx context.Context, name, jobID string) (ports.JobStatus, error) {
	s, err := q.client.Get(ctx, statusKey(name, jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redisqueue: job %s/%s not found", name, jobID)
	}
	if err != nil {
		return "", err
	}
	return ports.JobStatus(s), nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

var _ ports.JobQueue = (*Queue)(nil)
