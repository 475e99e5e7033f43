// Package orphancleaner implements spec §4.7: a periodic sweep that
// reaps abandoned multipart upload sessions and their leftover part
// blobs, then lets the admission queue promote waiting tickets into
// the slots it frees.
package orphancleaner

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/admission"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/ports"
	"github.com/marmos91/filestore/pkg/upload"
)

// DefaultInterval is the sweep cadence from spec §4.7.
const DefaultInterval = 30 * time.Minute

// Config carries the cleaner's tunables, the worker-facing slice of
// config.Config's Cleanup section plus the session TTL it shares with
// the multipart engine.
type Config struct {
	// RetentionHours bounds how long a terminal (ABORTED/EXPIRED)
	// session's parts linger before being reaped, and, doubled, how
	// long a stuck COMPLETING session is given before being treated
	// as abandoned.
	RetentionHours int
	BatchSize      int
	Interval       time.Duration

	// SessionTTL is the multipart engine's session lifetime
	// (upload.Config.SessionTTL). A session whose updatedAt predates
	// now-SessionTTL is stale even if no request ever touched it to
	// flip its status to EXPIRED.
	SessionTTL time.Duration
}

// Stats reports the outcome of a single sweep.
type Stats struct {
	SessionsReaped int
	PartsSweeps    int
	Errors         int
}

// Cleaner periodically reaps abandoned upload sessions.
type Cleaner struct {
	Metadata  ports.MetadataStore
	Cache     ports.CacheStore
	Admission *admission.Queue
	Config    Config
	Now       func() time.Time

	mu        sync.Mutex
	started   bool
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New constructs a Cleaner. cfg's zero-value fields fall back to
// DefaultInterval; RetentionHours/BatchSize/SessionTTL have no
// built-in fallback and should be populated from config.Config.
func New(metadata ports.MetadataStore, cache ports.CacheStore, admissionQueue *admission.Queue, cfg Config) *Cleaner {
	return &Cleaner{
		Metadata:  metadata,
		Cache:     cache,
		Admission: admissionQueue,
		Config:    cfg,
		Now:       time.Now,
	}
}

// Start begins the periodic sweep loop. Calling Start twice is a no-op.
func (c *Cleaner) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.stoppedCh = make(chan struct{})
	c.mu.Unlock()

	interval := c.Config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	logger.Info("starting orphan cleaner", "interval", interval, "batchSize", c.Config.BatchSize)

	go func() {
		defer close(c.stoppedCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Sweep(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits up to timeout for it to do so.
func (c *Cleaner) Stop(timeout time.Duration) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	stopCh := c.stopCh
	stoppedCh := c.stoppedCh
	c.mu.Unlock()

	close(stopCh)

	select {
	case <-stoppedCh:
		logger.Info("orphan cleaner stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("orphan cleaner stop timed out")
	}
}

// Sweep runs one cleanup pass. It is a no-op if a previous sweep is
// still running (the in-process already-running guard from spec
// §4.7), which matters because a sweep triggered by Start's ticker
// could otherwise overlap with one still draining a large batch.
func (c *Cleaner) Sweep(ctx context.Context) Stats {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		logger.Debug("orphan cleaner sweep already running, skipping tick")
		return Stats{}
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	batchSize := c.Config.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	stats := Stats{}
	now := c.Now()

	// Step 1: ACTIVE sessions untouched since the multipart engine's own
	// session TTL elapsed. These never had a request land to flip their
	// status to EXPIRED, so they're found by staleness rather than by
	// status. COMPLETING sessions returned by the same query are left to
	// step 2's double-retention cutoff.
	staleCutoff := now.Add(-c.Config.SessionTTL).Unix()
	stale, err := c.Metadata.ListExpiredSessions(ctx, staleCutoff, batchSize)
	if err != nil {
		logger.Error("orphan cleaner: failed to list stale sessions", "error", err)
		stats.Errors++
	} else {
		active := stale[:0]
		for _, sess := range stale {
			if sess.Status == domain.SessionActive {
				active = append(active, sess)
			}
		}
		c.reapSessions(ctx, active, &stats)
	}

	// Step 2: terminal or long-stuck sessions past their retention
	// window, regardless of whether step 1 already caught them by
	// staleness (a session explicitly aborted moments ago is not stale
	// by step 1's clock but is still due for reaping here).
	retentionHours := c.Config.RetentionHours
	if retentionHours <= 0 {
		retentionHours = 24
	}
	terminalCutoff := now.Add(-time.Duration(retentionHours) * time.Hour).Unix()
	terminal, err := c.Metadata.ListSessionsByStatus(ctx, []domain.SessionStatus{domain.SessionAborted, domain.SessionExpired}, terminalCutoff, batchSize)
	if err != nil {
		logger.Error("orphan cleaner: failed to list terminal sessions", "error", err)
		stats.Errors++
	} else {
		c.reapSessions(ctx, terminal, &stats)
	}

	stuckCutoff := now.Add(-2 * time.Duration(retentionHours) * time.Hour).Unix()
	stuck, err := c.Metadata.ListSessionsByStatus(ctx, []domain.SessionStatus{domain.SessionCompleting}, stuckCutoff, batchSize)
	if err != nil {
		logger.Error("orphan cleaner: failed to list stuck completing sessions", "error", err)
		stats.Errors++
	} else {
		c.reapSessions(ctx, stuck, &stats)
	}

	if stats.SessionsReaped > 0 && c.Admission != nil {
		c.Admission.PromoteWaiting()
	}

	logger.Info("orphan cleaner sweep complete", "sessionsReaped", stats.SessionsReaped, "errors", stats.Errors)
	return stats
}

func (c *Cleaner) reapSessions(ctx context.Context, sessions []domain.UploadSession, stats *Stats) {
	for i := range sessions {
		sess := &sessions[i]
		upload.CleanupParts(ctx, c.Metadata, c.Cache, sess.ID)
		stats.PartsSweeps++

		if err := c.Metadata.DeleteUploadSession(ctx, sess.ID); err != nil {
			logger.Error("orphan cleaner: failed to delete session row", "sessionId", sess.ID, "error", err)
			stats.Errors++
			continue
		}
		stats.SessionsReaped++
	}
}
