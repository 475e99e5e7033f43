package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/marmos91/filestore/internal/logger"
	"github.com/marmos91/filestore/pkg/admission"
	"github.com/marmos91/filestore/pkg/cacherestore"
	"github.com/marmos91/filestore/pkg/config"
	"github.com/marmos91/filestore/pkg/domain"
	"github.com/marmos91/filestore/pkg/download"
	"github.com/marmos91/filestore/pkg/fileops"
	"github.com/marmos91/filestore/pkg/httpapi"
	"github.com/marmos91/filestore/pkg/lock/redislock"
	metapg "github.com/marmos91/filestore/pkg/metadatastore/postgres"
	prommetrics "github.com/marmos91/filestore/pkg/metrics/prometheus"
	"github.com/marmos91/filestore/pkg/orphancleaner"
	"github.com/marmos91/filestore/pkg/ports"
	"github.com/marmos91/filestore/pkg/progress/redisprogress"
	"github.com/marmos91/filestore/pkg/queue/redisqueue"
	"github.com/marmos91/filestore/pkg/storage/localfs"
	s3store "github.com/marmos91/filestore/pkg/storage/s3"
	"github.com/marmos91/filestore/pkg/syncworker"
	"github.com/marmos91/filestore/pkg/upload"
)

var runMigrationsOnStart bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the filestore server",
	Long: `Start the filestore server with the specified configuration: the
HTTP API, the NAS sync worker pool, the cache-restore worker pool, the
admission maintenance tick, and the orphaned-session cleaner.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/filestore/config.yaml.

Examples:
  # Start with the default config file
  filestore start

  # Start with a custom config file
  filestore start --config /etc/filestore/config.yaml

  # Apply pending migrations, then start
  filestore start --migrate

  # Start with environment variable overrides
  FILESTORE_LOGGING_LEVEL=DEBUG filestore start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&runMigrationsOnStart, "migrate", false, "Apply pending database migrations before starting")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting filestore", "version", Version)

	if runMigrationsOnStart {
		if err := metapg.RunMigrations(ctx, cfg.Database.DSN, nil); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	// Metadata store.
	meta, err := metapg.Connect(ctx, metapg.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to metadata store: %w", err)
	}
	defer meta.Close()

	// One Redis client backs the lock, queue and progress ports.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	lock := redislock.New(redisClient)
	jobQueue := redisqueue.New(redisClient)
	defer jobQueue.Close()
	progressStore := redisprogress.New(redisClient)

	// Storage tiers.
	cacheStore, err := buildCacheStore(ctx, cfg)
	if err != nil {
		return err
	}
	nasStore, err := localfs.NewWithPath(cfg.NAS.MountPath)
	if err != nil {
		return fmt.Errorf("failed to open NAS mount: %w", err)
	}
	defer nasStore.Close()

	// Metrics.
	var metrics *prommetrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = prommetrics.New(reg)
		go serveMetrics(ctx, cfg.Metrics.Addr, reg)
	}

	// Engines.
	uploadCfg := upload.Config{
		MaxFileSizeBytes:      cfg.Admission.MaxFileSizeBytes,
		MinMultipartSizeBytes: cfg.Multipart.MinFileSizeBytes,
		DefaultPartSizeBytes:  cfg.Multipart.DefaultPartSizeBytes,
		SessionTTL:            cfg.Multipart.SessionTTL,
	}
	uploadEngine := upload.NewEngine(meta, cacheStore, jobQueue, uploadCfg)
	multipartEngine := upload.NewMultipartEngine(meta, cacheStore, jobQueue, uploadCfg)
	fileOpsEngine := fileops.NewEngine(meta, jobQueue)
	downloadRouter := &download.Router{Metadata: meta, Cache: cacheStore, NAS: nasStore, Queue: jobQueue}

	admissionQueue := admission.New(admission.Config{
		MaxActiveSessions:        cfg.Admission.MaxActiveSessions,
		MaxSessionsPerUser:       cfg.Admission.MaxSessionsPerUser,
		MaxTotalUploadBytes:      cfg.Admission.MaxTotalUploadBytes,
		MaxFileSizeBytes:         cfg.Admission.MaxFileSizeBytes,
		QueueTicketTTL:           cfg.Admission.QueueTicketTTL,
		QueueReadyClaimWindow:    cfg.Admission.QueueReadyClaimWindow,
		MaxQueueSize:             cfg.Admission.MaxQueueSize,
		EstimatedSessionDuration: time.Duration(cfg.Admission.EstimatedSessionSeconds) * time.Second,
	}, func(req domain.UploadRequest, userID string) (string, error) {
		return multipartEngine.Initiate(context.Background(), req, userID)
	})

	// Background workers.
	admissionTicker := admission.NewTicker(admissionQueue, 30*time.Second)
	admissionTicker.Start(ctx)
	defer admissionTicker.Stop(cfg.ShutdownTimeout)

	syncWorker := syncworker.New(meta, cacheStore, nasStore, lock, jobQueue, progressStore, syncworker.Config{
		Concurrency:                  cfg.Sync.Concurrency,
		ParallelUploadThresholdBytes: cfg.Sync.ParallelUploadThresholdBytes,
		ParallelUploadChunkBytes:     cfg.Sync.ParallelUploadChunkBytes,
		ParallelUploadChunks:         cfg.Sync.ParallelUploadChunks,
		MaxRetries:                   cfg.Sync.MaxRetries,
		ProgressLogIntervalPercent:   cfg.Sync.ProgressLogIntervalPercent,
	})
	syncWorker.Start(ctx)
	defer syncWorker.Stop(cfg.ShutdownTimeout)

	restoreWorker := cacherestore.New(meta, cacheStore, nasStore, lock, jobQueue, cacherestore.Config{
		Concurrency: cfg.CacheRestore.Concurrency,
	})
	restoreWorker.Start(ctx)
	defer restoreWorker.Stop(cfg.ShutdownTimeout)

	cleaner := orphancleaner.New(meta, cacheStore, admissionQueue, orphancleaner.Config{
		RetentionHours: cfg.Cleanup.RetentionHours,
		BatchSize:      cfg.Cleanup.BatchSize,
		Interval:       cfg.Cleanup.Interval,
		SessionTTL:     cfg.Multipart.SessionTTL,
	})
	cleaner.Start(ctx)
	defer cleaner.Stop(cfg.ShutdownTimeout)

	server := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, &httpapi.Handlers{
		Upload:    uploadEngine,
		Multipart: multipartEngine,
		FileOps:   fileOpsEngine,
		Downloads: downloadRouter,
		Admission: admissionQueue,
		Metadata:  meta,
		Progress:  progressStore,
		Metrics:   metrics,
	})

	return server.Start(ctx)
}

// buildCacheStore selects the cache-tier backend per CACHE_STORAGE_TYPE.
func buildCacheStore(ctx context.Context, cfg *config.Config) (ports.CacheStore, error) {
	switch cfg.Cache.StorageType {
	case "s3":
		if cfg.Cache.S3 == nil {
			return nil, errors.New("cache storage_type is s3 but no s3 section is configured")
		}
		return s3store.New(ctx, s3store.Config{
			Bucket:          cfg.Cache.S3.Bucket,
			Region:          cfg.Cache.S3.Region,
			Endpoint:        cfg.Cache.S3.Endpoint,
			AccessKeyID:     cfg.Cache.S3.AccessKeyID,
			SecretAccessKey: cfg.Cache.S3.SecretAccessKey,
			Prefix:          cfg.Cache.S3.Prefix,
			ForcePathStyle:  cfg.Cache.S3.ForcePathStyle,
			MaxRetries:      cfg.Cache.S3.MaxRetries,
		})
	default:
		store, err := localfs.NewWithPath(cfg.Cache.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open cache directory: %w", err)
		}
		return store, nil
	}
}

// serveMetrics exposes the Prometheus registry on its own listener, so
// scrapes never contend with data-plane traffic.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
