package config

import (
	"strings"
	"time"

	"github.com/marmos91/filestore/internal/bytesize"
)

// ApplyDefaults fills in any unspecified configuration fields with
// sensible defaults. Zero values are replaced; explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDatabaseDefaults(&cfg.Database)
	applyRedisDefaults(&cfg.Redis)
	applyCacheDefaults(&cfg.Cache)
	applyAdmissionDefaults(&cfg.Admission)
	applyMultipartDefaults(&cfg.Multipart)
	applySyncDefaults(&cfg.Sync)
	applyCacheRestoreDefaults(&cfg.CacheRestore)
	applyCleanupDefaults(&cfg.Cleanup)
	applyMetricsDefaults(&cfg.Metrics)
	applyHTTPDefaults(&cfg.HTTP)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	if cfg.MinConns == 0 {
		cfg.MinConns = 2
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = time.Hour
	}
}

func applyRedisDefaults(cfg *RedisConfig) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.StorageType == "" {
		cfg.StorageType = "local"
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = bytesize.ByteSize(bytesize.GiB) * 100
	}
	if cfg.StorageType == "s3" && cfg.S3 != nil {
		if cfg.S3.Prefix == "" {
			cfg.S3.Prefix = "cache/"
		}
		if cfg.S3.MaxRetries == 0 {
			cfg.S3.MaxRetries = 3
		}
	}
}

// Matches spec.md §6's enumerated configuration defaults exactly.
func applyAdmissionDefaults(cfg *AdmissionConfig) {
	if cfg.MaxActiveSessions == 0 {
		cfg.MaxActiveSessions = 10
	}
	if cfg.MaxSessionsPerUser == 0 {
		cfg.MaxSessionsPerUser = 3
	}
	if cfg.MaxTotalUploadBytes == 0 {
		cfg.MaxTotalUploadBytes = 50 * int64(bytesize.GiB)
	}
	if cfg.MaxFileSizeBytes == 0 {
		cfg.MaxFileSizeBytes = 20 * int64(bytesize.GiB)
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.QueueTicketTTL == 0 {
		cfg.QueueTicketTTL = 30 * time.Minute
	}
	if cfg.QueueReadyClaimWindow == 0 {
		cfg.QueueReadyClaimWindow = 5 * time.Minute
	}
	if cfg.EstimatedSessionSeconds == 0 {
		cfg.EstimatedSessionSeconds = 300
	}
}

func applyMultipartDefaults(cfg *MultipartConfig) {
	if cfg.MinFileSizeBytes == 0 {
		cfg.MinFileSizeBytes = 100 * int64(bytesize.MiB)
	}
	if cfg.DefaultPartSizeBytes == 0 {
		cfg.DefaultPartSizeBytes = 10 * int64(bytesize.MiB)
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}
	if cfg.ParallelUploadThresholdBytes == 0 {
		cfg.ParallelUploadThresholdBytes = 100 * int64(bytesize.MiB)
	}
	if cfg.ParallelUploadChunkBytes == 0 {
		cfg.ParallelUploadChunkBytes = 50 * int64(bytesize.MiB)
	}
	if cfg.ParallelUploadChunks == 0 {
		cfg.ParallelUploadChunks = 4
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ProgressLogIntervalPercent == 0 {
		cfg.ProgressLogIntervalPercent = 5
	}
}

func applyCacheRestoreDefaults(cfg *CacheRestoreConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 3
	}
}

func applyCleanupDefaults(cfg *CleanupConfig) {
	if cfg.RetentionHours == 0 {
		cfg.RetentionHours = 24
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Minute
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}

func applyHTTPDefaults(cfg *HTTPConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// GetDefaultConfig returns a Config with all default values applied,
// useful for generating a sample config file or for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{DSN: "postgres://localhost:5432/filestore"},
		Cache:    CacheConfig{StorageType: "local", LocalPath: "/var/lib/filestore/cache"},
		NAS:      NASConfig{MountPath: "/mnt/nas"},
	}
	ApplyDefaults(cfg)
	return cfg
}
