// Package config loads the service's static configuration: logging,
// database/redis connections, cache/NAS backend selection, admission
// limits and worker tunables. Dynamic state (files, sessions, sync
// events) lives in the metadata store, not here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/filestore/internal/bytesize"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
//
// Precedence (highest to lowest): environment variables (FILESTORE_*),
// configuration file, default values.
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required" yaml:"database"`
	Redis        RedisConfig        `mapstructure:"redis" validate:"required" yaml:"redis"`
	Cache        CacheConfig        `mapstructure:"cache" validate:"required" yaml:"cache"`
	NAS          NASConfig          `mapstructure:"nas" validate:"required" yaml:"nas"`
	Admission    AdmissionConfig    `mapstructure:"admission" yaml:"admission"`
	Multipart    MultipartConfig    `mapstructure:"multipart" yaml:"multipart"`
	Sync         SyncConfig         `mapstructure:"sync" yaml:"sync"`
	CacheRestore CacheRestoreConfig `mapstructure:"cache_restore" yaml:"cache_restore"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup" yaml:"cleanup"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	HTTP         HTTPConfig         `mapstructure:"http" yaml:"http"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// DatabaseConfig configures the metadata store's Postgres connection.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required" yaml:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
}

// RedisConfig configures the shared client backing the distributed
// lock, job queue and progress store ports.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// CacheConfig selects and configures the fast cache tier backend.
type CacheConfig struct {
	// StorageType is "local" or "s3".
	StorageType string        `mapstructure:"storage_type" validate:"required,oneof=local s3" yaml:"storage_type"`
	LocalPath   string        `mapstructure:"local_path" yaml:"local_path,omitempty"`
	S3          *S3Config     `mapstructure:"s3" yaml:"s3,omitempty"`
	MaxSize     bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`
}

// S3Config configures an S3-compatible cache backend.
type S3Config struct {
	Bucket         string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Region         string `mapstructure:"region" yaml:"region"`
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID    string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	Prefix         string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries,omitempty"`
}

// NASConfig configures the slow, durable tier. The NAS is always a
// local mount (or an equivalent bind-mounted network filesystem); it
// never switches backend type the way the cache does.
type NASConfig struct {
	MountPath string `mapstructure:"mount_path" validate:"required" yaml:"mount_path"`
}

// AdmissionConfig bounds concurrent uploads per §6's enumerated limits.
type AdmissionConfig struct {
	MaxActiveSessions       int           `mapstructure:"max_active_sessions" yaml:"max_active_sessions"`
	MaxSessionsPerUser      int           `mapstructure:"max_sessions_per_user" yaml:"max_sessions_per_user"`
	MaxTotalUploadBytes     int64         `mapstructure:"max_total_upload_bytes" yaml:"max_total_upload_bytes"`
	MaxFileSizeBytes        int64         `mapstructure:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	MaxQueueSize            int           `mapstructure:"max_queue_size" yaml:"max_queue_size"`
	QueueTicketTTL          time.Duration `mapstructure:"queue_ticket_ttl" yaml:"queue_ticket_ttl"`
	QueueReadyClaimWindow   time.Duration `mapstructure:"queue_ready_claim_window" yaml:"queue_ready_claim_window"`
	EstimatedSessionSeconds int           `mapstructure:"estimated_session_duration_seconds" yaml:"estimated_session_duration_seconds"`
}

// MultipartConfig configures the threshold and part size for the
// multipart upload engine.
type MultipartConfig struct {
	MinFileSizeBytes  int64 `mapstructure:"min_file_size_bytes" yaml:"min_file_size_bytes"`
	DefaultPartSizeBytes int64 `mapstructure:"default_part_size_bytes" yaml:"default_part_size_bytes"`

	// SessionTTL is how long a multipart session stays ACTIVE without a
	// part upload before it is considered abandoned. It is also shared
	// with the orphan cleaner, which uses it to find sessions nobody
	// ever touched to flip their status to EXPIRED.
	SessionTTL time.Duration `mapstructure:"session_ttl" yaml:"session_ttl"`
}

// SyncConfig configures the per-file NAS sync worker.
type SyncConfig struct {
	Concurrency                 int   `mapstructure:"concurrency" yaml:"concurrency"`
	ParallelUploadThresholdBytes int64 `mapstructure:"parallel_upload_threshold_bytes" yaml:"parallel_upload_threshold_bytes"`
	ParallelUploadChunkBytes     int64 `mapstructure:"parallel_upload_chunk_bytes" yaml:"parallel_upload_chunk_bytes"`
	ParallelUploadChunks         int   `mapstructure:"parallel_upload_chunks" yaml:"parallel_upload_chunks"`
	MaxRetries                   int   `mapstructure:"max_retries" yaml:"max_retries"`
	ProgressLogIntervalPercent   int   `mapstructure:"progress_log_interval_percent" yaml:"progress_log_interval_percent"`
}

// CacheRestoreConfig configures the NAS-to-cache promotion worker.
type CacheRestoreConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// CleanupConfig configures the orphaned-session sweep.
type CleanupConfig struct {
	RetentionHours int           `mapstructure:"retention_hours" yaml:"retention_hours"`
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// HTTPConfig configures the chi-based API server.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error if no
// config file exists at the resolved path.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"create one first, or pass --config /path/to/config.yaml", GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML, restricted to owner read/write
// since the database DSN and S3 credentials may be sensitive.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate runs struct-tag validation plus the cross-field checks
// tags can't express (e.g. S3 cache requires S3 block).
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return err
	}
	if cfg.Cache.StorageType == "s3" && cfg.Cache.S3 == nil {
		return fmt.Errorf("cache.storage_type=s3 requires cache.s3 to be set")
	}
	if cfg.Cache.StorageType == "local" && cfg.Cache.LocalPath == "" {
		return fmt.Errorf("cache.storage_type=local requires cache.local_path to be set")
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FILESTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "filestore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "filestore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
