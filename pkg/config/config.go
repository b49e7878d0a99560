// Package config loads application configuration from environment
// variables, optionally overlaid by a YAML file. Validation happens at
// load time so a misconfigured process fails at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/radiancehq/radiance/pkg/migration"
	"github.com/radiancehq/radiance/pkg/storage"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Migration MigrationConfig `yaml:"migration"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds the admin HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig mirrors storage.Config with YAML tags.
type StorageConfig struct {
	Adapter              string        `yaml:"adapter"`
	JSONPath             string        `yaml:"json_path"`
	SupabaseDBURL        string        `yaml:"supabase_db_url"`
	SupabaseURL          string        `yaml:"supabase_url"`
	SupabaseServiceKey   string        `yaml:"supabase_service_key"`
	SupabaseMaxConns     int           `yaml:"supabase_max_conns"`
	SupabaseMinConns     int           `yaml:"supabase_min_conns"`
	SupabaseTimeout      time.Duration `yaml:"supabase_timeout"`
	DualReadFrom         string        `yaml:"dual_read_from"`
	DualSecondaryTimeout time.Duration `yaml:"dual_secondary_timeout"`
	CacheEnabled         bool          `yaml:"cache_enabled"`
	RedisURL             string        `yaml:"redis_url"`
	RedisPassword        string        `yaml:"redis_password"`
	RedisDB              int           `yaml:"redis_db"`
	CacheTTL             time.Duration `yaml:"cache_ttl"`
	L1CacheSize          int           `yaml:"l1_cache_size"`
	MetricsEnabled       bool          `yaml:"metrics_enabled"`
}

// MigrationConfig holds migration tooling configuration.
type MigrationConfig struct {
	CheckpointDB      string                 `yaml:"checkpoint_db"`
	JournalDB         string                 `yaml:"journal_db"`
	ReconcileSchedule string                 `yaml:"reconcile_schedule"`
	Backup            migration.BackupConfig `yaml:"backup"`
}

// ToStorage converts the YAML-tagged view into storage.Config.
func (c StorageConfig) ToStorage() storage.Config {
	return storage.Config{
		Adapter:              c.Adapter,
		JSONPath:             c.JSONPath,
		SupabaseDBURL:        c.SupabaseDBURL,
		SupabaseURL:          c.SupabaseURL,
		SupabaseServiceKey:   c.SupabaseServiceKey,
		SupabaseMaxConns:     c.SupabaseMaxConns,
		SupabaseMinConns:     c.SupabaseMinConns,
		SupabaseTimeout:      c.SupabaseTimeout,
		DualReadFrom:         c.DualReadFrom,
		DualSecondaryTimeout: c.DualSecondaryTimeout,
		CacheEnabled:         c.CacheEnabled,
		RedisURL:             c.RedisURL,
		RedisPassword:        c.RedisPassword,
		RedisDB:              c.RedisDB,
		CacheTTL:             c.CacheTTL,
		L1CacheSize:          c.L1CacheSize,
		MetricsEnabled:       c.MetricsEnabled,
	}
}

// LoadConfig loads configuration from environment variables. When path
// is non-empty the YAML file is read first and environment variables
// override it.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	sc := storage.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter:              sc.Adapter,
			JSONPath:             sc.JSONPath,
			SupabaseMaxConns:     sc.SupabaseMaxConns,
			SupabaseMinConns:     sc.SupabaseMinConns,
			SupabaseTimeout:      sc.SupabaseTimeout,
			DualReadFrom:         sc.DualReadFrom,
			DualSecondaryTimeout: sc.DualSecondaryTimeout,
			CacheTTL:             sc.CacheTTL,
			L1CacheSize:          sc.L1CacheSize,
			MetricsEnabled:       sc.MetricsEnabled,
		},
		Migration: MigrationConfig{
			CheckpointDB:      "data/migration.db",
			JournalDB:         "data/journal.db",
			ReconcileSchedule: "@every 5m",
		},
		LogLevel: "info",
	}
}

func loadEnv(cfg *Config) {
	// Server
	cfg.Server.Host = getEnv("RADIANCE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("RADIANCE_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("RADIANCE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("RADIANCE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("RADIANCE_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("RADIANCE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	// Storage
	cfg.Storage.Adapter = getEnv("STORAGE_ADAPTER", cfg.Storage.Adapter)
	cfg.Storage.JSONPath = getEnv("STORAGE_JSON_PATH", cfg.Storage.JSONPath)
	cfg.Storage.SupabaseDBURL = getEnv("SUPABASE_DB_URL", cfg.Storage.SupabaseDBURL)
	cfg.Storage.SupabaseURL = getEnv("SUPABASE_URL", cfg.Storage.SupabaseURL)
	cfg.Storage.SupabaseServiceKey = getEnv("SUPABASE_SERVICE_KEY", cfg.Storage.SupabaseServiceKey)
	cfg.Storage.SupabaseMaxConns = getEnvInt("SUPABASE_MAX_CONNS", cfg.Storage.SupabaseMaxConns)
	cfg.Storage.SupabaseMinConns = getEnvInt("SUPABASE_MIN_CONNS", cfg.Storage.SupabaseMinConns)
	cfg.Storage.SupabaseTimeout = getEnvDuration("SUPABASE_TIMEOUT", cfg.Storage.SupabaseTimeout)
	cfg.Storage.DualReadFrom = getEnv("DUAL_WRITE_READ_FROM", cfg.Storage.DualReadFrom)
	cfg.Storage.DualSecondaryTimeout = getEnvDuration("DUAL_WRITE_SECONDARY_TIMEOUT", cfg.Storage.DualSecondaryTimeout)
	cfg.Storage.CacheEnabled = getEnvBool("STORAGE_CACHE_ENABLED", cfg.Storage.CacheEnabled)
	cfg.Storage.RedisURL = getEnv("STORAGE_REDIS_URL", cfg.Storage.RedisURL)
	cfg.Storage.RedisPassword = getEnv("STORAGE_REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getEnvInt("STORAGE_REDIS_DB", cfg.Storage.RedisDB)
	cfg.Storage.CacheTTL = getEnvDuration("STORAGE_CACHE_TTL", cfg.Storage.CacheTTL)
	cfg.Storage.L1CacheSize = getEnvInt("STORAGE_L1_CACHE_SIZE", cfg.Storage.L1CacheSize)
	cfg.Storage.MetricsEnabled = getEnvBool("STORAGE_METRICS_ENABLED", cfg.Storage.MetricsEnabled)

	// Migration
	cfg.Migration.CheckpointDB = getEnv("MIGRATION_CHECKPOINT_DB", cfg.Migration.CheckpointDB)
	cfg.Migration.JournalDB = getEnv("MIGRATION_JOURNAL_DB", cfg.Migration.JournalDB)
	cfg.Migration.ReconcileSchedule = getEnv("MIGRATION_RECONCILE_SCHEDULE", cfg.Migration.ReconcileSchedule)
	cfg.Migration.Backup.Endpoint = getEnv("BACKUP_S3_ENDPOINT", cfg.Migration.Backup.Endpoint)
	cfg.Migration.Backup.Region = getEnv("BACKUP_S3_REGION", cfg.Migration.Backup.Region)
	cfg.Migration.Backup.Bucket = getEnv("BACKUP_S3_BUCKET", cfg.Migration.Backup.Bucket)
	cfg.Migration.Backup.AccessKey = getEnv("BACKUP_S3_ACCESS_KEY", cfg.Migration.Backup.AccessKey)
	cfg.Migration.Backup.SecretKey = getEnv("BACKUP_S3_SECRET_KEY", cfg.Migration.Backup.SecretKey)
	cfg.Migration.Backup.UsePathStyle = getEnvBool("BACKUP_S3_USE_PATH_STYLE", cfg.Migration.Backup.UsePathStyle)
	cfg.Migration.Backup.Prefix = getEnv("BACKUP_S3_PREFIX", cfg.Migration.Backup.Prefix)

	cfg.LogLevel = getEnv("RADIANCE_LOG_LEVEL", cfg.LogLevel)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if err := c.Storage.ToStorage().Validate(); err != nil {
		return err
	}
	if c.Storage.Adapter == storage.AdapterDual && c.Migration.JournalDB == "" {
		return fmt.Errorf("journal database path is required for dual storage")
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
