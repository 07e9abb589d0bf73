package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	InstanceID      string        `yaml:"instance_id"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds storage layout configuration
type StorageConfig struct {
	DataDir      string  `yaml:"data_dir"`
	SegmentDir   string  `yaml:"segment_dir"`
	JournalDir   string  `yaml:"journal_dir"`
	MaxDiskUsage float64 `yaml:"max_disk_usage"`
}

// JournalConfig holds catalog journal configuration
type JournalConfig struct {
	SegmentSize int64 `yaml:"segment_size"`
	SyncWrites  bool  `yaml:"sync_writes"`
}

// RetentionConfig holds retention configuration
type RetentionConfig struct {
	DefaultWindow time.Duration `yaml:"default_window"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	MaxSize         int64         `yaml:"max_size"`
	FrequencyWeight float64       `yaml:"frequency_weight"`
	RecencyWeight   float64       `yaml:"recency_weight"`
	AdaptiveWindow  time.Duration `yaml:"adaptive_window"`
}

// GCConfig holds garbage collection configuration
type GCConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig selects the zap preset and level.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the complete configuration for the store
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Journal   JournalConfig   `yaml:"journal"`
	Retention RetentionConfig `yaml:"retention"`
	Cache     CacheConfig     `yaml:"cache"`
	GC        GCConfig        `yaml:"gc"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoadConfig reads and validates the YAML config at filePath.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filePath, err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/strata"
	}
	if cfg.Storage.SegmentDir == "" {
		cfg.Storage.SegmentDir = cfg.Storage.DataDir + "/segments"
	}
	if cfg.Storage.JournalDir == "" {
		cfg.Storage.JournalDir = cfg.Storage.DataDir + "/journal"
	}
	if cfg.Storage.MaxDiskUsage == 0 {
		cfg.Storage.MaxDiskUsage = 0.9
	}

	if cfg.Journal.SegmentSize == 0 {
		cfg.Journal.SegmentSize = 67108864 // 64MB
	}

	if cfg.Retention.DefaultWindow == 0 {
		cfg.Retention.DefaultWindow = 24 * time.Hour
	}
	if cfg.Retention.PurgeInterval == 0 {
		cfg.Retention.PurgeInterval = time.Minute
	}

	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 134217728 // 128MB
	}
	if cfg.Cache.FrequencyWeight == 0 {
		cfg.Cache.FrequencyWeight = 0.5
	}
	if cfg.Cache.RecencyWeight == 0 {
		cfg.Cache.RecencyWeight = 0.5
	}
	if cfg.Cache.AdaptiveWindow == 0 {
		cfg.Cache.AdaptiveWindow = 5 * time.Minute
	}

	if cfg.GC.Workers == 0 {
		cfg.GC.Workers = 1
	}
	if cfg.GC.QueueSize == 0 {
		cfg.GC.QueueSize = 4
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.InstanceID == "" {
		return fmt.Errorf("server.instance_id is required")
	}
	if c.Storage.MaxDiskUsage < 0 || c.Storage.MaxDiskUsage > 1 {
		return fmt.Errorf("storage.max_disk_usage must be in (0, 1]")
	}
	if c.Retention.DefaultWindow < 0 {
		return fmt.Errorf("retention.default_window must be positive")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	return nil
}
