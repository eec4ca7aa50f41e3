package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all process-level configuration. User-editable scan settings
// (folders, rules, notifications) are stored in the database instead.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Logging    LoggingConfig    `yaml:"logging"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Retention  RetentionConfig  `yaml:"retention"`
	Backup     BackupConfig     `yaml:"backup"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EncryptionConfig holds the key used to seal stored channel credentials.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// ScannerConfig controls media probing and the skip-rate abort policy.
type ScannerConfig struct {
	FFProbePath   string        `yaml:"ffprobe_path"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	Extensions    []string      `yaml:"extensions"`
	MaxSkipRatio  float64       `yaml:"max_skip_ratio"`
	MinSkipSample int           `yaml:"min_skip_sample"`
	Watch         bool          `yaml:"watch"`
}

// RetentionConfig controls the scan history purge.
type RetentionConfig struct {
	Enabled       bool `yaml:"enabled"`
	Days          int  `yaml:"days"`
	IntervalHours int  `yaml:"interval_hours"`
}

// BackupConfig controls the database snapshot taken before each retention
// sweep. An empty Path means a "backups" directory next to the database.
type BackupConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Keep    int    `yaml:"keep"`
}

// NotifyConfig controls notification delivery.
type NotifyConfig struct {
	SendTimeout    time.Duration `yaml:"send_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     7878,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/scanarr.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Scanner: ScannerConfig{
			FFProbePath:   "ffprobe",
			ProbeTimeout:  30 * time.Second,
			MaxSkipRatio:  0.5,
			MinSkipSample: 20,
		},
		Retention: RetentionConfig{
			Enabled:       true,
			Days:          90,
			IntervalHours: 24,
		},
		Backup: BackupConfig{
			Enabled: true,
			Keep:    7,
		},
		Notify: NotifyConfig{
			SendTimeout:    10 * time.Second,
			MaxAttempts:    3,
			RetryBaseDelay: time.Second,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// BackupDir returns the snapshot directory.
func (c *Config) BackupDir() string {
	if c.Backup.Path != "" {
		return c.Backup.Path
	}
	return filepath.Join(filepath.Dir(c.Database.Path), "backups")
}

// Path returns the config file location from SCANARR_CONFIG_PATH.
func Path() string {
	if p := os.Getenv("SCANARR_CONFIG_PATH"); p != "" {
		return p
	}
	return "/data/config.yaml"
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("SCANARR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SCANARR_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("SCANARR_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("SCANARR_ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("SCANARR_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SCANARR_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SCANARR_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("SCANARR_FFPROBE_PATH"); v != "" {
		c.Scanner.FFProbePath = v
	}
	if v := os.Getenv("SCANARR_WATCH"); v != "" {
		c.Scanner.Watch = v == "true" || v == "1"
	}
	if v := os.Getenv("SCANARR_BACKUP_PATH"); v != "" {
		c.Backup.Path = v
	}
	if v := os.Getenv("SCANARR_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.Retention.Days = days
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Scanner.MaxSkipRatio <= 0 || c.Scanner.MaxSkipRatio > 1 {
		return fmt.Errorf("scanner.max_skip_ratio must be in (0, 1], got %v", c.Scanner.MaxSkipRatio)
	}
	if c.Scanner.MinSkipSample < 1 {
		c.Scanner.MinSkipSample = 1
	}
	if c.Scanner.ProbeTimeout <= 0 {
		c.Scanner.ProbeTimeout = 30 * time.Second
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be at least 1, got %d", c.Retention.Days)
	}
	if c.Retention.IntervalHours < 1 {
		c.Retention.IntervalHours = 24
	}
	if c.Backup.Keep < 1 {
		c.Backup.Keep = 7
	}
	if c.Notify.MaxAttempts < 1 {
		c.Notify.MaxAttempts = 1
	}
	if c.Notify.SendTimeout <= 0 {
		c.Notify.SendTimeout = 10 * time.Second
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
