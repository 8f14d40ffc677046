// Package config provides configuration management for alchemist using Viper.
// It supports configuration from files, environment variables, and defaults.
//
// Static infrastructure (listen address, database, logging, binary paths)
// lives here; runtime-tunable transcode behavior is persisted in the
// database settings row, which the transcode section below merely seeds on
// first boot.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8484
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultWatchDebounce   = time.Second
	defaultShutdownGrace   = 15 * time.Second
	defaultBackupRetention = 7
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Scanner   ScannerConfig   `mapstructure:"scanner"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Backup    BackupConfig    `mapstructure:"backup"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" masq:"secret"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds ffmpeg/ffprobe binary configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg (empty = auto-detect)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe (empty = auto-detect)
}

// ScannerConfig holds library scanning configuration.
type ScannerConfig struct {
	// Roots are library directories scanned recursively for media files.
	// Watch directories stored in the database are merged in at runtime.
	Roots []string `mapstructure:"roots"`

	// Watch enables the filesystem watcher that enqueues new files without
	// waiting for a scan.
	Watch         bool          `mapstructure:"watch"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`

	// Cron is a 5-field cron expression for scheduled rescans
	// ("0 3 * * *" = daily at 03:00). Empty disables scheduled scans.
	Cron string `mapstructure:"cron"`
}

// EngineConfig holds transcode engine configuration.
type EngineConfig struct {
	// ShutdownGrace bounds how long Stop waits for in-flight encodes before
	// cancelling them. Interrupted jobs are requeued on the next start.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// TranscodeConfig seeds the database settings row on first boot. Later
// changes go through the settings API; this section is ignored once the row
// exists.
type TranscodeConfig struct {
	TargetCodec            string  `mapstructure:"target_codec"`    // av1, hevc, h264
	QualityProfile         string  `mapstructure:"quality_profile"` // quality, balanced, speed
	CPUPreset              string  `mapstructure:"cpu_preset"`      // slow, medium, fast, ultrafast
	AllowCPUFallback       bool    `mapstructure:"allow_cpu_fallback"`
	AllowCPUEncoding       bool    `mapstructure:"allow_cpu_encoding"`
	SizeReductionThreshold float64 `mapstructure:"size_reduction_threshold"`
	MinBppThreshold        float64 `mapstructure:"min_bpp_threshold"`
	MinFileSizeMB          int64   `mapstructure:"min_file_size_mb"`
	ConcurrentJobs         int     `mapstructure:"concurrent_jobs"`
	Threads                int     `mapstructure:"threads"`
	EnableVMAF             bool    `mapstructure:"enable_vmaf"`
	MinVMAFScore           float64 `mapstructure:"min_vmaf_score"`
	RevertOnLowQuality     bool    `mapstructure:"revert_on_low_quality"`
	DeleteSource           bool    `mapstructure:"delete_source"`
	OutputExtension        string  `mapstructure:"output_extension"`
	OutputSuffix           string  `mapstructure:"output_suffix"`
	ReplaceStrategy        string  `mapstructure:"replace_strategy"` // keep, overwrite
	MonitoringPollInterval float64 `mapstructure:"monitoring_poll_interval"`
	NotifyOnComplete       bool    `mapstructure:"notify_on_complete"`
	NotifyOnFailure        bool    `mapstructure:"notify_on_failure"`
}

// BackupConfig holds database backup configuration.
type BackupConfig struct {
	Directory string `mapstructure:"directory"`
	// Compression selects the snapshot codec: xz or bzip2.
	Compression string `mapstructure:"compression"`
	// Retention is the number of snapshots kept by Prune.
	Retention int `mapstructure:"retention"`
	// MinFreeSpace refuses snapshot creation when the backup volume has
	// less free space. Accepts human-readable sizes ("500MB").
	MinFreeSpace ByteSize `mapstructure:"min_free_space"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with ALCHEMIST_, nesting with underscores:
// ALCHEMIST_SERVER_PORT=8484.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("alchemist")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/alchemist")
		v.AddConfigPath("/etc/alchemist")
	}

	v.SetEnvPrefix("ALCHEMIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine, defaults and env vars apply.
	}

	var cfg Config
	// Passing a hook replaces viper's defaults, so the standard duration
	// and slice hooks are re-composed alongside the TextUnmarshaler hook
	// that ByteSize and Duration need.
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// Call before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "alchemist.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")

	// Scanner defaults
	v.SetDefault("scanner.roots", []string{})
	v.SetDefault("scanner.watch", false)
	v.SetDefault("scanner.watch_debounce", defaultWatchDebounce)
	v.SetDefault("scanner.cron", "")

	// Engine defaults
	v.SetDefault("engine.shutdown_grace", defaultShutdownGrace)

	// Transcode seed defaults
	v.SetDefault("transcode.target_codec", "av1")
	v.SetDefault("transcode.quality_profile", "balanced")
	v.SetDefault("transcode.cpu_preset", "medium")
	v.SetDefault("transcode.allow_cpu_fallback", true)
	v.SetDefault("transcode.allow_cpu_encoding", true)
	v.SetDefault("transcode.size_reduction_threshold", 0.3)
	v.SetDefault("transcode.min_bpp_threshold", 0.1)
	v.SetDefault("transcode.min_file_size_mb", 50)
	v.SetDefault("transcode.concurrent_jobs", 1)
	v.SetDefault("transcode.threads", 0)
	v.SetDefault("transcode.enable_vmaf", false)
	v.SetDefault("transcode.min_vmaf_score", 90.0)
	v.SetDefault("transcode.revert_on_low_quality", true)
	v.SetDefault("transcode.delete_source", false)
	v.SetDefault("transcode.output_extension", "mkv")
	v.SetDefault("transcode.output_suffix", "-alchemist")
	v.SetDefault("transcode.replace_strategy", "keep")
	v.SetDefault("transcode.monitoring_poll_interval", 2.0)
	v.SetDefault("transcode.notify_on_complete", true)
	v.SetDefault("transcode.notify_on_failure", true)

	// Backup defaults
	v.SetDefault("backup.directory", "./backups")
	v.SetDefault("backup.compression", "xz")
	v.SetDefault("backup.retention", defaultBackupRetention)
	v.SetDefault("backup.min_free_space", "500MB")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if err := c.Transcode.Validate(); err != nil {
		return err
	}

	validCompression := map[string]bool{"xz": true, "bzip2": true}
	if !validCompression[c.Backup.Compression] {
		return fmt.Errorf("backup.compression must be one of: xz, bzip2")
	}
	if c.Backup.Retention < 1 {
		return fmt.Errorf("backup.retention must be at least 1")
	}

	return nil
}

// Validate checks the transcode seed values against the same ranges the
// settings API enforces.
func (c *TranscodeConfig) Validate() error {
	validCodecs := map[string]bool{"av1": true, "hevc": true, "h264": true}
	if !validCodecs[c.TargetCodec] {
		return fmt.Errorf("transcode.target_codec must be one of: av1, hevc, h264")
	}
	validProfiles := map[string]bool{"quality": true, "balanced": true, "speed": true}
	if !validProfiles[c.QualityProfile] {
		return fmt.Errorf("transcode.quality_profile must be one of: quality, balanced, speed")
	}
	validPresets := map[string]bool{"slow": true, "medium": true, "fast": true, "ultrafast": true}
	if !validPresets[c.CPUPreset] {
		return fmt.Errorf("transcode.cpu_preset must be one of: slow, medium, fast, ultrafast")
	}
	if c.SizeReductionThreshold < 0 || c.SizeReductionThreshold > 1 {
		return fmt.Errorf("transcode.size_reduction_threshold must be between 0 and 1")
	}
	if c.MinBppThreshold < 0 {
		return fmt.Errorf("transcode.min_bpp_threshold must be >= 0")
	}
	if c.ConcurrentJobs < 1 {
		return fmt.Errorf("transcode.concurrent_jobs must be at least 1")
	}
	if c.MinVMAFScore < 0 || c.MinVMAFScore > 100 {
		return fmt.Errorf("transcode.min_vmaf_score must be between 0 and 100")
	}
	if c.MonitoringPollInterval < 0.5 || c.MonitoringPollInterval > 10.0 {
		return fmt.Errorf("transcode.monitoring_poll_interval must be between 0.5 and 10.0 seconds")
	}
	validStrategies := map[string]bool{"keep": true, "overwrite": true}
	if !validStrategies[c.ReplaceStrategy] {
		return fmt.Errorf("transcode.replace_strategy must be one of: keep, overwrite")
	}
	if c.OutputExtension == "" || strings.HasPrefix(c.OutputExtension, ".") {
		return fmt.Errorf("transcode.output_extension must be a bare extension like %q", "mkv")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
