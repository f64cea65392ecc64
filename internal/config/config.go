// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/netanalyzer/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `analyzer:` root key in YAML.
type GlobalConfig struct {
	Session SessionConfig `mapstructure:"session"`
	Capture CaptureConfig `mapstructure:"capture"`
	Workers WorkersConfig `mapstructure:"workers"`
	Errors  ErrorsConfig  `mapstructure:"errors"`
	Control ControlConfig `mapstructure:"control"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ─── Session ───

// SessionConfig holds the session start parameters.
type SessionConfig struct {
	DeviceID      int    `mapstructure:"device_id"`      // 1-based
	FlushInterval uint32 `mapstructure:"flush_interval"` // seconds
	Output        string `mapstructure:"output"`
	Filter        string `mapstructure:"filter"`
}

// ─── Capture ───

// CaptureConfig selects and tunes the capture engine.
type CaptureConfig struct {
	Engine           string        `mapstructure:"engine"` // pcap | afpacket | file
	Files            []string      `mapstructure:"files"`  // file engine only
	SnapLen          int           `mapstructure:"snap_len"`
	Promiscuous      bool          `mapstructure:"promiscuous"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	BufferSizeMB     int           `mapstructure:"buffer_size_mb"` // afpacket ring size
	ReadErrorBackoff time.Duration `mapstructure:"read_error_backoff"`
}

// ─── Workers & Errors ───

// WorkersConfig sizes the dissection pool.
type WorkersConfig struct {
	Count         int    `mapstructure:"count"`          // 0 = runtime.NumCPU()
	QueueCapacity int    `mapstructure:"queue_capacity"` // 0 = unbounded
	DropPolicy    string `mapstructure:"drop_policy"`    // block | head
}

// ErrorsConfig bounds the session error queue.
type ErrorsConfig struct {
	MaxQueue int `mapstructure:"max_queue"` // 0 = unbounded
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

const rootKey = "analyzer"

// configRoot is the top-level wrapper matching the YAML structure `analyzer: ...`.
type configRoot struct {
	Analyzer GlobalConfig `mapstructure:"analyzer"`
}

// Load loads configuration from file. An empty path yields the defaults,
// still subject to environment overrides.
// Env vars follow the key path with the ANALYZER_ prefix (e.g. ANALYZER_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `analyzer.` key prefix maps to `ANALYZER_` through the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Analyzer

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}

	return &cfg, nil
}

func key(path string) string { return rootKey + "." + path }

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	// Session defaults
	v.SetDefault(key("session.device_id"), 1)
	v.SetDefault(key("session.flush_interval"), 5)
	v.SetDefault(key("session.output"), "netanalyzer-report.txt")
	v.SetDefault(key("session.filter"), "")

	// Capture defaults
	v.SetDefault(key("capture.engine"), "pcap")
	v.SetDefault(key("capture.files"), []string{})
	v.SetDefault(key("capture.snap_len"), 5000)
	v.SetDefault(key("capture.promiscuous"), true)
	v.SetDefault(key("capture.read_timeout"), "1s")
	v.SetDefault(key("capture.buffer_size_mb"), 8)
	v.SetDefault(key("capture.read_error_backoff"), "100ms")

	// Worker defaults
	v.SetDefault(key("workers.count"), 0)
	v.SetDefault(key("workers.queue_capacity"), 0)
	v.SetDefault(key("workers.drop_policy"), "block")
	v.SetDefault(key("errors.max_queue"), 1024)

	// Control defaults
	v.SetDefault(key("control.pid_file"), "/var/run/netanalyzer.pid")
	v.SetDefault(key("control.socket"), "/var/run/netanalyzer.sock")

	// Metrics defaults
	v.SetDefault(key("metrics.enabled"), true)
	v.SetDefault(key("metrics.listen"), ":9091")
	v.SetDefault(key("metrics.path"), "/metrics")

	// Log defaults
	v.SetDefault(key("log.level"), "info")
	v.SetDefault(key("log.format"), "json")
	v.SetDefault(key("log.outputs.file.enabled"), false)
	v.SetDefault(key("log.outputs.file.path"), "/var/log/netanalyzer/netanalyzer.log")
	v.SetDefault(key("log.outputs.file.rotation.max_size_mb"), 100)
	v.SetDefault(key("log.outputs.file.rotation.max_age_days"), 30)
	v.SetDefault(key("log.outputs.file.rotation.max_backups"), 5)
	v.SetDefault(key("log.outputs.file.rotation.compress"), true)
}

// ValidateAndApplyDefaults validates configuration and fills runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Session ──
	if cfg.Session.DeviceID < 1 {
		return fmt.Errorf("session.device_id must be >= 1, got %d", cfg.Session.DeviceID)
	}
	if cfg.Session.FlushInterval == 0 {
		cfg.Session.FlushInterval = 5
	}
	if cfg.Session.Output == "" {
		return fmt.Errorf("session.output is required")
	}

	// ── Capture ──
	switch cfg.Capture.Engine {
	case "pcap", "afpacket":
	case "file":
		if len(cfg.Capture.Files) == 0 {
			return fmt.Errorf("capture.files is required when capture.engine=file")
		}
	default:
		return fmt.Errorf("unsupported capture.engine: %s (must be pcap/afpacket/file)", cfg.Capture.Engine)
	}
	if cfg.Capture.SnapLen <= 0 {
		return fmt.Errorf("capture.snap_len must be positive, got %d", cfg.Capture.SnapLen)
	}
	if cfg.Capture.ReadTimeout <= 0 {
		cfg.Capture.ReadTimeout = time.Second
	}
	if cfg.Capture.BufferSizeMB <= 0 {
		cfg.Capture.BufferSizeMB = 8
	}
	if cfg.Capture.ReadErrorBackoff < 0 {
		return fmt.Errorf("capture.read_error_backoff must not be negative")
	}

	// ── Workers ──
	if cfg.Workers.Count < 0 {
		return fmt.Errorf("workers.count must not be negative, got %d", cfg.Workers.Count)
	}
	if cfg.Workers.QueueCapacity < 0 {
		return fmt.Errorf("workers.queue_capacity must not be negative, got %d", cfg.Workers.QueueCapacity)
	}
	switch cfg.Workers.DropPolicy {
	case "":
		cfg.Workers.DropPolicy = "block"
	case "block", "head":
	default:
		return fmt.Errorf("invalid workers.drop_policy: %s (must be block/head)", cfg.Workers.DropPolicy)
	}
	if cfg.Errors.MaxQueue < 0 {
		return fmt.Errorf("errors.max_queue must not be negative, got %d", cfg.Errors.MaxQueue)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics.enabled=true")
	}

	return nil
}
