package config

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Client    ClientConfig    `mapstructure:"client"`
	Status    StatusConfig    `mapstructure:"status"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig contains server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	RootDir      string `mapstructure:"root_dir"`
	MaxFrameSize string `mapstructure:"max_frame_size"`
	Workers      int    `mapstructure:"workers"`
	ReportErrors bool   `mapstructure:"report_errors"`

	// MaxFrameBytes is MaxFrameSize parsed by Load
	MaxFrameBytes int64 `mapstructure:"-"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ClientConfig contains client-specific configuration
type ClientConfig struct {
	Address        string        `mapstructure:"address"`
	RootDir        string        `mapstructure:"root_dir"`
	MaxFrameSize   string        `mapstructure:"max_frame_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	DialAttempts   int           `mapstructure:"dial_attempts"`
	QueueSize      int           `mapstructure:"queue_size"`

	MaxFrameBytes int64 `mapstructure:"-"`
}

// StatusConfig contains the HTTP status endpoint configuration
type StatusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TelemetryConfig contains telemetry configuration
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	cfg := &Config{}

	// Set defaults
	setDefaults()

	// Unmarshal configuration
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Post-process configuration
	if err := postProcess(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "")
	viper.SetDefault("server.port", 8189)
	viper.SetDefault("server.root_dir", "serverDir")
	viper.SetDefault("server.max_frame_size", "200MiB")
	viper.SetDefault("server.workers", 0) // No limit
	viper.SetDefault("server.report_errors", true)

	// Client defaults
	viper.SetDefault("client.address", "localhost:8189")
	viper.SetDefault("client.root_dir", "clientDir")
	viper.SetDefault("client.max_frame_size", "200MiB")
	viper.SetDefault("client.request_timeout", 10*time.Second)
	viper.SetDefault("client.dial_timeout", 5*time.Second)
	viper.SetDefault("client.dial_attempts", 3)
	viper.SetDefault("client.queue_size", 64)

	// Status defaults
	viper.SetDefault("status.enabled", false)
	viper.SetDefault("status.port", 8190)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", false)

	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)

	// Environment variable mappings
	_ = viper.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func postProcess(cfg *Config) error {
	var err error

	if cfg.Server.Port <= 0 || cfg.Server.Port > math.MaxUint16 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Server.Workers < 0 {
		return fmt.Errorf("server workers must not be negative, got %d", cfg.Server.Workers)
	}

	if cfg.Server.MaxFrameBytes, err = ParseFrameSize(cfg.Server.MaxFrameSize); err != nil {
		return fmt.Errorf("server.max_frame_size: %w", err)
	}
	if cfg.Client.MaxFrameBytes, err = ParseFrameSize(cfg.Client.MaxFrameSize); err != nil {
		return fmt.Errorf("client.max_frame_size: %w", err)
	}

	// Ensure root directories are absolute
	if cfg.Server.RootDir, err = absDir(cfg.Server.RootDir); err != nil {
		return err
	}
	if cfg.Client.RootDir, err = absDir(cfg.Client.RootDir); err != nil {
		return err
	}

	if cfg.Client.QueueSize <= 0 {
		cfg.Client.QueueSize = 1
	}
	if cfg.Client.DialAttempts <= 0 {
		cfg.Client.DialAttempts = 1
	}
	if cfg.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client request timeout must be positive, got %s", cfg.Client.RequestTimeout)
	}

	return nil
}

// ParseFrameSize parses a human readable size such as "200MiB". The result
// must fit the 32-bit frame length prefix.
func ParseFrameSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(n), nil
}

func absDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("root directory is not specified")
	}
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	return filepath.Abs(dir)
}
