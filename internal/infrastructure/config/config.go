package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/resources"
)

// FileEnv names the environment variable that points at an optional config
// file (.toml, .yaml or .yml).
const FileEnv = "SURFACE_CONFIG_FILE"

// Provider names accepted by SurfaceConfig.Provider.
const (
	ProviderSoftware = "software"
	ProviderChrome   = "chrome"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	GRPC      GRPCConfig      `toml:"grpc" yaml:"grpc"`
	Surface   SurfaceConfig   `toml:"surface" yaml:"surface"`
	Chrome    ChromeConfig    `toml:"chrome" yaml:"chrome"`
	Software  SoftwareConfig  `toml:"software" yaml:"software"`
	Logging   LogConfig       `toml:"logging" yaml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `envconfig:"PORT" toml:"port" yaml:"port"`
	Host            string   `envconfig:"HOST" toml:"host" yaml:"host"`
	Token           string   `envconfig:"SURFACE_TOKEN" toml:"token" yaml:"token"`
	AllowOrigins    []string `envconfig:"CORS_ORIGINS" toml:"allow_origins" yaml:"allow_origins"`
	ShutdownTimeout Duration `envconfig:"SHUTDOWN_TIMEOUT" toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// GRPCConfig holds gRPC transport configuration.
type GRPCConfig struct {
	Enabled         bool   `envconfig:"GRPC_ENABLED" toml:"enabled" yaml:"enabled"`
	Address         string `envconfig:"GRPC_ADDR" toml:"address" yaml:"address"`
	// MaxMessageBytes is raised to fit a full frame of the largest surface
	MaxMessageBytes int `envconfig:"GRPC_MAX_MESSAGE_BYTES" toml:"max_message_bytes" yaml:"max_message_bytes"`
}

// SurfaceConfig holds multiplexer and pool configuration.
type SurfaceConfig struct {
	Provider        string   `envconfig:"SURFACE_PROVIDER" toml:"provider" yaml:"provider"`
	FrameRate       int      `envconfig:"SURFACE_FRAME_RATE" toml:"frame_rate" yaml:"frame_rate"`
	ResourceRoot    string   `envconfig:"SURFACE_RESOURCE_ROOT" toml:"resource_root" yaml:"resource_root"`
	MaxIdle         int      `envconfig:"SURFACE_MAX_IDLE" toml:"max_idle" yaml:"max_idle"`
	OutboundLimit   int      `envconfig:"SURFACE_OUTBOUND_LIMIT" toml:"outbound_limit" yaml:"outbound_limit"`
	MaxMessageBytes int64    `envconfig:"SURFACE_MAX_MESSAGE_BYTES" toml:"max_message_bytes" yaml:"max_message_bytes"`
	MaxWidth        int      `envconfig:"SURFACE_MAX_WIDTH" toml:"max_width" yaml:"max_width"`
	MaxHeight       int      `envconfig:"SURFACE_MAX_HEIGHT" toml:"max_height" yaml:"max_height"`
	// AllowLocal restricts local navigation to matching globs; empty allows
	// every file under ResourceRoot
	AllowLocal      []string `envconfig:"SURFACE_ALLOW_LOCAL" toml:"allow_local" yaml:"allow_local"`
}

// ChromeConfig holds the Chrome provider configuration.
type ChromeConfig struct {
	ExecPath  string `envconfig:"CHROME_PATH" toml:"exec_path" yaml:"exec_path"`
	RemoteURL string `envconfig:"CHROME_URL" toml:"remote_url" yaml:"remote_url"`
	Headless  bool   `envconfig:"CHROME_HEADLESS" toml:"headless" yaml:"headless"`
	NoSandbox bool   `envconfig:"CHROME_NO_SANDBOX" toml:"no_sandbox" yaml:"no_sandbox"`
	Quality   int    `envconfig:"CHROME_SCREENCAST_QUALITY" toml:"screencast_quality" yaml:"screencast_quality"`
}

// SoftwareConfig holds the software provider configuration.
type SoftwareConfig struct {
	FetchTimeout     Duration `envconfig:"SOFTWARE_FETCH_TIMEOUT" toml:"fetch_timeout" yaml:"fetch_timeout"`
	FetchRetries     int      `envconfig:"SOFTWARE_FETCH_RETRIES" toml:"fetch_retries" yaml:"fetch_retries"`
	ScriptTimeout    Duration `envconfig:"SOFTWARE_SCRIPT_TIMEOUT" toml:"script_timeout" yaml:"script_timeout"`
	MaxDocumentBytes int64    `envconfig:"SOFTWARE_MAX_DOCUMENT_BYTES" toml:"max_document_bytes" yaml:"max_document_bytes"`
	UserAgent        string   `envconfig:"SOFTWARE_USER_AGENT" toml:"user_agent" yaml:"user_agent"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled" yaml:"enabled"`
}

// Load builds the configuration from defaults, then the file named by
// SURFACE_CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or returns the defaults on any error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowOrigins:    []string{"*"},
			ShutdownTimeout: Duration(10 * time.Second),
		},
		GRPC: GRPCConfig{
			Enabled:         true,
			Address:         "0.0.0.0:50071",
			MaxMessageBytes: 16 * 1024 * 1024,
		},
		Surface: SurfaceConfig{
			Provider:        ProviderSoftware,
			FrameRate:       60,
			ResourceRoot:    ".",
			MaxIdle:         0,
			OutboundLimit:   0,
			MaxMessageBytes: 1 << 20,
			MaxWidth:        8192,
			MaxHeight:       8192,
		},
		Chrome: ChromeConfig{
			Headless: true,
			Quality:  80,
		},
		Software: SoftwareConfig{
			FetchTimeout:     Duration(10 * time.Second),
			FetchRetries:     3,
			ScriptTimeout:    Duration(2 * time.Second),
			MaxDocumentBytes: 4 * 1024 * 1024,
			UserAgent:        "surfacehost/1.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("invalid config: empty server port")
	}
	switch c.Surface.Provider {
	case ProviderSoftware, ProviderChrome:
	default:
		return fmt.Errorf("invalid config: unknown surface provider %q", c.Surface.Provider)
	}
	if c.Surface.FrameRate < 1 || c.Surface.FrameRate > 240 {
		return fmt.Errorf("invalid config: frame rate %d out of range 1-240", c.Surface.FrameRate)
	}
	if c.Surface.MaxIdle < 0 || c.Surface.OutboundLimit < 0 {
		return fmt.Errorf("invalid config: negative surface limit")
	}
	if c.Surface.MaxWidth < 1 || c.Surface.MaxWidth > protocol.MaxSurfaceDimension ||
		c.Surface.MaxHeight < 1 || c.Surface.MaxHeight > protocol.MaxSurfaceDimension {
		return fmt.Errorf("invalid config: max surface size %dx%d out of range 1-%d",
			c.Surface.MaxWidth, c.Surface.MaxHeight, protocol.MaxSurfaceDimension)
	}
	if err := resources.Validate(c.Surface.AllowLocal); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.GRPC.Enabled && c.GRPC.Address == "" {
		return fmt.Errorf("invalid config: gRPC enabled without address")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid config: rate limit must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}
