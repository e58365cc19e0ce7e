package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Cycle policies understood by the bridge codec.
const (
	CycleNull   = "null"
	CycleReject = "reject"
)

// Config holds all bridge configuration.
type Config struct {
	Bridge    BridgeConfig    `toml:"bridge" yaml:"bridge"`
	Transport TransportConfig `toml:"transport" yaml:"transport"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Sandbox   SandboxConfig   `toml:"sandbox" yaml:"sandbox"`
	Logging   LogConfig       `toml:"logging" yaml:"logging"`
}

// BridgeConfig holds marshaling and request settings.
type BridgeConfig struct {
	SyncTimeout     time.Duration `envconfig:"BRIDGE_SYNC_TIMEOUT" default:"30s" toml:"sync_timeout" yaml:"sync_timeout"`
	MaxDepth        int           `envconfig:"BRIDGE_MAX_DEPTH" default:"64" toml:"max_depth" yaml:"max_depth"`
	MaxNodes        int           `envconfig:"BRIDGE_MAX_NODES" default:"100000" toml:"max_nodes" yaml:"max_nodes"`
	CyclePolicy     string        `envconfig:"BRIDGE_CYCLE_POLICY" default:"null" toml:"cycle_policy" yaml:"cycle_policy"`
	CaptureLocation bool          `envconfig:"BRIDGE_CAPTURE_LOCATION" default:"true" toml:"capture_location" yaml:"capture_location"`
	Builtins        []string      `envconfig:"BRIDGE_BUILTINS" toml:"builtins" yaml:"builtins"`
}

// TransportConfig holds endpoint and connection settings.
type TransportConfig struct {
	CompressThreshold int           `envconfig:"TRANSPORT_COMPRESS_THRESHOLD" default:"16384" toml:"compress_threshold" yaml:"compress_threshold"`
	ReadLimit         int64         `envconfig:"TRANSPORT_READ_LIMIT" default:"33554432" toml:"read_limit" yaml:"read_limit"`
	BreakerFailures   int           `envconfig:"TRANSPORT_BREAKER_FAILURES" default:"3" toml:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown   time.Duration `envconfig:"TRANSPORT_BREAKER_COOLDOWN" default:"10s" toml:"breaker_cooldown" yaml:"breaker_cooldown"`
	InboundRate       float64       `envconfig:"TRANSPORT_INBOUND_RATE" default:"0" toml:"inbound_rate" yaml:"inbound_rate"`
	InboundBurst      int           `envconfig:"TRANSPORT_INBOUND_BURST" default:"1000" toml:"inbound_burst" yaml:"inbound_burst"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string   `envconfig:"PORT" default:"8000" toml:"port" yaml:"port"`
	Host         string   `envconfig:"HOST" default:"0.0.0.0" toml:"host" yaml:"host"`
	Path         string   `envconfig:"IPC_PATH" default:"/ipc" toml:"path" yaml:"path"`
	AllowOrigins []string `envconfig:"ALLOW_ORIGINS" default:"*" toml:"allow_origins" yaml:"allow_origins"`
}

// SandboxConfig holds script runtime limits.
type SandboxConfig struct {
	Timeout      time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s" toml:"timeout" yaml:"timeout"`
	PoolSize     int           `envconfig:"SANDBOX_POOL_SIZE" default:"4" toml:"pool_size" yaml:"pool_size"`
	MaxCallStack int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024" toml:"max_call_stack" yaml:"max_call_stack"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development" yaml:"development"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile overlays a TOML or YAML file on top of the environment.
// Keys absent from the file keep their environment or default value.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the bridge cannot run with.
func (c *Config) Validate() error {
	switch c.Bridge.CyclePolicy {
	case CycleNull, CycleReject:
	default:
		return fmt.Errorf("invalid cycle policy %q", c.Bridge.CyclePolicy)
	}
	if c.Bridge.MaxDepth <= 0 || c.Bridge.MaxNodes <= 0 {
		return fmt.Errorf("descriptor limits must be positive")
	}
	if c.Bridge.SyncTimeout <= 0 {
		return fmt.Errorf("sync timeout must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Bridge: BridgeConfig{
			SyncTimeout:     30 * time.Second,
			MaxDepth:        64,
			MaxNodes:        100000,
			CyclePolicy:     CycleNull,
			CaptureLocation: true,
		},
		Transport: TransportConfig{
			CompressThreshold: 16 << 10,
			ReadLimit:         32 << 20,
			BreakerFailures:   3,
			BreakerCooldown:   10 * time.Second,
			InboundBurst:      1000,
		},
		Server: ServerConfig{
			Port:         "8000",
			Host:         "0.0.0.0",
			Path:         "/ipc",
			AllowOrigins: []string{"*"},
		},
		Sandbox: SandboxConfig{
			Timeout:      5 * time.Second,
			PoolSize:     4,
			MaxCallStack: 1024,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
