package sandbox

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/remote/internal/config"
)

// Config defines sandbox configuration
type Config struct {
	Timeout       time.Duration // Execution timeout per Execute or Do
	MaxCallStack  int           // Maximum script call depth
	EnableConsole bool          // Install console.log/warn/error/info
}

// Result holds execution result
type Result struct {
	Value    interface{}   // Exported return value
	Console  []LogEntry    // Console output
	Duration time.Duration // Execution time
	Error    error         // Execution error
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error, info
	Message string    // Log message
	Time    time.Time // Timestamp
}

// PoolStats reports pool occupancy
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// DefaultConfig returns the default sandbox configuration
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}

// ConfigFrom builds a sandbox configuration from the service configuration
func ConfigFrom(cfg config.SandboxConfig) Config {
	c := DefaultConfig()
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	if cfg.MaxCallStack > 0 {
		c.MaxCallStack = cfg.MaxCallStack
	}
	return c
}
