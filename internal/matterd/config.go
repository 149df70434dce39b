package matterd

import (
	"fmt"
	"strconv"
	"time"
)

// serverModule is the Python module that implements the Matter server.
const serverModule = "matter_server.server"

// Config holds the configuration for the managed Matter server.
type Config struct {
	// Managed indicates whether the hub should manage the server
	// lifecycle. If false, the server is expected to be running
	// externally and the manager is inert.
	Managed bool

	// Python is the interpreter used to launch the server module.
	// Default: "python3"
	Python string

	// StoragePath is the directory for the server's fabric storage.
	// The server keeps its credentials and node database here; losing
	// it means re-commissioning every device.
	// Default: "./matter_storage"
	StoragePath string

	// Port is the WebSocket port the server listens on.
	Port int

	// LogLevel sets the server's log verbosity (--log-level).
	// Empty leaves the server default.
	LogLevel string

	// RestartOnFailure enables automatic restart if the server crashes.
	RestartOnFailure bool

	// RestartDelay is the time to wait before restarting.
	// Default: 5s
	RestartDelay time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	// Default: 10
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait for graceful shutdown before
	// SIGKILL. Default: 10s
	GracefulTimeout time.Duration

	// StartupTimeout is how long to wait for the server port to accept
	// connections after launch. Default: 30s
	StartupTimeout time.Duration

	// HealthCheckInterval is how often the watchdog probes the server.
	// Default: 30s
	HealthCheckInterval time.Duration
}

// Validate checks the configuration for correctness.
// Defaults are applied by NewManager before validation.
func (c *Config) Validate() error {
	if !c.Managed {
		return nil
	}
	if c.Python == "" {
		return fmt.Errorf("python interpreter is required")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storage path is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range [1, 65535]", c.Port)
	}
	return nil
}

// BuildArgs constructs the interpreter arguments for launching the
// server module.
func (c *Config) BuildArgs() []string {
	args := []string{
		"-m", serverModule,
		"--storage-path", c.StoragePath,
		"--port", strconv.Itoa(c.Port),
	}
	if c.LogLevel != "" {
		args = append(args, "--log-level", c.LogLevel)
	}
	return args
}

// URL returns the WebSocket URL clients should dial.
func (c *Config) URL() string {
	return fmt.Sprintf("ws://localhost:%d/ws", c.Port)
}
