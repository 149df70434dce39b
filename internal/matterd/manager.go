package matterd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hearthwire/matterhub/internal/process"
)

// Readiness and health check timings.
const (
	// readyPollInterval is how often to probe the WebSocket port while
	// waiting for the server to come up. Interpreter start plus SDK
	// initialisation routinely takes several seconds.
	readyPollInterval = 250 * time.Millisecond

	// dialTimeout is the timeout for individual TCP connection attempts.
	dialTimeout = 500 * time.Millisecond

	// storageDirMode is the permission mode for a created storage
	// directory. Fabric credentials live here; keep group/other out.
	storageDirMode = 0o700
)

// Logger defines the logging interface for the Matter server manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises the Matter server subprocess.
type Manager struct {
	config  Config
	process *process.Manager
	logger  Logger
}

// NewManager creates a Matter server manager.
// Zero-valued tunables take their defaults before validation.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "./matter_storage"
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.MaxRestartAttempts == 0 {
		cfg.MaxRestartAttempts = 10
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matter server config: %w", err)
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the Matter server and blocks until its WebSocket port
// accepts connections. With management disabled it returns immediately.
func (m *Manager) Start(ctx context.Context) error {
	if !m.config.Managed {
		m.logger.Info("matter server management disabled, expecting external server",
			"url", m.config.URL(),
		)
		return nil
	}

	if err := os.MkdirAll(m.config.StoragePath, storageDirMode); err != nil {
		return fmt.Errorf("creating matter storage directory: %w", err)
	}

	args := m.config.BuildArgs()

	m.logger.Info("starting matter server",
		"python", m.config.Python,
		"args", args,
		"port", m.config.Port,
	)

	procConfig := process.Config{
		Name:               "matter-server",
		Binary:             m.config.Python,
		Args:               args,
		RestartOnFailure:   m.config.RestartOnFailure,
		RestartDelay:       m.config.RestartDelay,
		MaxRestartAttempts: m.config.MaxRestartAttempts,
		GracefulTimeout:    m.config.GracefulTimeout,
		OnStart: func() {
			m.logger.Info("matter server process started", "pid", m.process.PID())
		},
		OnStop: func(err error) {
			if err != nil {
				m.logger.Warn("matter server process stopped", "error", err)
			} else {
				m.logger.Info("matter server process stopped")
			}
		},
		OnRestart: func(attempt int) {
			m.logger.Info("matter server restarting", "attempt", attempt)
		},
		HealthCheckInterval: m.config.HealthCheckInterval,
		HealthCheckFunc: func(ctx context.Context) error {
			return m.HealthCheck(ctx)
		},
	}

	m.process = process.NewManager(procConfig)
	m.process.SetLogger(m.logger)

	if err := m.process.Start(ctx); err != nil {
		return fmt.Errorf("starting matter server: %w", err)
	}

	if err := m.waitForReady(ctx); err != nil {
		if stopErr := m.process.Stop(); stopErr != nil {
			m.logger.Warn("error stopping matter server after failed readiness check", "error", stopErr)
		}
		return fmt.Errorf("matter server failed to become ready: %w", err)
	}

	m.logger.Info("matter server ready",
		"url", m.config.URL(),
		"storage_path", m.config.StoragePath,
	)

	return nil
}

// waitForReady polls the server's WebSocket port until it accepts TCP
// connections or the startup timeout passes.
func (m *Manager) waitForReady(ctx context.Context) error {
	addr := fmt.Sprintf("localhost:%d", m.config.Port)
	deadline := time.Now().Add(m.config.StartupTimeout)

	m.logger.Debug("waiting for matter server to be ready", "address", addr)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled while waiting for matter server: %w", ctx.Err())
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for matter server on %s after %v", addr, m.config.StartupTimeout)
		}

		if !m.process.IsRunning() {
			lastErr := m.process.LastError()
			if lastErr != nil {
				return fmt.Errorf("matter server process exited: %w", lastErr)
			}
			return errors.New("matter server process exited unexpectedly")
		}

		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		time.Sleep(readyPollInterval)
	}
}

// Stop gracefully stops the Matter server.
func (m *Manager) Stop() error {
	if !m.config.Managed || m.process == nil {
		return nil
	}

	m.logger.Info("stopping matter server")
	return m.process.Stop()
}

// IsRunning returns true if the Matter server is currently running.
// An unmanaged server is assumed to be running; the WebSocket client's
// own reconnect loop is the authority on its actual reachability.
func (m *Manager) IsRunning() bool {
	if !m.config.Managed {
		return true
	}
	if m.process == nil {
		return false
	}
	return m.process.IsRunning()
}

// IsManaged returns true if this manager controls the server process.
func (m *Manager) IsManaged() bool {
	return m.config.Managed
}

// URL returns the WebSocket URL of the managed server.
func (m *Manager) URL() string {
	return m.config.URL()
}

// HealthCheck verifies the Matter server is alive and accepting
// connections.
//
// Two layers: process state via /proc, which catches stopped and
// zombie states the exit monitor cannot see, then a TCP dial of the
// WebSocket port, which catches an interpreter that is running but no
// longer serving.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if !m.config.Managed {
		return nil
	}

	if m.process != nil {
		if pid := m.process.PID(); pid > 0 {
			if err := checkProcessState(pid); err != nil {
				return err
			}
		}
	}

	addr := fmt.Sprintf("localhost:%d", m.config.Port)
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("matter server not accepting connections on %s: %w", addr, err)
	}
	conn.Close()

	return nil
}

// Stats returns current statistics for the Matter server.
func (m *Manager) Stats() Stats {
	stats := Stats{
		Managed: m.config.Managed,
		URL:     m.config.URL(),
	}

	if m.process != nil {
		procStats := m.process.Stats()
		stats.Status = string(procStats.Status)
		stats.PID = procStats.PID
		stats.Uptime = procStats.Uptime
		stats.RestartCount = procStats.RestartCount
		stats.LastError = procStats.LastError
	} else if !m.config.Managed {
		stats.Status = "external"
	} else {
		stats.Status = "stopped"
	}

	return stats
}

// Stats holds statistics about the Matter server process.
type Stats struct {
	Managed      bool          `json:"managed"`
	Status       string        `json:"status"`
	URL          string        `json:"url"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// checkProcessState reads /proc/PID/stat to verify the process is in a
// healthy state. The state field follows the parenthesised comm field,
// which may itself contain spaces.
func checkProcessState(pid int) error {
	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	data, err := os.ReadFile(statPath)
	if err != nil {
		return fmt.Errorf("cannot read process state: %w", err)
	}

	statStr := string(data)
	closeParenIdx := strings.LastIndex(statStr, ")")
	if closeParenIdx == -1 || closeParenIdx+2 >= len(statStr) {
		return fmt.Errorf("invalid /proc/stat format")
	}

	fields := strings.Fields(statStr[closeParenIdx+2:])
	if len(fields) < 1 {
		return fmt.Errorf("invalid /proc/stat format: no state field")
	}

	switch state := fields[0]; state {
	case "T", "t":
		return fmt.Errorf("matter server process is stopped (state=%s)", state)
	case "Z":
		return fmt.Errorf("matter server process is zombie (state=%s)", state)
	case "X", "x":
		return fmt.Errorf("matter server process is dead (state=%s)", state)
	default:
		return nil
	}
}
