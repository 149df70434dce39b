package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hearthwire/matterhub/internal/alias"
	"github.com/hearthwire/matterhub/internal/commissioning"
	"github.com/hearthwire/matterhub/internal/control"
	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/infrastructure/config"
	"github.com/hearthwire/matterhub/internal/infrastructure/logging"
	"github.com/hearthwire/matterhub/internal/matter"
	"github.com/hearthwire/matterhub/internal/matterd"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Backend is the slice of the Matter client the façade consumes: command
// dispatch for the share endpoint and link state for the status page.
// *matter.Client satisfies it.
type Backend interface {
	SendCommand(ctx context.Context, command string, args map[string]any) (json.RawMessage, error)
	IsConnected() bool
	ServerInfo() matter.ServerInfo
	Stats() matter.Stats
}

// LinkReporter reports the connection state of an optional downstream
// sink (MQTT mirror, telemetry). Nil means the sink is not configured.
type LinkReporter interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Store       *device.Store
	Resolver    *alias.Resolver
	Dispatcher  *control.Dispatcher
	Coordinator *commissioning.Coordinator
	Backend     Backend

	// Matterd is the managed backend supervisor; nil when the Matter
	// server runs externally.
	Matterd *matterd.Manager

	// Mirror and Telemetry are optional sinks, reported on /api/status.
	Mirror    LinkReporter
	Telemetry LinkReporter

	// Hub, if set, is used instead of a server-owned hub. Needed when
	// the event subscriber is wired to the hub before the server starts.
	Hub *Hub

	Version string
}

// Server is the HTTP façade for MatterHub.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// event hub. The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	store       *device.Store
	resolver    *alias.Resolver
	dispatcher  *control.Dispatcher
	coordinator *commissioning.Coordinator
	backend     Backend
	matterd     *matterd.Manager
	mirror      LinkReporter
	telemetry   LinkReporter
	version     string

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
	startedAt   time.Time
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, store, resolver,
//     dispatcher, coordinator, backend)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("alias resolver is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("command dispatcher is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("commissioning coordinator is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("matter backend is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		store:       deps.Store,
		resolver:    deps.Resolver,
		dispatcher:  deps.Dispatcher,
		coordinator: deps.Coordinator,
		backend:     deps.Backend,
		matterd:     deps.Matterd,
		mirror:      deps.Mirror,
		telemetry:   deps.Telemetry,
		version:     deps.Version,
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the WebSocket event hub, creating a server-owned one on
// first use. The hub satisfies the event subscriber's observer
// interface, so callers can register it for device fan-out before the
// server starts listening.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
//
// Parameters:
//   - ctx: Context governing background goroutines (hub lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// An externally provided hub is run by its owner.
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	s.startedAt = time.Now().UTC()

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
