// MatterHub - Matter device bridge
//
// MatterHub sits between a python-matter-server controller and local
// HTTP/WebSocket clients. It keeps a live cache of every commissioned
// device, resolves human-friendly names to canonical device IDs, and
// exposes a small control and commissioning API designed for wall
// panels and home dashboards.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/hearthwire/matterhub/migrations"

	"github.com/hearthwire/matterhub/internal/alias"
	"github.com/hearthwire/matterhub/internal/api"
	"github.com/hearthwire/matterhub/internal/bridge"
	"github.com/hearthwire/matterhub/internal/commissioning"
	"github.com/hearthwire/matterhub/internal/control"
	"github.com/hearthwire/matterhub/internal/device"
	"github.com/hearthwire/matterhub/internal/infrastructure/config"
	"github.com/hearthwire/matterhub/internal/infrastructure/database"
	"github.com/hearthwire/matterhub/internal/infrastructure/logging"
	"github.com/hearthwire/matterhub/internal/infrastructure/mqtt"
	"github.com/hearthwire/matterhub/internal/infrastructure/telemetry"
	"github.com/hearthwire/matterhub/internal/matter"
	"github.com/hearthwire/matterhub/internal/matterd"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// A .env file is a development convenience; absence is normal.
	_ = godotenv.Load()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting MatterHub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration. A missing file falls back to defaults so a
	// fresh install starts without any setup.
	configPath := getConfigPath()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database. Persistence is a durability layer, not a startup
	// dependency: an unopenable database degrades the bridge to live
	// state only, it never keeps it from serving.
	var (
		deviceRepo device.Repository
		aliasRepo  alias.Repository
	)
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		log.Error("opening database failed, running without persistence", "error", err)
		db = nil
	}
	if db != nil {
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			log.Error("database migrations failed, running without persistence", "error", migrateErr)
		} else {
			log.Info("database migrations complete")
			deviceRepo = device.NewSQLiteRepository(db.DB)
			aliasRepo = alias.NewSQLiteRepository(db.DB)
		}
	}

	// Initialise the device cache and alias table from their tables.
	// Each slice of state degrades independently: a failed load is
	// logged and the bridge carries on with whatever loaded.
	store := device.NewStore(deviceRepo, device.StoreConfig{
		OccupancyHistoryLimit: cfg.Cache.OccupancyHistoryLimit,
		FlushInterval:         cfg.GetFlushInterval(),
	})
	store.SetLogger(log)
	if loadErr := store.Load(ctx); loadErr != nil {
		log.Warn("device cache load incomplete, continuing with live state", "error", loadErr)
	}

	resolver := alias.NewResolver(aliasRepo, store, alias.ResolverConfig{
		FlushInterval: cfg.GetFlushInterval(),
	})
	resolver.SetLogger(log)
	if loadErr := resolver.Load(ctx); loadErr != nil {
		log.Warn("alias load failed, starting with an empty table", "error", loadErr)
	}
	log.Info("state loaded", "devices", store.Count(), "aliases", resolver.Count())

	// The persistence loops get their own context so their final flush
	// runs before the deferred database close.
	persistCtx, stopPersist := context.WithCancel(context.Background())
	var persistWG sync.WaitGroup
	persistWG.Add(2)
	go func() {
		defer persistWG.Done()
		store.Run(persistCtx)
	}()
	go func() {
		defer persistWG.Done()
		resolver.Run(persistCtx)
	}()
	defer func() {
		log.Info("flushing state")
		stopPersist()
		persistWG.Wait()
	}()

	// Launch the managed Matter server (if enabled)
	var matterdManager *matterd.Manager
	if cfg.Matter.Server.Managed {
		matterdManager, err = startMatterd(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("starting matter server: %w", err)
		}
		defer func() {
			log.Info("stopping matter server")
			if stopErr := matterdManager.Stop(); stopErr != nil {
				log.Error("error stopping matter server", "error", stopErr)
			}
		}()
	} else {
		log.Info("matter server management disabled, expecting external server",
			"url", cfg.MatterURL())
	}

	// Connect to the Matter server. A failure here is fatal: without the
	// controller the bridge has nothing to bridge. Later drops are
	// covered by the client's own reconnect loop.
	client, err := matter.Connect(ctx, matter.Config{
		URL:               cfg.MatterURL(),
		ConnectTimeout:    time.Duration(cfg.Matter.ConnectTimeout) * time.Second,
		ReconnectInterval: time.Duration(cfg.Matter.Reconnect.InitialDelay) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connecting to matter server: %w", err)
	}
	client.SetLogger(log)
	defer func() {
		log.Info("closing matter connection")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing matter connection", "error", closeErr)
		}
	}()
	log.Info("matter server connected", "url", cfg.MatterURL())

	// Commissioning coordinator and control dispatcher
	coordinator := commissioning.New(client, resolver, store, commissioning.Config{
		SessionTimeout: cfg.GetCommissioningTimeout(),
	})
	coordinator.SetLogger(log)
	go coordinator.Run(ctx)

	dispatcher := control.New(client, store)
	dispatcher.SetLogger(log)

	// Event subscriber with its fan-out observers
	subscriber := bridge.NewSubscriber(client, store)
	subscriber.SetLogger(log)
	subscriber.SetNodeBinder(coordinator)

	// Optional MQTT state mirror
	var mirror *bridge.Mirror
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mirror = bridge.NewMirror(mqttClient, mqtt.Topics{})
		mirror.SetLogger(log)
		subscriber.AddObserver(mirror)
	} else {
		log.Info("MQTT mirror disabled")
	}

	// Optional telemetry sink
	var sink *telemetry.Sink
	if cfg.Telemetry.Enabled {
		sink, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting to telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry sink")
			if closeErr := sink.Close(); closeErr != nil {
				log.Error("error closing telemetry sink", "error", closeErr)
			}
		}()
		sink.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected", "url", cfg.Telemetry.URL, "bucket", cfg.Telemetry.Bucket)

		subscriber.AddObserver(bridge.NewRecorder(sink))
	} else {
		log.Info("telemetry disabled")
	}

	// The WebSocket hub is created before the API server so the
	// subscriber can fan events out to browser clients.
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)
	subscriber.AddObserver(hub)

	// Initial sync: the node dump lands in the cache before the API
	// starts answering.
	if startErr := subscriber.Start(ctx); startErr != nil {
		return fmt.Errorf("starting event subscriber: %w", startErr)
	}
	log.Info("event subscriber started", "devices", store.Count())

	// API server
	deps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Store:       store,
		Resolver:    resolver,
		Dispatcher:  dispatcher,
		Coordinator: coordinator,
		Backend:     client,
		Matterd:     matterdManager,
		Hub:         hub,
		Version:     version,
	}
	if mirror != nil {
		deps.Mirror = mirror
	}
	if sink != nil {
		deps.Telemetry = sink
	}

	apiServer, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, client, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Telemetry sink / MQTT (if enabled)
	// 3. Matter connection
	// 4. Managed Matter server
	// 5. Persistence flush
	// 6. Database

	log.Info("MatterHub stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MATTERHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MATTERHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startMatterd launches the managed python-matter-server subprocess and
// waits for it to accept connections.
//
// Parameters:
//   - ctx: Context for startup/cancellation
//   - cfg: Application configuration
//   - log: Logger instance
//
// Returns:
//   - *matterd.Manager: Running server manager
//   - error: If the server fails to start or never becomes ready
func startMatterd(ctx context.Context, cfg *config.Config, log *logging.Logger) (*matterd.Manager, error) {
	manager, err := matterd.NewManager(matterd.Config{
		Managed:            true,
		Python:             cfg.Matter.Server.Python,
		StoragePath:        cfg.Matter.Server.StoragePath,
		Port:               cfg.MatterServerPort(),
		RestartOnFailure:   cfg.Matter.Server.RestartOnFailure,
		RestartDelay:       time.Duration(cfg.Matter.Server.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: cfg.Matter.Server.MaxRestartAttempts,
		StartupTimeout:     time.Duration(cfg.Matter.Server.StartupTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating matter server manager: %w", err)
	}
	manager.SetLogger(log)

	log.Info("starting matter server",
		"python", cfg.Matter.Server.Python,
		"port", cfg.MatterServerPort(),
		"storage_path", cfg.Matter.Server.StoragePath,
	)

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}

	log.Info("matter server ready", "url", manager.URL())
	return manager, nil
}

// healthCheck verifies all long-lived connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check; nil when persistence is disabled
//   - client: Matter server connection to check
//   - apiServer: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, client *matter.Client, apiServer *api.Server) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("matter: %w", err)
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
