// Tagwatch Core - OPC UA tag monitoring and alarming
//
// This is the main entry point for the Tagwatch Core service. It keeps one
// subscription session per enabled connection, evaluates alarm rules on every
// sample and fans liveData/alarm events out to the UI and the plant brokers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/tagwatch-core/migrations"

	"github.com/nerrad567/tagwatch-core/internal/api"
	"github.com/nerrad567/tagwatch-core/internal/catalog"
	"github.com/nerrad567/tagwatch-core/internal/engine"
	"github.com/nerrad567/tagwatch-core/internal/events"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/database"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/metrics"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/nats"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/postgres"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/retry"
	"github.com/nerrad567/tagwatch-core/internal/monitor"
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

// shutdownTimeout bounds session teardown once a signal arrives.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Tagwatch Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	loc, err := cfg.Alarms.Location()
	if err != nil {
		return fmt.Errorf("loading alarm timezone: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	collectors := metrics.New()

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	sinks := []events.Sink{hub}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		mqttSink := events.NewAsyncSink("mqtt", events.NewMQTTPublisher(mqttClient), events.AsyncOptions{
			Logger: log.Component("mqtt-sink"),
			Drops:  collectors,
		})
		defer closeSink(log, mqttSink)
		sinks = append(sinks, mqttSink)
	} else {
		log.Info("MQTT relay disabled")
	}

	var natsPub *nats.Publisher
	if cfg.NATS.Enabled {
		natsPub, err = nats.Connect(nats.Config{
			URL:           cfg.NATS.URL,
			Name:          "tagwatch-" + cfg.Site.ID,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer func() {
			log.Info("closing NATS connection")
			if closeErr := natsPub.Close(); closeErr != nil {
				log.Error("error closing NATS", "error", closeErr)
			}
		}()
		log.Info("NATS connected", "url", cfg.NATS.URL)

		natsSink := events.NewAsyncSink("nats", natsPub, events.AsyncOptions{
			Logger: log.Component("nats-sink"),
			Drops:  collectors,
		})
		defer closeSink(log, natsSink)
		sinks = append(sinks, natsSink)
	} else {
		log.Info("NATS relay disabled")
	}

	cache := engine.NewCache()
	evaluator := engine.NewEvaluator(cache, store, engine.Options{
		Logger:     log.Component("engine"),
		Metrics:    collectors,
		Location:   loc,
		TimeFormat: cfg.Alarms.TimeFormat,
	})

	manager := newManager(cfg, store, evaluator, events.NewFanout(log.Component("events"), sinks...), collectors, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("stopping sessions")
		manager.Close(closeCtx)
	}()

	if startErr := manager.StartAll(ctx); startErr != nil {
		return fmt.Errorf("starting sessions: %w", startErr)
	}
	log.Info("sessions started", "active", len(manager.ActiveConnections()))

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Metrics:    cfg.Metrics,
		Logger:     log.Component("api"),
		Store:      store,
		Manager:    manager,
		Live:       cache,
		Collectors: collectors,
		Hub:        hub,
		Version:    version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if natsPub != nil {
		deps.NATS = natsPub
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, store, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, sessions, broker
	// sinks and clients, hub, store.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TAGWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TAGWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore opens the definition store selected by database.driver. The
// returned func closes it.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (catalog.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres: %w", err)
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("postgres store ready")
		return catalog.NewPostgresStore(pool), func() {
			log.Info("closing postgres pool")
			pool.Close()
		}, nil

	default:
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database connected", "path", cfg.Database.Path)
		return catalog.NewSQLiteStore(db), func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}, nil
	}
}

// newManager wires the connection manager to the OPC UA transport. Live
// state changes are mirrored into the store's status column.
func newManager(cfg *config.Config, store catalog.Store, evaluator *engine.Evaluator, sink events.Sink, collectors *metrics.Metrics, log *logging.Logger) *monitor.Manager {
	mlog := log.Component("monitor")

	dialer := monitor.NewOPCUADialer(monitor.OPCUAOptions{
		SecurityMode:   cfg.OPCUA.SecurityMode,
		SecurityPolicy: cfg.OPCUA.SecurityPolicy,
		ConnectTimeout: cfg.OPCUA.ConnectTimeout,
		RequestTimeout: cfg.OPCUA.RequestTimeout,
	})

	return monitor.NewManager(store, dialer, evaluator, sink, monitor.Options{
		Logger:  mlog,
		Metrics: collectors,
		Subscription: monitor.SubscriptionParams{
			PublishingInterval: cfg.OPCUA.PublishingInterval,
			SamplingInterval:   cfg.OPCUA.SamplingInterval,
			QueueSize:          cfg.OPCUA.QueueSize,
			DiscardOldest:      cfg.OPCUA.DiscardOldest,
		},
		Retry: retry.Policy{
			MaxAttempts:  cfg.OPCUA.Retry.MaxAttempts,
			InitialDelay: cfg.OPCUA.Retry.InitialDelay,
			MaxDelay:     cfg.OPCUA.Retry.MaxDelay,
			Multiplier:   cfg.OPCUA.Retry.Multiplier,
			Jitter:       cfg.OPCUA.Retry.Jitter,
		},
		OnStatus: func(ctx context.Context, id int64, connected bool) {
			err := store.SetConnectionStatus(ctx, id, connected)
			if err != nil && !errors.Is(err, catalog.ErrNotFound) {
				mlog.Warn("failed to mirror connection status", "connection_id", id, "error", err)
			}
		},
	})
}

func closeSink(log *logging.Logger, sink *events.AsyncSink) {
	log.Info("draining event sink", "sink", sink.Name())
	if err := sink.Close(); err != nil {
		log.Error("error closing event sink", "sink", sink.Name(), "error", err)
	}
}

// healthCheck verifies the store and, when enabled, the MQTT relay.
func healthCheck(ctx context.Context, store catalog.Store, mqttClient *mqtt.Client) error {
	if err := store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}
