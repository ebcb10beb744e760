package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/tagwatch-core/internal/catalog"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/config"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/logging"
	"github.com/nerrad567/tagwatch-core/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ConnectionManager is the part of the monitor the API drives.
// *monitor.Manager satisfies it.
type ConnectionManager interface {
	CreateConnection(ctx context.Context, conn catalog.Connection) error
	StopConnection(ctx context.Context, id int64)
	AddNewConnection(ctx context.Context, id int64) error
	UpdateConnection(ctx context.Context, id int64, changes catalog.ConnectionChanges) error
	IsActive(id int64) bool
	Status(id int64) bool
	ActiveConnections() []int64
}

// LiveValues exposes the last value seen per tag. *engine.Cache satisfies it.
type LiveValues interface {
	Snapshot() map[int64]float64
	Len() int
}

// BrokerStatus reports whether an outbound relay is connected.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Metrics config.MetricsConfig
	Logger  *logging.Logger
	Store   catalog.Store
	Manager ConnectionManager
	Live    LiveValues

	// Optional.
	Collectors *metrics.Metrics
	MQTT       BrokerStatus
	NATS       BrokerStatus
	Hub        *Hub // If set, the server uses this hub instead of creating its own
	Version    string
}

// Server is the HTTP API server for Tagwatch Core.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	metricsCfg config.MetricsConfig
	logger     *logging.Logger
	store      catalog.Store
	manager    ConnectionManager
	live       LiveValues
	collectors *metrics.Metrics
	mqtt       BrokerStatus
	nats       BrokerStatus
	version    string
	startTime  time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("connection manager is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		metricsCfg: deps.Metrics,
		logger:     deps.Logger,
		store:      deps.Store,
		manager:    deps.Manager,
		live:       deps.Live,
		collectors: deps.Collectors,
		mqtt:       deps.MQTT,
		nats:       deps.NATS,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	// The monitor publishes into the hub, so main usually creates it first.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.Hub().Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
