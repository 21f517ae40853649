package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/synced-select/internal/entry"
	"github.com/nerrad567/synced-select/internal/infrastructure/config"
	"github.com/nerrad567/synced-select/internal/infrastructure/logging"
	"github.com/nerrad567/synced-select/internal/syncedselect"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EntryService is the subset of *entry.Manager the API drives.
type EntryService interface {
	List(ctx context.Context) ([]entry.Status, error)
	Get(ctx context.Context, entryID string) (*entry.Status, error)
	Create(ctx context.Context, name string, entities []string) (*entry.Entry, error)
	UpdateOptions(ctx context.Context, entryID string, entities []string) (*entry.Entry, error)
	Delete(ctx context.Context, entryID string) error
	Select(ctx context.Context, entryID, option string) error
	Refresh(ctx context.Context, entryID string) ([]string, error)
	Candidates(ctx context.Context, entryID string) ([]string, error)
	AddStateListener(fn entry.StateListener)
}

// HealthChecker reports whether a backing connection is usable.
type HealthChecker interface {
	IsConnected() bool
}

// Pinger actively checks a backing service. *influxdb.Client satisfies it.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Entries  EntryService

	// HomeAssistant and MQTT are optional; when set they are reported by /health.
	HomeAssistant HealthChecker
	MQTT          HealthChecker

	// InfluxDB is optional; leave nil when telemetry is disabled.
	InfluxDB Pinger

	Version string
}

// Server is the HTTP API server for Synced Select.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	entries     EntryService
	ha          HealthChecker
	mqtt        HealthChecker
	influx      Pinger
	version     string
	server      *http.Server
	hub         *Hub
	rateLimiter *rateLimiter
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The WebSocket hub is
// created here so proxy state changes are relayed from the moment the
// listener is registered.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("entry service is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		entries: deps.Entries,
		ha:      deps.HomeAssistant,
		mqtt:    deps.MQTT,
		influx:  deps.InfluxDB,
		version: deps.Version,
		hub:     NewHub(deps.WS, deps.Logger),
	}
	if deps.Security.RateLimit.Enabled {
		s.rateLimiter = newRateLimiter(deps.Security.RateLimit.RequestsPerMinute, deps.Security.RateLimit.Burst)
	}

	s.entries.AddStateListener(s.broadcastState)
	return s, nil
}

// broadcastState relays a proxy state change to WebSocket subscribers.
func (s *Server) broadcastState(entryID string, state syncedselect.ProxyState) {
	s.hub.Broadcast(ChannelProxyState, map[string]any{
		"entry_id": entryID,
		"state":    state,
	})
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and rate limiter cleanup, builds the router and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	if s.rateLimiter != nil {
		go s.rateLimiter.cleanupLoop(srvCtx)
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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
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
