package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/device"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/dhcp"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/config"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/logging"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/presence"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/settings"
	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/stream"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by optional infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Service     *presence.Service
	Ingester    *dhcp.Ingester
	Settings    *settings.Store
	Broadcaster *stream.Broadcaster
	// Prometheus serves /metrics when set.
	Prometheus http.Handler
	// Checks are reported by /health, keyed by component name.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server for the presence core.
//
// It manages the HTTP listener, routes, middleware, and stream transports.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	registry    *device.Registry
	service     *presence.Service
	ingester    *dhcp.Ingester
	settings    *settings.Store
	broadcaster *stream.Broadcaster
	ws          *stream.WebSocket
	sse         *stream.SSE
	prometheus  http.Handler
	checks      map[string]HealthChecker
	version     string
	started     time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("presence service is required")
	}
	if deps.Ingester == nil {
		return nil, fmt.Errorf("dhcp ingester is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if deps.Broadcaster == nil {
		return nil, fmt.Errorf("broadcaster is required")
	}

	streamLog := deps.Logger.Component("stream")
	ws := stream.NewWebSocket(deps.Broadcaster, deps.WS)
	ws.SetLogger(streamLog)
	sse := stream.NewSSE(deps.Broadcaster, time.Duration(deps.WS.PingInterval)*time.Second)
	sse.SetLogger(streamLog)

	return &Server{
		cfg:         deps.Config,
		logger:      deps.Logger,
		registry:    deps.Registry,
		service:     deps.Service,
		ingester:    deps.Ingester,
		settings:    deps.Settings,
		broadcaster: deps.Broadcaster,
		ws:          ws,
		sse:         sse,
		prometheus:  deps.Prometheus,
		checks:      deps.Checks,
		version:     deps.Version,
		started:     time.Now(),
	}, nil
}

// Handler returns the router. Used by Start and by tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. Binding
// errors such as a port in use are returned directly.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}
	// Long-lived streams end when their queues close.
	srv.RegisterOnShutdown(s.broadcaster.Close)

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
