package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devicelink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devicelink/internal/journal"
	"github.com/nerrad567/gray-logic-devicelink/internal/mqttclient"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during shutdown.
	gracefulShutdownTimeout = 10 * time.Second

	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// LinkStatus is the read-only view of the MQTT facade the server reports on.
// *mqttclient.Client implements it.
type LinkStatus interface {
	Status() mqttclient.Status
	DeviceID() string
	Subscriptions() []string
	PendingDeliveries() int
}

// HealthChecker is implemented by dependencies that can verify themselves,
// such as the database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the server.
type Deps struct {
	Config  config.HTTPConfig
	Logger  *logging.Logger
	Link    LinkStatus
	Events  journal.Repository // optional
	Metrics http.Handler       // optional
	DB      HealthChecker      // optional
	Version string
}

// Server is the status HTTP server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.HTTPConfig
	logger    *logging.Logger
	link      LinkStatus
	events    journal.Repository
	metrics   http.Handler
	db        HealthChecker
	version   string
	startTime time.Time

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// New creates a server. It does not listen until Start.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger or link is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Link == nil {
		return nil, fmt.Errorf("link is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger.With("component", "api"),
		link:      deps.Link,
		events:    deps.Events,
		metrics:   deps.Metrics,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens synchronously, so a port conflict is returned here rather
// than logged later. Port 0 picks a free port; see Addr.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("listening on %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.addr = ln.Addr()

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.addr.String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
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
