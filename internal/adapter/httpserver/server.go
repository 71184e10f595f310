package httpserver

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/pipelinepulse/internal/adapter/metrics"
	"github.com/pscheid92/pipelinepulse/internal/platform/config"
	"github.com/pscheid92/pipelinepulse/web"
)

// connectionServer takes ownership of upgraded WebSocket connections.
type connectionServer interface {
	Serve(ctx context.Context, conn *websocket.Conn) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	notifier connectionServer
	upgrader websocket.Upgrader
	limits   *ConnectionLimits
	static   fs.FS

	registry    *prometheus.Registry
	wsMetrics   *metrics.WebSocketMetrics
	httpMetrics *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the notifier into an echo server. wsMetrics must be
// registered on registry by the caller since the notifier shares it.
func NewServer(cfg *config.Config, notifier connectionServer, clock clockwork.Clock, registry *prometheus.Registry, wsMetrics *metrics.WebSocketMetrics, healthChecks []HealthCheck) (*Server, error) {
	static, err := fs.Sub(web.StaticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static files: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		notifier:     notifier,
		limits:       NewConnectionLimits(clock, cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		static:       static,
		registry:     registry,
		wsMetrics:    wsMetrics,
		httpMetrics:  metrics.NewHTTPMetrics(registry),
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.countRejectedOrigin(NewCheckOrigin(cfg.Origins(), cfg.IsDevelopment())),
	}

	srv.registerRoutes()

	return srv, nil
}

// Listen binds the listen address without serving yet, so callers can
// announce readiness only once clients are able to connect.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.config.ListenAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr(), err)
	}
	s.echo.Listener = ln
	return ln.Addr(), nil
}

// Start serves until Shutdown. It binds the address itself unless Listen
// was called first.
func (s *Server) Start() error {
	if err := s.echo.Start(s.config.ListenAddr()); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests. Upgraded connections are hijacked and
// outlive it; the notifier closes those.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
