package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/pipelinepulse/internal/platform/errors"
)

const rejectReasonOrigin = "origin"

func (s *Server) handleRoot(c echo.Context) error {
	if websocket.IsWebSocketUpgrade(c.Request()) {
		return s.handleWebSocket(c)
	}
	return s.handlePage(c)
}

func (s *Server) handlePage(c echo.Context) error {
	return echo.StaticFileHandler("index.html", s.static)(c)
}

// handleWebSocket upgrades the request and blocks until the client goes away.
// Limits are held for the lifetime of the connection.
func (s *Server) handleWebSocket(c echo.Context) error {
	if !websocket.IsWebSocketUpgrade(c.Request()) {
		return apperrors.ValidationError("websocket upgrade required")
	}

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		s.countRejected(string(reason))
		return limitError(reason).WithContext("remote_ip", ip)
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error response.
		slog.WarnContext(c.Request().Context(), "WebSocket upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}

	if err := s.notifier.Serve(c.Request().Context(), conn); err != nil {
		slog.ErrorContext(c.Request().Context(), "WebSocket connection failed", "remote_ip", ip, "error", err)
	}
	return nil
}

func (s *Server) countRejected(reason string) {
	if s.wsMetrics != nil {
		s.wsMetrics.ConnectionsRejected.WithLabelValues(reason).Inc()
	}
}

func (s *Server) countRejectedOrigin(check func(r *http.Request) bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if check(r) {
			return true
		}
		s.countRejected(rejectReasonOrigin)
		return false
	}
}
