package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pipelinepulse/internal/adapter/metrics"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

var ErrHubStopped = errors.New("hub stopped")

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connectionID uuid.UUID
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseHubCmd
	connectionID uuid.UUID
}

type deliverCmd struct {
	baseHubCmd
	connectionID uuid.UUID
	data         []byte
	replyChannel chan bool
}

type connectionCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns every live connection. All map access happens on the run goroutine.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	connections map[uuid.UUID]*clientWriter
	wsMetrics   *metrics.WebSocketMetrics
	done        chan struct{}
	stopTimeout time.Duration
}

// NewHub starts the hub goroutine. wsMetrics may be nil.
func NewHub(clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, 256),
		clock:       clock,
		connections: make(map[uuid.UUID]*clientWriter),
		wsMetrics:   wsMetrics,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// send enqueues cmd unless the hub has already exited.
func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// Register starts a writer for conn under connectionID.
func (h *Hub) Register(connectionID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !h.send(registerCmd{connectionID: connectionID, connection: conn, errorChannel: errCh}) {
		return ErrHubStopped
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-h.done:
		return ErrHubStopped
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister stops the connection's writer and closes it. Unknown IDs are ignored.
func (h *Hub) Unregister(connectionID uuid.UUID) {
	h.send(unregisterCmd{connectionID: connectionID})
}

// Deliver queues data for the connection and reports whether it was accepted.
// It returns false when the connection is gone, which is the expected outcome
// for schedules that outlive their client.
func (h *Hub) Deliver(connectionID uuid.UUID, data []byte) bool {
	replyCh := make(chan bool, 1)
	if !h.send(deliverCmd{connectionID: connectionID, data: data, replyChannel: replyCh}) {
		return false
	}

	select {
	case ok := <-replyCh:
		return ok
	case <-h.done:
		return false
	}
}

// ConnectionCount returns the number of registered connections, or -1 if the
// hub did not answer in time.
func (h *Hub) ConnectionCount() int {
	replyCh := make(chan int, 1)
	if !h.send(connectionCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("ConnectionCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Ping reports whether the hub goroutine answers a command before ctx ends.
func (h *Hub) Ping(ctx context.Context) error {
	replyCh := make(chan int, 1)
	select {
	case h.cmdCh <- connectionCountCmd{replyChannel: replyCh}:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return fmt.Errorf("hub did not accept command: %w", ctx.Err())
	}

	select {
	case <-replyCh:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return fmt.Errorf("hub did not answer: %w", ctx.Err())
	}
}

// Stop closes every connection with a close frame and waits for the hub
// goroutine to exit.
func (h *Hub) Stop() {
	if !h.send(stopCmd{}) {
		return
	}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", h.stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.closeAll("hub panic")
		}
	}()

	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			h.handleRegister(c)
		case unregisterCmd:
			h.handleUnregister(c.connectionID)
		case deliverCmd:
			c.replyChannel <- h.handleDeliver(c)
		case connectionCountCmd:
			c.replyChannel <- len(h.connections)
		case stopCmd:
			h.handleStop()
			return
		default:
			slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if _, exists := h.connections[c.connectionID]; exists {
		c.errorChannel <- fmt.Errorf("connection %s already registered", c.connectionID)
		return
	}

	h.connections[c.connectionID] = newClientWriter(c.connection, h.clock)

	if h.wsMetrics != nil {
		h.wsMetrics.ActiveConnections.Inc()
		h.wsMetrics.ConnectionsTotal.Inc()
	}

	slog.Debug("Client registered", "connection_id", c.connectionID.String(), "total_clients", len(h.connections))
	c.errorChannel <- nil
}

func (h *Hub) handleUnregister(connectionID uuid.UUID) {
	cw, exists := h.connections[connectionID]
	if !exists {
		return
	}

	cw.stop()
	delete(h.connections, connectionID)

	if h.wsMetrics != nil {
		h.wsMetrics.ActiveConnections.Dec()
	}

	slog.Debug("Client unregistered", "connection_id", connectionID.String(), "remaining_clients", len(h.connections))
}

func (h *Hub) handleDeliver(c deliverCmd) bool {
	cw, exists := h.connections[c.connectionID]
	if !exists {
		return false
	}

	if !cw.enqueue(c.data) {
		slog.Warn("Disconnecting slow client", "connection_id", c.connectionID.String())
		if h.wsMetrics != nil {
			h.wsMetrics.SlowClientsEvicted.Inc()
		}
		h.handleUnregister(c.connectionID)
		return false
	}
	return true
}

func (h *Hub) handleStop() {
	total := len(h.connections)
	slog.Info("Hub shutting down", "connections", total)
	h.closeAll("Server shutting down")
	slog.Info("Hub shutdown complete", "disconnected_clients", total)
}

func (h *Hub) closeAll(reason string) {
	for id, cw := range h.connections {
		cw.stopGraceful(reason)
		delete(h.connections, id)
		if h.wsMetrics != nil {
			h.wsMetrics.ActiveConnections.Dec()
		}
	}
}
