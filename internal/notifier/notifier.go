package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pipelinepulse/internal/adapter/metrics"
	"github.com/pscheid92/pipelinepulse/internal/domain"
	"github.com/pscheid92/pipelinepulse/internal/platform/correlation"
)

var ErrNotifierStopped = errors.New("notifier stopped")

// Notifier runs one schedule per accepted connection.
type Notifier struct {
	hub       *Hub
	clock     clockwork.Clock
	sequencer *Sequencer
	wsMetrics *metrics.WebSocketMetrics

	// mu orders wg.Add in Serve against cancel in Stop.
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*options)

type options struct {
	schedule []domain.Step
}

// WithSchedule replaces domain.DefaultSchedule.
func WithSchedule(steps []domain.Step) Option {
	return func(o *options) { o.schedule = steps }
}

// New validates the schedule, then creates a Notifier and starts its Hub.
// wsMetrics may be nil.
func New(clock clockwork.Clock, wsMetrics *metrics.WebSocketMetrics, opts ...Option) (*Notifier, error) {
	o := options{schedule: domain.DefaultSchedule()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := domain.ValidateSchedule(o.schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		hub:       NewHub(clock, wsMetrics),
		clock:     clock,
		sequencer: NewSequencer(clock, o.schedule),
		wsMetrics: wsMetrics,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Serve takes ownership of an upgraded connection. It starts the connection's
// schedule, then blocks reading client messages until the connection fails.
// Client messages are logged and have no other effect.
func (n *Notifier) Serve(ctx context.Context, conn *websocket.Conn) error {
	connectionID := uuid.New()
	start := n.clock.Now()

	logCtx := correlation.WithConnection(ctx, connectionID.String())
	if err := n.hub.Register(connectionID, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("register connection: %w", err)
	}

	n.mu.Lock()
	if n.ctx.Err() != nil {
		n.mu.Unlock()
		n.hub.Unregister(connectionID)
		return fmt.Errorf("start schedule: %w", ErrNotifierStopped)
	}
	n.wg.Add(1)
	n.mu.Unlock()

	slog.InfoContext(logCtx, "Client connected", "remote_addr", conn.RemoteAddr().String())

	// The schedule is bound to the notifier's lifetime, not the connection's.
	seqCtx := correlation.WithConnection(n.ctx, connectionID.String())
	go func() {
		defer n.wg.Done()
		fired := n.sequencer.Run(seqCtx, start, func(update domain.StatusUpdate) {
			n.deliver(seqCtx, connectionID, update)
		})
		slog.DebugContext(seqCtx, "Schedule finished", "steps_fired", fired)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.DebugContext(logCtx, "Read loop ended", "error", err)
			break
		}
		if n.wsMetrics != nil {
			n.wsMetrics.InboundMessages.Inc()
		}
		slog.InfoContext(logCtx, "Received message", "payload", string(msg))
	}

	n.hub.Unregister(connectionID)
	slog.InfoContext(logCtx, "Client disconnected")
	return nil
}

func (n *Notifier) deliver(ctx context.Context, connectionID uuid.UUID, update domain.StatusUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal status update", "update", update.String(), "error", err)
		return
	}

	if !n.hub.Deliver(connectionID, data) {
		if n.wsMetrics != nil {
			n.wsMetrics.MessagesDropped.Inc()
		}
		slog.DebugContext(ctx, "Status update dropped, connection gone", "stage", update.Stage, "status", update.Status)
		return
	}

	if n.wsMetrics != nil {
		n.wsMetrics.MessagesPublished.WithLabelValues(string(update.Stage), string(update.Status)).Inc()
	}
	slog.DebugContext(ctx, "Status update sent", "stage", update.Stage, "status", update.Status)
}

// ConnectionCount returns the number of live connections.
func (n *Notifier) ConnectionCount() int {
	return n.hub.ConnectionCount()
}

// Ready fails once the notifier is stopped or its hub stops answering.
func (n *Notifier) Ready(ctx context.Context) error {
	if n.ctx.Err() != nil {
		return ErrNotifierStopped
	}
	return n.hub.Ping(ctx)
}

// Schedule returns the steps every connection receives.
func (n *Notifier) Schedule() []domain.Step {
	return n.sequencer.Steps()
}

// Stop cancels pending schedules and closes every connection.
func (n *Notifier) Stop() {
	n.mu.Lock()
	n.cancel()
	n.mu.Unlock()
	n.wg.Wait()
	n.hub.Stop()
}
