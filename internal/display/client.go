package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/pipelinepulse/internal/domain"
)

const closeGracePeriod = time.Second

// Client is one display connection to the notifier.
type Client struct {
	conn *websocket.Conn
}

// Dial opens the connection. The returned client must be closed.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	slog.InfoContext(ctx, "Connected to WebSocket server", "url", url)
	return &Client{conn: conn}, nil
}

// Trigger sends the start-simulation string. The notifier only logs it.
func (c *Client) Trigger() error {
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(domain.TriggerMessage)); err != nil {
		return fmt.Errorf("send trigger: %w", err)
	}
	return nil
}

// Run applies every received update to surface and calls observe after each
// one with whether a stage element matched. It returns nil when ctx ends or
// the server closes normally. An undecodable message ends Run with an error.
func (c *Client) Run(ctx context.Context, surface Surface, observe func(update domain.StatusUpdate, matched bool)) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			deadline := time.Now().Add(closeGracePeriod)
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = c.conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		update, err := domain.DecodeStatusUpdate(msg)
		if err != nil {
			return err
		}

		matched := Apply(surface, update)
		if !matched {
			slog.DebugContext(ctx, "No element for stage", "stage", update.Stage)
		}
		if observe != nil {
			observe(update, matched)
		}
	}
}

func (c *Client) Close() error {
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
