package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/pipelinepulse/internal/adapter/metrics"
	"github.com/pscheid92/pipelinepulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stepInterval = 2 * time.Second

// testClient reads frames on its own goroutine. A gorilla connection is
// unusable after a read deadline expires, so "no message yet" checks must not
// rely on read timeouts.
type testClient struct {
	conn     *ws.Conn
	messages chan []byte
	closed   chan error
}

func newTestClient(conn *ws.Conn) *testClient {
	c := &testClient{conn: conn, messages: make(chan []byte, 16), closed: make(chan error, 1)}
	go func() {
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				c.closed <- err
				return
			}
			if msgType == ws.TextMessage {
				c.messages <- msg
			}
		}
	}()
	return c
}

func testNotifier(t *testing.T) (*Notifier, *clockwork.FakeClock, *metrics.WebSocketMetrics, func() *testClient) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	wsMetrics := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	n, err := New(clock, wsMetrics)
	require.NoError(t, err)
	t.Cleanup(n.Stop)

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		_ = n.Serve(r.Context(), conn)
	}))
	t.Cleanup(server.Close)

	dial := func() *testClient {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return newTestClient(conn)
	}

	return n, clock, wsMetrics, dial
}

func waitForNotifierConnections(n *Notifier, expected int) bool {
	for i := 0; i < 200; i++ {
		if n.ConnectionCount() == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func readUpdate(t *testing.T, c *testClient) domain.StatusUpdate {
	t.Helper()

	var msg []byte
	select {
	case msg = <-c.messages:
	case err := <-c.closed:
		t.Fatalf("connection closed while waiting for update: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg, &raw))
	require.Len(t, raw, 2, "wire message must carry exactly stage and status: %s", msg)

	update, err := domain.DecodeStatusUpdate(msg)
	require.NoError(t, err)
	return update
}

func assertNoMessage(t *testing.T, c *testClient) {
	t.Helper()
	select {
	case msg := <-c.messages:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectedUpdates() []domain.StatusUpdate {
	var out []domain.StatusUpdate
	for _, s := range domain.DefaultSchedule() {
		out = append(out, s.Update)
	}
	return out
}

func TestNotifier_SingleConnectionReceivesFullSequence(t *testing.T) {
	n, clock, wsMetrics, dial := testNotifier(t)

	client := dial()
	require.True(t, waitForNotifierConnections(n, 1))

	// Nothing before the first offset.
	clock.Advance(stepInterval - time.Millisecond)
	assertNoMessage(t, client)
	clock.Advance(time.Millisecond)

	var got []domain.StatusUpdate
	for i := 0; i < 7; i++ {
		if i > 0 {
			clock.Advance(stepInterval)
		}
		got = append(got, readUpdate(t, client))
	}
	assert.Equal(t, expectedUpdates(), got)

	// The schedule is exhausted.
	clock.Advance(time.Minute)
	assertNoMessage(t, client)

	assert.Equal(t, 1.0, testutil.ToFloat64(wsMetrics.MessagesPublished.WithLabelValues("deployment", "Success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(wsMetrics.MessagesDropped))
}

func TestNotifier_SimultaneousConnectionsRunIndependently(t *testing.T) {
	n, clock, _, dial := testNotifier(t)

	connA := dial()
	require.True(t, waitForNotifierConnections(n, 1))

	clock.Advance(stepInterval)
	first := readUpdate(t, connA)
	assert.Equal(t, domain.StatusUpdate{Stage: domain.StageCodePushed, Status: domain.StatusSuccess}, first)

	// B connects 2s after A and starts its own sequence from the beginning.
	connB := dial()
	require.True(t, waitForNotifierConnections(n, 2))

	gotA := []domain.StatusUpdate{first}
	var gotB []domain.StatusUpdate
	for i := 0; i < 7; i++ {
		clock.Advance(stepInterval)
		if i < 6 {
			gotA = append(gotA, readUpdate(t, connA))
		}
		gotB = append(gotB, readUpdate(t, connB))
	}

	assert.Equal(t, expectedUpdates(), gotA)
	assert.Equal(t, expectedUpdates(), gotB)
	assertNoMessage(t, connA)
}

func TestNotifier_TriggerDoesNotAlterSchedule(t *testing.T) {
	n, clock, wsMetrics, dial := testNotifier(t)

	client := dial()
	require.True(t, waitForNotifierConnections(n, 1))
	require.NoError(t, client.conn.WriteMessage(ws.TextMessage, []byte(domain.TriggerMessage)))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(wsMetrics.InboundMessages) == 1
	}, time.Second, 5*time.Millisecond)

	// The trigger must not produce anything by itself.
	assertNoMessage(t, client)

	var got []domain.StatusUpdate
	for i := 0; i < 7; i++ {
		clock.Advance(stepInterval)
		got = append(got, readUpdate(t, client))
	}
	assert.Equal(t, expectedUpdates(), got)
}

func TestNotifier_ArbitraryClientPayloadIgnored(t *testing.T) {
	n, clock, wsMetrics, dial := testNotifier(t)

	client := dial()
	require.True(t, waitForNotifierConnections(n, 1))
	require.NoError(t, client.conn.WriteMessage(ws.TextMessage, []byte(`{"stage":"deployment","status":"Success"}`)))
	require.NoError(t, client.conn.WriteMessage(ws.BinaryMessage, []byte{0xff, 0x00}))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(wsMetrics.InboundMessages) == 2
	}, time.Second, 5*time.Millisecond)

	clock.Advance(stepInterval)
	assert.Equal(t, domain.StageCodePushed, readUpdate(t, client).Stage)
}

func TestNotifier_DisconnectDoesNotCancelSchedule(t *testing.T) {
	n, clock, wsMetrics, dial := testNotifier(t)

	client := dial()
	require.True(t, waitForNotifierConnections(n, 1))

	clock.Advance(stepInterval)
	readUpdate(t, client)

	client.conn.Close()
	require.True(t, waitForNotifierConnections(n, 0))

	// The remaining six steps still fire; their sends are dropped.
	clock.Advance(6 * stepInterval)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(wsMetrics.MessagesDropped) == 6
	}, time.Second, 5*time.Millisecond)

	// The notifier keeps serving new clients.
	next := dial()
	require.True(t, waitForNotifierConnections(n, 1))
	clock.Advance(stepInterval)
	assert.Equal(t, domain.StageCodePushed, readUpdate(t, next).Stage)
}

func TestNotifier_StopClosesClientsAndCancelsSchedules(t *testing.T) {
	n, clock, wsMetrics, dial := testNotifier(t)

	client := dial()
	require.True(t, waitForNotifierConnections(n, 1))

	n.Stop()

	select {
	case err := <-client.closed:
		assert.True(t, ws.IsCloseError(err, ws.CloseNormalClosure), "expected normal closure, got %v", err)
	case <-time.After(time.Second):
		t.Fatal("connection was not closed")
	}

	clock.Advance(time.Minute)
	assert.Equal(t, 0.0, testutil.ToFloat64(wsMetrics.MessagesDropped))
}

func TestNotifier_CustomSchedule(t *testing.T) {
	clock := clockwork.NewFakeClock()
	steps := []domain.Step{{Offset: time.Second, Update: domain.StatusUpdate{Stage: domain.StageDeployment, Status: domain.StatusProcessing}}}
	n, err := New(clock, nil, WithSchedule(steps))
	require.NoError(t, err)
	t.Cleanup(n.Stop)

	assert.Equal(t, steps, n.Schedule())
}

func TestNotifier_ServeAfterStop(t *testing.T) {
	n, err := New(clockwork.NewFakeClock(), nil)
	require.NoError(t, err)
	n.Stop()

	server, _ := newTestConnPair(t)
	err = n.Serve(context.Background(), server)
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestNotifier_Ready(t *testing.T) {
	n, err := New(clockwork.NewFakeClock(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n.Ready(ctx))

	n.Stop()
	assert.ErrorIs(t, n.Ready(ctx), ErrNotifierStopped)
}

func TestNotifier_RejectsInvalidSchedule(t *testing.T) {
	tests := []struct {
		name  string
		steps []domain.Step
		want  error
	}{
		{"unknown stage", []domain.Step{{Offset: time.Second, Update: domain.StatusUpdate{Stage: "lint", Status: domain.StatusSuccess}}}, domain.ErrUnknownStage},
		{"unknown status", []domain.Step{{Offset: time.Second, Update: domain.StatusUpdate{Stage: domain.StageDeployment, Status: "Failed"}}}, domain.ErrUnknownStatus},
		{"negative offset", []domain.Step{{Offset: -time.Second, Update: domain.StatusUpdate{Stage: domain.StageDeployment, Status: domain.StatusSuccess}}}, domain.ErrNegativeOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New(clockwork.NewFakeClock(), nil, WithSchedule(tt.steps))
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, n)
		})
	}
}

func TestNotifier_ServeRacingStopReturns(t *testing.T) {
	n, err := New(clockwork.NewFakeClock(), nil)
	require.NoError(t, err)

	const connections = 8
	results := make(chan error, connections)
	for i := 0; i < connections; i++ {
		server, _ := newTestConnPair(t)
		go func() { results <- n.Serve(context.Background(), server) }()
	}

	n.Stop()

	// Every Serve returns: either it registered before Stop and its
	// connection was closed, or it was turned away.
	for i := 0; i < connections; i++ {
		select {
		case err := <-results:
			if err != nil {
				assert.True(t, errors.Is(err, ErrHubStopped) || errors.Is(err, ErrNotifierStopped), "unexpected error %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Serve %d did not return after Stop", i)
		}
	}
}
