package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for client event")
		return Event{}
	}
}

func nextEventOfKind(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	for {
		ev := nextEvent(t, c)
		if ev.Kind == kind {
			return ev
		}
	}
}

func newTestClient(t *testing.T, url, token string) *Client {
	t.Helper()
	c := NewClient(ClientConfig{
		URL:            url,
		Token:          token,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	})
	t.Cleanup(c.Stop)
	return c
}

func TestClient_ConnectsAndReceivesBaseline(t *testing.T) {
	ts := setupTestServer(t)
	createFor(t, ts, 7, "welcome")

	c := newTestClient(t, ts.url, ts.token(t, 7))
	c.Start(context.Background())

	assert.Equal(t, EventConnected, nextEvent(t, c).Kind)
	assert.True(t, c.IsConnected())

	ev := nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind)
	assert.Equal(t, EventUnreadNotifications, ev.Message.Type)

	ev = nextEvent(t, c)
	require.Equal(t, EventMessage, ev.Kind)
	count, err := DecodeCount(ev.Message)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClient_SendRoundTrip(t *testing.T) {
	ts := setupTestServer(t)
	n := createFor(t, ts, 7, "to read")

	c := newTestClient(t, ts.url, ts.token(t, 7))
	c.Start(context.Background())
	nextEventOfKind(t, c, EventConnected)

	require.True(t, c.Send(CommandMarkAsRead, ReadPayload{NotificationID: n.ID}))

	for {
		ev := nextEventOfKind(t, c, EventMessage)
		if ev.Message.Type != EventNotificationRead {
			continue
		}
		id, err := DecodeRead(ev.Message)
		require.NoError(t, err)
		assert.Equal(t, n.ID, id)
		return
	}
}

func TestClient_SendWhileDisconnectedIsDropped(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1/ws/notifications", "tok")
	assert.False(t, c.Send(CommandGetUnreadCount, nil))

	c.Start(context.Background())
	ev := nextEventOfKind(t, c, EventConnectError)
	assert.Error(t, ev.Err)
	assert.False(t, c.IsConnected())
	assert.False(t, c.Send(CommandMarkAllAsRead, nil))
}

func TestClient_AuthErrorIsReported(t *testing.T) {
	ts := setupTestServer(t)

	c := newTestClient(t, ts.url, "not-a-jwt")
	c.Start(context.Background())

	ev := nextEventOfKind(t, c, EventConnectError)
	assert.True(t, IsAuthError(ev.Err))
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	var accepted atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if accepted.Add(1) == 1 {
			// first connection is dropped right away
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, "ws"+strings.TrimPrefix(srv.URL, "http"), "tok")
	c.Start(context.Background())

	nextEventOfKind(t, c, EventConnected)
	nextEventOfKind(t, c, EventDisconnected)
	nextEventOfKind(t, c, EventConnected)
	assert.True(t, c.IsConnected())
	assert.GreaterOrEqual(t, accepted.Load(), int32(2))
}

func TestClient_StopDisconnects(t *testing.T) {
	ts := setupTestServer(t)

	c := newTestClient(t, ts.url, ts.token(t, 3))
	c.Start(context.Background())
	nextEventOfKind(t, c, EventConnected)
	require.Eventually(t, func() bool { return ts.hub.Online(3) == 1 }, time.Second, 10*time.Millisecond)

	c.Stop()

	assert.False(t, c.IsConnected())
	assert.False(t, c.Send(CommandGetUnreadCount, nil))
	require.Eventually(t, func() bool { return ts.hub.Online(3) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClient_RestartKeepsSingleConnection(t *testing.T) {
	ts := setupTestServer(t)

	c := newTestClient(t, ts.url, ts.token(t, 4))
	c.Start(context.Background())
	nextEventOfKind(t, c, EventConnected)

	c.Start(context.Background())
	nextEventOfKind(t, c, EventConnected)

	require.Eventually(t, func() bool { return ts.hub.Online(4) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "connected", EventConnected.String())
	assert.Equal(t, "disconnected", EventDisconnected.String())
	assert.Equal(t, "connect_error", EventConnectError.String())
	assert.Equal(t, "message", EventMessage.String())
}
