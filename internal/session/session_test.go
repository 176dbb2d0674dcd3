package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intranet/internal/domain/notification"
	"intranet/internal/effects"
	"intranet/internal/pkg/response"
	"intranet/internal/realtime"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type recordingToaster struct {
	mu     sync.Mutex
	toasts []effects.Toast
}

func (r *recordingToaster) Show(t effects.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recordingToaster) all() []effects.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]effects.Toast(nil), r.toasts...)
}

type countingAudio struct {
	calls atomic.Int32
}

func (a *countingAudio) Play(context.Context) error {
	a.calls.Add(1)
	return nil
}

// fakeServer speaks the notification protocol on /ws/notifications and serves the REST API.
type fakeServer struct {
	srv      *httptest.Server
	baseline [][]byte
	conns    chan *websocket.Conn
	commands chan realtime.Envelope
	apiFails bool
}

func newFakeServer(t *testing.T, baseline ...[]byte) *fakeServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fs := &fakeServer{
		baseline: baseline,
		conns:    make(chan *websocket.Conn, 4),
		commands: make(chan realtime.Envelope, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	r := gin.New()
	r.GET("/ws/notifications", func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range fs.baseline {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
		fs.conns <- conn
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env realtime.Envelope
			if json.Unmarshal(raw, &env) == nil {
				fs.commands <- env
			}
		}
	})
	confirm := func(c *gin.Context) {
		if fs.apiFails {
			response.Error(c, http.StatusInternalServerError, "DELETE_FAILED", "boom")
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
	r.DELETE("/api/v1/notifications/:id", confirm)
	r.POST("/api/v1/notifications/:id/archive", confirm)

	fs.srv = httptest.NewServer(r)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) options() Options {
	return Options{
		WebSocketURL:   "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws/notifications",
		APIBaseURL:     fs.srv.URL + "/api/v1",
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}
}

func (fs *fakeServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(waitFor):
		t.Fatal("client never connected")
		return nil
	}
}

func (fs *fakeServer) waitCommand(t *testing.T) realtime.Envelope {
	t.Helper()
	select {
	case env := <-fs.commands:
		return env
	case <-time.After(waitFor):
		t.Fatal("no command received")
		return realtime.Envelope{}
	}
}

func frame(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := realtime.Encode(eventType, payload)
	require.NoError(t, err)
	return data
}

func push(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame(t, eventType, payload)))
}

func sample(id string) notification.Notification {
	return notification.Notification{
		ID:        id,
		Type:      notification.TypeEventCreated,
		Title:     "Event " + id,
		Priority:  notification.PriorityMedium,
		CreatedAt: time.Now().UTC(),
	}
}

func startSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s := New("tok", opts)
	s.Start(context.Background())
	t.Cleanup(s.Close)
	return s
}

func TestSession_HydratesFromBaseline(t *testing.T) {
	fs := newFakeServer(t,
		frame(t, realtime.EventUnreadNotifications, []notification.Notification{sample("b"), sample("a")}),
		frame(t, realtime.EventUnreadCount, realtime.CountPayload{Count: 5}),
	)
	s := startSession(t, fs.options())

	require.Eventually(t, func() bool { return s.UnreadCount() == 5 }, waitFor, tick)
	assert.True(t, s.IsConnected())

	items := s.Notifications()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "a", items[1].ID)
}

func TestSession_UrgentNotificationToastsOnce(t *testing.T) {
	fs := newFakeServer(t)
	toaster := &recordingToaster{}
	audio := &countingAudio{}
	opts := fs.options()
	opts.Toaster = toaster
	opts.Audio = audio
	s := startSession(t, opts)
	conn := fs.waitConn(t)

	n := notification.Notification{
		ID:       "u1",
		Type:     notification.TypeContentFlagged,
		Title:    "Post flagged",
		Priority: notification.PriorityUrgent,
	}
	push(t, conn, realtime.EventNewNotification, n)
	push(t, conn, realtime.EventNewNotification, n)
	push(t, conn, realtime.EventUnreadCount, realtime.CountPayload{Count: 1})

	require.Eventually(t, func() bool { return s.UnreadCount() == 1 && s.set.Len() == 1 }, waitFor, tick)
	// the count frame was sent last, so both duplicates have been processed
	require.Eventually(t, func() bool { return len(toaster.all()) == 1 }, waitFor, tick)

	toast := toaster.all()[0]
	assert.Equal(t, effects.StyleError, toast.Style)
	assert.Equal(t, 10*time.Second, toast.Duration)
	assert.Empty(t, toast.AvatarURL)
	assert.Equal(t, int32(1), audio.calls.Load())
}

func TestSession_ReadEchoUpdatesState(t *testing.T) {
	fs := newFakeServer(t,
		frame(t, realtime.EventUnreadNotifications, []notification.Notification{sample("a"), sample("b")}),
		frame(t, realtime.EventUnreadCount, realtime.CountPayload{Count: 2}),
	)
	s := startSession(t, fs.options())
	conn := fs.waitConn(t)
	require.Eventually(t, func() bool { return s.UnreadCount() == 2 }, waitFor, tick)

	push(t, conn, realtime.EventNotificationRead, realtime.ReadPayload{NotificationID: "a"})
	push(t, conn, realtime.EventNotificationRead, realtime.ReadPayload{NotificationID: "a"})
	require.Eventually(t, func() bool { return s.UnreadCount() == 1 }, waitFor, tick)

	push(t, conn, realtime.EventAllNotificationsRead, nil)
	require.Eventually(t, func() bool { return s.UnreadCount() == 0 }, waitFor, tick)
	for _, n := range s.Notifications() {
		assert.True(t, n.IsRead)
	}
}

func TestSession_MarkAsReadSendsCommand(t *testing.T) {
	fs := newFakeServer(t, frame(t, realtime.EventUnreadNotifications, []notification.Notification{sample("a")}))
	s := startSession(t, fs.options())
	fs.waitConn(t)
	require.Eventually(t, s.IsConnected, waitFor, tick)

	s.MarkAsRead("a")

	env := fs.waitCommand(t)
	assert.Equal(t, realtime.CommandMarkAsRead, env.Type)
	id, err := realtime.DecodeRead(env)
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	n, ok := s.set.Get("a")
	require.True(t, ok)
	assert.False(t, n.IsRead)
}

func TestSession_MarkAsReadWhileDisconnectedIsNoop(t *testing.T) {
	fs := newFakeServer(t)
	opts := fs.options()
	fs.srv.Close()

	s := startSession(t, opts)
	assert.False(t, s.IsConnected())

	assert.NotPanics(t, func() {
		s.MarkAsRead("a")
		s.MarkAllAsRead()
		s.RefreshUnreadCount()
	})
	assert.Empty(t, s.Notifications())
	assert.Zero(t, s.UnreadCount())
}

func TestSession_OfflineDeleteLeavesState(t *testing.T) {
	fs := newFakeServer(t, frame(t, realtime.EventUnreadNotifications, []notification.Notification{sample("a")}))
	api := httptest.NewServer(http.NotFoundHandler())
	api.Close()

	toaster := &recordingToaster{}
	opts := fs.options()
	opts.APIBaseURL = api.URL + "/api/v1"
	opts.Toaster = toaster
	s := startSession(t, opts)
	require.Eventually(t, func() bool { return len(s.Notifications()) == 1 }, waitFor, tick)

	err := s.Delete(context.Background(), "a")

	require.Error(t, err)
	assert.Len(t, s.Notifications(), 1)
	toasts := toaster.all()
	require.Len(t, toasts, 1)
	assert.Equal(t, effects.StyleError, toasts[0].Style)
}

func TestSession_ArchiveRemovesOnSuccess(t *testing.T) {
	fs := newFakeServer(t, frame(t, realtime.EventUnreadNotifications, []notification.Notification{sample("a"), sample("b")}))
	s := startSession(t, fs.options())
	require.Eventually(t, func() bool { return len(s.Notifications()) == 2 }, waitFor, tick)

	require.NoError(t, s.Archive(context.Background(), "a"))

	items := s.Notifications()
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
}

func TestSession_Subscribe(t *testing.T) {
	fs := newFakeServer(t)
	s := startSession(t, fs.options())
	conn := fs.waitConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := s.Subscribe(ctx)

	first := <-feed
	assert.Empty(t, first.Notifications)

	push(t, conn, realtime.EventNewNotification, sample("x"))

	require.Eventually(t, func() bool {
		select {
		case snap := <-feed:
			return len(snap.Notifications) == 1
		default:
			return false
		}
	}, waitFor, tick)

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-feed
		return !open
	}, waitFor, tick)
}

func TestSession_CloseStopsEverything(t *testing.T) {
	fs := newFakeServer(t, frame(t, realtime.EventUnreadNotifications, []notification.Notification{sample("a")}))
	s := New("tok", fs.options())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return len(s.Notifications()) == 1 }, waitFor, tick)

	s.Close()
	s.Close()

	assert.Empty(t, s.Notifications())
	assert.Zero(t, s.UnreadCount())
	assert.False(t, s.IsConnected())
	assert.ErrorIs(t, s.Delete(context.Background(), "a"), ErrSessionClosed)

	_, open := <-s.Subscribe(context.Background())
	assert.False(t, open)
}

func TestManager_LogoutClearsState(t *testing.T) {
	fs := newFakeServer(t,
		frame(t, realtime.EventUnreadNotifications, []notification.Notification{sample("a")}),
		frame(t, realtime.EventUnreadCount, realtime.CountPayload{Count: 3}),
	)
	m := NewManager(fs.options())
	t.Cleanup(m.Close)

	s := m.SetAuth(context.Background(), "tok", true)
	require.NotNil(t, s)
	require.Eventually(t, func() bool { return s.UnreadCount() == 3 }, waitFor, tick)

	assert.Nil(t, m.SetAuth(context.Background(), "", false))
	assert.Nil(t, m.Current())
	assert.Empty(t, s.Notifications())
	assert.Zero(t, s.UnreadCount())
	assert.False(t, s.IsConnected())
}

func TestManager_ReauthReplacesSession(t *testing.T) {
	fs := newFakeServer(t)
	m := NewManager(fs.options())
	t.Cleanup(m.Close)

	first := m.SetAuth(context.Background(), "tok-1", true)
	second := m.SetAuth(context.Background(), "tok-2", true)

	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Same(t, second, m.Current())
	assert.True(t, first.closed.Load())

	assert.Nil(t, m.SetAuth(context.Background(), "", true))
}
