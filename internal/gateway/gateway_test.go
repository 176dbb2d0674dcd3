package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intranet/internal/domain/notification"
	"intranet/internal/pkg/response"
	"intranet/internal/realtime"
)

type sentCommand struct {
	command string
	payload any
}

type fakeSender struct {
	mu        sync.Mutex
	connected bool
	sent      []sentCommand
}

func (f *fakeSender) Send(command string, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return false
	}
	f.sent = append(f.sent, sentCommand{command, payload})
	return true
}

type ack struct {
	success bool
	text    string
}

type recordingAck struct {
	acks []ack
}

func (r *recordingAck) Acknowledge(success bool, text string) {
	r.acks = append(r.acks, ack{success, text})
}

func setupTestSet(t *testing.T, ids ...string) *notification.Set {
	t.Helper()
	set := notification.NewSet()
	list := make([]notification.Notification, 0, len(ids))
	for _, id := range ids {
		list = append(list, notification.Notification{ID: id, Title: "n " + id})
	}
	notification.NewReconciler(set).Hydrate(list)
	return set
}

func setupTestAPI(t *testing.T, status int, fail bool) (*APIClient, *[]string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var calls []string
	r := gin.New()
	record := func(c *gin.Context) {
		calls = append(calls, c.Request.Method+" "+c.Request.URL.Path+" "+c.GetHeader("Authorization"))
		if fail {
			response.Error(c, status, "NOT_FOUND", "Notification not found")
			return
		}
		response.Success(c, status, gin.H{"status": "ok"})
	}
	r.DELETE("/api/v1/notifications/:id", record)
	r.POST("/api/v1/notifications/:id/archive", record)
	r.GET("/api/v1/notifications", func(c *gin.Context) {
		response.Success(c, http.StatusOK, notification.NotificationListResponse{
			Notifications: []notification.Notification{{ID: "a", Title: "A"}},
			UnreadCount:   3,
			Total:         1,
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewAPIClient(srv.URL+"/api/v1/", "tok"), &calls
}

func TestGateway_MarkAsReadSendsCommandOnly(t *testing.T) {
	sender := &fakeSender{connected: true}
	set := setupTestSet(t, "a")
	g := New(sender, nil, set, nil, nil)

	g.MarkAsRead("a")

	require.Len(t, sender.sent, 1)
	assert.Equal(t, realtime.CommandMarkAsRead, sender.sent[0].command)
	assert.Equal(t, realtime.ReadPayload{NotificationID: "a"}, sender.sent[0].payload)

	n, ok := set.Get("a")
	require.True(t, ok)
	assert.False(t, n.IsRead, "local state changes only on the server echo")
}

func TestGateway_CommandsDroppedWhileDisconnected(t *testing.T) {
	sender := &fakeSender{}
	set := setupTestSet(t, "a", "b")
	g := New(sender, nil, set, nil, nil)

	g.MarkAsRead("a")
	g.MarkAllAsRead()
	g.RefreshUnreadCount()

	assert.Empty(t, sender.sent)
	assert.Equal(t, 2, set.UnreadCount())
}

func TestGateway_MarkAllAndRefresh(t *testing.T) {
	sender := &fakeSender{connected: true}
	g := New(sender, nil, notification.NewSet(), nil, nil)

	g.MarkAllAsRead()
	g.RefreshUnreadCount()
	g.MarkAsRead("")

	require.Len(t, sender.sent, 2)
	assert.Equal(t, realtime.CommandMarkAllAsRead, sender.sent[0].command)
	assert.Nil(t, sender.sent[0].payload)
	assert.Equal(t, realtime.CommandGetUnreadCount, sender.sent[1].command)
}

func TestGateway_DeleteSuccess(t *testing.T) {
	api, calls := setupTestAPI(t, http.StatusOK, false)
	set := setupTestSet(t, "a", "b")
	acks := &recordingAck{}
	g := New(&fakeSender{}, api, set, acks, nil)

	require.NoError(t, g.Delete(context.Background(), "a"))

	assert.Equal(t, []string{"DELETE /api/v1/notifications/a Bearer tok"}, *calls)
	_, ok := set.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, []ack{{true, "Notification deleted"}}, acks.acks)
}

func TestGateway_ArchiveSuccess(t *testing.T) {
	api, calls := setupTestAPI(t, http.StatusOK, false)
	set := setupTestSet(t, "a")
	acks := &recordingAck{}
	g := New(&fakeSender{}, api, set, acks, nil)

	require.NoError(t, g.Archive(context.Background(), "a"))

	assert.Equal(t, []string{"POST /api/v1/notifications/a/archive Bearer tok"}, *calls)
	assert.Zero(t, set.Len())
	assert.Equal(t, []ack{{true, "Notification archived"}}, acks.acks)
}

func TestGateway_DeleteFailureLeavesState(t *testing.T) {
	api, _ := setupTestAPI(t, http.StatusNotFound, true)
	set := setupTestSet(t, "a")
	acks := &recordingAck{}
	g := New(&fakeSender{}, api, set, acks, nil)

	err := g.Delete(context.Background(), "a")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "NOT_FOUND", apiErr.Code)

	assert.Equal(t, 1, set.Len())
	assert.Equal(t, []ack{{false, "Failed to delete notification"}}, acks.acks)
}

func TestGateway_DeleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	set := setupTestSet(t, "a")
	acks := &recordingAck{}
	g := New(&fakeSender{}, NewAPIClient(srv.URL, "tok"), set, acks, nil)

	err := g.Delete(context.Background(), "a")

	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, 1, set.Len())
	require.Len(t, acks.acks, 1)
	assert.False(t, acks.acks[0].success)
}

func TestAPIClient_List(t *testing.T) {
	api, _ := setupTestAPI(t, http.StatusOK, false)

	page, err := api.List(context.Background(), 20, 0)

	require.NoError(t, err)
	assert.Equal(t, int64(3), page.UnreadCount)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, "a", page.Notifications[0].ID)
}
