package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"intranet/internal/domain/notification"
)

const commandTimeout = 5 * time.Second

// Commands is what the hub needs from the notification service.
type Commands interface {
	Baseline(ctx context.Context, userID int64) ([]notification.Notification, int64, error)
	GetUnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkAsRead(ctx context.Context, userID int64, id string) error
	MarkAllAsRead(ctx context.Context, userID int64) error
}

// Observer receives hub activity, e.g. for metrics.
type Observer interface {
	ConnectionOpened()
	ConnectionClosed()
	EventPushed(eventType string)
	CommandReceived(command string)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened()      {}
func (nopObserver) ConnectionClosed()      {}
func (nopObserver) EventPushed(string)     {}
func (nopObserver) CommandReceived(string) {}

const connBuffer = 256

// connection represents a single WebSocket client. Until the baseline is queued,
// pushes for it wait in backlog so they reach the client after the hydrate.
type connection struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte

	// guarded by Hub.mu
	ready   bool
	backlog [][]byte
}

// Hub tracks live sockets per user. A user may hold several (one per tab or device).
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]map[*connection]struct{}

	commands Commands
	observer Observer
	log      *zap.Logger
}

func NewHub(commands Commands, observer Observer, log *zap.Logger) *Hub {
	if observer == nil {
		observer = nopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		connections: make(map[int64]map[*connection]struct{}),
		commands:    commands,
		observer:    observer,
		log:         log.With(zap.String("component", "hub")),
	}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[c.userID] == nil {
		h.connections[c.userID] = make(map[*connection]struct{})
	}
	h.connections[c.userID][c] = struct{}{}
	h.observer.ConnectionOpened()
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.connections[c.userID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.connections, c.userID)
	}
	close(c.send)
	h.observer.ConnectionClosed()
}

// Online reports how many sockets the user has open.
func (h *Hub) Online(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// SendToUser pushes an event to every socket of the user. It returns false when none took it.
func (h *Hub) SendToUser(userID int64, eventType string, payload any) bool {
	data, err := Encode(eventType, payload)
	if err != nil {
		h.log.Error("encode event failed", zap.String("event", eventType), zap.Error(err))
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := false
	for c := range h.connections[userID] {
		if !c.ready {
			if len(c.backlog) < connBuffer {
				c.backlog = append(c.backlog, data)
				delivered = true
			}
			continue
		}
		if enqueue(c, data) {
			delivered = true
		}
	}
	if delivered {
		h.observer.EventPushed(eventType)
	}
	return delivered
}

func (h *Hub) PublishNew(userID int64, n notification.Notification) {
	h.SendToUser(userID, EventNewNotification, n)
}

func (h *Hub) PublishRead(userID int64, id string) {
	h.SendToUser(userID, EventNotificationRead, ReadPayload{NotificationID: id})
}

func (h *Hub) PublishAllRead(userID int64) {
	h.SendToUser(userID, EventAllNotificationsRead, nil)
}

// ServeWS registers the socket, replays the unread baseline and blocks until disconnect.
func (h *Hub) ServeWS(ctx context.Context, conn *websocket.Conn, userID int64) {
	c := &connection{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, connBuffer),
	}
	h.register(c)
	h.log.Info("user connected", zap.Int64("user_id", userID))

	h.sendBaseline(ctx, c)

	go h.writePump(c)
	h.readPump(ctx, c)
	h.log.Info("user disconnected", zap.Int64("user_id", userID))
}

// sendBaseline queues the unread list and count, then whatever was pushed meanwhile,
// and switches the connection to direct delivery.
func (h *Hub) sendBaseline(ctx context.Context, c *connection) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var frames [][]byte
	list, count, err := h.commands.Baseline(ctx, c.userID)
	if err != nil {
		h.log.Warn("baseline failed", zap.Int64("user_id", c.userID), zap.Error(err))
	} else {
		if list == nil {
			list = []notification.Notification{}
		}
		for _, ev := range []struct {
			name    string
			payload any
		}{
			{EventUnreadNotifications, list},
			{EventUnreadCount, CountPayload{Count: count}},
		} {
			data, err := Encode(ev.name, ev.payload)
			if err != nil {
				h.log.Error("encode baseline failed", zap.String("event", ev.name), zap.Error(err))
				continue
			}
			frames = append(frames, data)
			h.observer.EventPushed(ev.name)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[c.userID][c]; !ok {
		return
	}
	for _, data := range append(frames, c.backlog...) {
		enqueue(c, data)
	}
	c.backlog = nil
	c.ready = true
}

// enqueue drops the frame when the client is too slow. Callers hold h.mu.
func enqueue(c *connection, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) sendTo(c *connection, eventType string, payload any) {
	data, err := Encode(eventType, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.connections[c.userID][c]; !ok {
		return
	}
	if enqueue(c, data) {
		h.observer.EventPushed(eventType)
	}
}

func (h *Hub) readPump(ctx context.Context, c *connection) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue
		}
		if err := h.handleCommand(ctx, c, env); err != nil {
			h.log.Debug("command failed",
				zap.Int64("user_id", c.userID),
				zap.String("command", env.Type),
				zap.Error(err),
			)
		}
	}
}

// handleCommand runs one client command. Echoes go out through the Publisher path,
// so every socket of the user sees the same confirmation.
func (h *Hub) handleCommand(ctx context.Context, c *connection, env Envelope) error {
	h.observer.CommandReceived(env.Type)

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch env.Type {
	case CommandMarkAsRead:
		id, err := DecodeRead(env)
		if err != nil {
			return err
		}
		err = h.commands.MarkAsRead(ctx, c.userID, id)
		if errors.Is(err, notification.ErrNotificationNotFound) {
			return nil
		}
		return err
	case CommandMarkAllAsRead:
		return h.commands.MarkAllAsRead(ctx, c.userID)
	case CommandGetUnreadCount:
		count, err := h.commands.GetUnreadCount(ctx, c.userID)
		if err != nil {
			return err
		}
		h.sendTo(c, EventUnreadCount, CountPayload{Count: count})
		return nil
	default:
		return ErrUnknownCommand
	}
}

func (h *Hub) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
