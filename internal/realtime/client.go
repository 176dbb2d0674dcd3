package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 512 * 1024 // 512 KB

	sendBuffer  = 64
	eventBuffer = 256
)

// EventKind tags an Event.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventConnectError
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectError:
		return "connect_error"
	default:
		return "message"
	}
}

// Event is what the client reports to its owner, in delivery order.
type Event struct {
	Kind    EventKind
	Message Envelope // set for EventMessage
	Err     error    // set for EventDisconnected and EventConnectError
}

type ClientConfig struct {
	URL   string // ws(s)://host/ws/notifications
	Token string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// Client owns one live notification channel and keeps it up until Stop.
type Client struct {
	cfg    ClientConfig
	dialer *websocket.Dialer
	log    *zap.Logger

	events    chan Event
	connected atomic.Bool

	mu     sync.Mutex
	send   chan []byte // nil while disconnected
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		log:    log.With(zap.String("component", "realtime_client")),
		events: make(chan Event, eventBuffer),
	}
}

// Events is the ordered stream of lifecycle signals and inbound frames.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Start opens the channel in the background. A running channel is disposed first,
// so there is never more than one subscription.
func (c *Client) Start(ctx context.Context) {
	c.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx)
	}()
}

// Stop closes the channel and waits for the background goroutines to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Send queues a command. It returns false, dropping the command, when the channel is down
// or the write queue is full.
func (c *Client) Send(command string, payload any) bool {
	data, err := Encode(command, payload)
	if err != nil {
		c.log.Warn("encode command failed", zap.String("command", command), zap.Error(err))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = 0

	for {
		var conn *websocket.Conn
		dial := func() error {
			var err error
			conn, err = c.dial(ctx)
			if err != nil && ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		notify := func(err error, wait time.Duration) {
			c.log.Warn("notification channel connect failed",
				zap.Error(err), zap.Duration("retry_in", wait))
			c.emit(ctx, Event{Kind: EventConnectError, Err: err})
		}

		if err := backoff.RetryNotify(dial, backoff.WithContext(b, ctx), notify); err != nil {
			if ctx.Err() == nil {
				c.log.Error("notification channel gave up", zap.Error(err))
				c.emit(ctx, Event{Kind: EventConnectError, Err: err})
			}
			return
		}
		b.Reset()

		err := c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.log.Info("notification channel disconnected", zap.Error(err))

		// brief pause so a server that drops us right away is not hammered
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.NextBackOff()):
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("parse notification url: %w", err))
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.Token)

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeAuth, err)
		}
		return nil, err
	}
	return conn, nil
}

// serve runs one connection until it drops or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	send := make(chan []byte, sendBuffer)

	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	c.connected.Store(true)

	c.log.Info("notification channel connected")
	c.emit(ctx, Event{Kind: EventConnected})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx, conn, send)
	}()

	err := c.readPump(ctx, conn)

	c.mu.Lock()
	c.send = nil
	close(send)
	c.mu.Unlock()
	c.connected.Store(false)

	<-writerDone
	_ = conn.Close()

	c.emit(ctx, Event{Kind: EventDisconnected, Err: err})
	return err
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// any traffic proves the link is alive
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
			c.log.Warn("skipping malformed frame", zap.Error(err), zap.Int("size", len(raw)))
			continue
		}
		c.emit(ctx, Event{Kind: EventMessage, Message: env})
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(time.Second))
			// unblocks readPump
			_ = conn.Close()
			return
		}
	}
}

func (c *Client) emit(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// IsAuthError reports whether err came from a rejected handshake token.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrHandshakeAuth)
}
