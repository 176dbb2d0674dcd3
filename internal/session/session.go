package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"intranet/internal/domain/notification"
	"intranet/internal/effects"
	"intranet/internal/gateway"
	"intranet/internal/realtime"
)

const defaultPruneInterval = time.Minute

// Options configure every session a Manager creates.
type Options struct {
	WebSocketURL string // ws(s)://host/ws/notifications
	APIBaseURL   string // http(s)://host/api/v1

	Toaster     effects.Toaster
	Audio       effects.AudioPlayer
	Invalidator effects.Invalidator

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PruneInterval  time.Duration
	Dialer         *websocket.Dialer

	Logger *zap.Logger
}

// Snapshot is the consumer-visible state at one point in time.
type Snapshot struct {
	Notifications []notification.Notification
	UnreadCount   int
	Connected     bool
}

// Session is the notification state of one authenticated user. A single event
// loop applies connection events in arrival order: reconciler first, then side effects.
type Session struct {
	client     *realtime.Client
	set        *notification.Set
	reconciler *notification.Reconciler
	dispatcher *effects.Dispatcher
	gateway    *gateway.Gateway

	pruneInterval time.Duration
	log           *zap.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	subsMu sync.Mutex
	subs   map[chan Snapshot]struct{}
}

// New builds a session for token. It does nothing until Start.
func New(token string, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pruneInterval := opts.PruneInterval
	if pruneInterval <= 0 {
		pruneInterval = defaultPruneInterval
	}

	client := realtime.NewClient(realtime.ClientConfig{
		URL:            opts.WebSocketURL,
		Token:          token,
		InitialBackoff: opts.InitialBackoff,
		MaxBackoff:     opts.MaxBackoff,
		Dialer:         opts.Dialer,
		Logger:         log,
	})
	set := notification.NewSet()
	dispatcher := effects.NewDispatcher(opts.Toaster, opts.Audio, opts.Invalidator, log)

	return &Session{
		client:        client,
		set:           set,
		reconciler:    notification.NewReconciler(set),
		dispatcher:    dispatcher,
		gateway:       gateway.New(client, gateway.NewAPIClient(opts.APIBaseURL, token), set, dispatcher, log),
		pruneInterval: pruneInterval,
		log:           log.With(zap.String("component", "session")),
		done:          make(chan struct{}),
		subs:          make(map[chan Snapshot]struct{}),
	}
}

// Start opens the live channel and begins processing its events.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.client.Start(ctx)
	go func() {
		defer close(s.done)
		s.loop(ctx)
	}()
}

// Close stops event processing, closes the channel and empties the state.
// Subscriptions are closed. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
		s.client.Stop()
		s.set.Reset()

		s.subsMu.Lock()
		for ch := range s.subs {
			close(ch)
		}
		s.subs = nil
		s.subsMu.Unlock()

		s.log.Info("notification session closed")
	})
}

func (s *Session) Notifications() []notification.Notification {
	return s.set.Items()
}

func (s *Session) UnreadCount() int {
	return s.set.UnreadCount()
}

func (s *Session) IsConnected() bool {
	return !s.closed.Load() && s.client.IsConnected()
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Notifications: s.set.Items(),
		UnreadCount:   s.set.UnreadCount(),
		Connected:     s.IsConnected(),
	}
}

// MarkAsRead is applied when the server echoes it. Dropped while disconnected.
func (s *Session) MarkAsRead(id string) {
	if s.closed.Load() {
		return
	}
	s.gateway.MarkAsRead(id)
}

func (s *Session) MarkAllAsRead() {
	if s.closed.Load() {
		return
	}
	s.gateway.MarkAllAsRead()
}

func (s *Session) RefreshUnreadCount() {
	if s.closed.Load() {
		return
	}
	s.gateway.RefreshUnreadCount()
}

// Delete removes the notification on the server, then locally.
func (s *Session) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	err := s.gateway.Delete(ctx, id)
	if err == nil {
		s.publish()
	}
	return err
}

func (s *Session) Archive(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	err := s.gateway.Archive(ctx, id)
	if err == nil {
		s.publish()
	}
	return err
}

// Subscribe returns a feed of snapshots, starting with the current one.
// A slow reader only ever sees the latest snapshot. The channel closes with ctx or the session.
func (s *Session) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	s.subsMu.Lock()
	if s.subs == nil {
		s.subsMu.Unlock()
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}
	ch <- s.Snapshot()
	s.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.unsubscribe(ch)
	}()
	return ch
}

func (s *Session) unsubscribe(ch chan Snapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Session) publish() {
	snap := s.Snapshot()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// replace the stale snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Session) loop(ctx context.Context) {
	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	events := s.client.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ctx.Err() != nil {
				return
			}
			s.handle(ctx, ev)
		case now := <-ticker.C:
			if n := s.reconciler.PruneExpired(now); n > 0 {
				s.log.Debug("pruned expired notifications", zap.Int("count", n))
				s.publish()
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, ev realtime.Event) {
	switch ev.Kind {
	case realtime.EventConnected:
		s.log.Debug("live channel up")
	case realtime.EventDisconnected:
		s.log.Debug("live channel down", zap.Error(ev.Err))
	case realtime.EventConnectError:
		if realtime.IsAuthError(ev.Err) {
			s.log.Warn("live channel rejected the token", zap.Error(ev.Err))
		}
	case realtime.EventMessage:
		s.apply(ctx, ev.Message)
	}
	s.publish()
}

func (s *Session) apply(ctx context.Context, env realtime.Envelope) {
	switch env.Type {
	case realtime.EventNewNotification:
		n, err := realtime.DecodeNotification(env)
		if err != nil {
			s.log.Warn("dropping malformed notification", zap.Error(err))
			return
		}
		if s.reconciler.Insert(n) {
			s.dispatcher.Dispatch(ctx, n)
		}

	case realtime.EventUnreadNotifications:
		list, err := realtime.DecodeNotifications(env)
		if err != nil {
			s.log.Warn("dropping malformed unread list", zap.Error(err))
			return
		}
		s.reconciler.Hydrate(list)

	case realtime.EventUnreadCount:
		count, err := realtime.DecodeCount(env)
		if err != nil {
			s.log.Warn("dropping malformed unread count", zap.Error(err))
			return
		}
		s.reconciler.SyncCount(int(count))

	case realtime.EventNotificationRead:
		id, err := realtime.DecodeRead(env)
		if err != nil {
			s.log.Warn("dropping malformed read event", zap.Error(err))
			return
		}
		s.reconciler.MarkRead(id)

	case realtime.EventAllNotificationsRead:
		s.reconciler.MarkAllRead()

	default:
		s.log.Debug("ignoring unknown event", zap.String("type", env.Type))
	}
}
