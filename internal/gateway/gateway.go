package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"intranet/internal/domain/notification"
	"intranet/internal/realtime"
)

// Sender queues a command on the live channel. False means it was dropped.
type Sender interface {
	Send(command string, payload any) bool
}

// Remote performs the confirmed operations.
type Remote interface {
	Delete(ctx context.Context, id string) error
	Archive(ctx context.Context, id string) error
}

// Acknowledger surfaces the outcome of a confirmed operation to the user.
type Acknowledger interface {
	Acknowledge(success bool, text string)
}

// Gateway sends user commands. Live commands never touch the local set: the server
// echo does, through the reconciler. Confirmed commands change it only on success.
type Gateway struct {
	sender Sender
	remote Remote
	set    *notification.Set
	ack    Acknowledger
	log    *zap.Logger
}

func New(sender Sender, remote Remote, set *notification.Set, ack Acknowledger, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		sender: sender,
		remote: remote,
		set:    set,
		ack:    ack,
		log:    log.With(zap.String("component", "gateway")),
	}
}

func (g *Gateway) MarkAsRead(id string) {
	if id == "" {
		return
	}
	g.send(realtime.CommandMarkAsRead, realtime.ReadPayload{NotificationID: id})
}

func (g *Gateway) MarkAllAsRead() {
	g.send(realtime.CommandMarkAllAsRead, nil)
}

// RefreshUnreadCount asks for a fresh count; the answer arrives as an unread_count event.
func (g *Gateway) RefreshUnreadCount() {
	g.send(realtime.CommandGetUnreadCount, nil)
}

func (g *Gateway) send(command string, payload any) {
	if !g.sender.Send(command, payload) {
		g.log.Debug("command dropped, channel not connected", zap.String("command", command))
	}
}

func (g *Gateway) Delete(ctx context.Context, id string) error {
	return g.confirmed(ctx, id, g.remote.Delete,
		"Notification deleted", "Failed to delete notification")
}

func (g *Gateway) Archive(ctx context.Context, id string) error {
	return g.confirmed(ctx, id, g.remote.Archive,
		"Notification archived", "Failed to archive notification")
}

func (g *Gateway) confirmed(ctx context.Context, id string, op func(context.Context, string) error, okText, failText string) error {
	if err := op(ctx, id); err != nil {
		g.log.Warn(failText, zap.String("notification_id", id), zap.Error(err))
		g.acknowledge(false, failText)
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	g.set.Remove(id)
	g.acknowledge(true, okText)
	return nil
}

func (g *Gateway) acknowledge(success bool, text string) {
	if g.ack != nil {
		g.ack.Acknowledge(success, text)
	}
}
