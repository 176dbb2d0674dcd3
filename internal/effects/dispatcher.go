package effects

import (
	"context"
	"time"

	"go.uber.org/zap"

	"intranet/internal/domain/notification"
)

const invalidateTimeout = 3 * time.Second

// Dispatcher runs the user-visible side effects of a newly inserted notification:
// a toast, the urgent alert sound and cache invalidation.
//
// Every effect is best effort; failures are logged and never reach the caller.
type Dispatcher struct {
	toaster     Toaster
	audio       AudioPlayer
	invalidator Invalidator
	log         *zap.Logger
}

// NewDispatcher accepts nil for any effect it should skip.
func NewDispatcher(toaster Toaster, audio AudioPlayer, invalidator Invalidator, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		toaster:     toaster,
		audio:       audio,
		invalidator: invalidator,
		log:         log.With(zap.String("component", "effects")),
	}
}

// Dispatch must be called once per notification the reconciler actually inserted.
func (d *Dispatcher) Dispatch(ctx context.Context, n notification.Notification) {
	if d.toaster != nil {
		d.toaster.Show(ToastFor(n))
	}

	if n.Priority == notification.PriorityUrgent && d.audio != nil {
		if err := d.audio.Play(ctx); err != nil {
			d.log.Debug("alert sound failed", zap.Error(err))
		}
	}

	d.invalidate(ctx, n)
}

func (d *Dispatcher) invalidate(ctx context.Context, n notification.Notification) {
	if d.invalidator == nil {
		return
	}
	keys := KeysFor(n)
	if len(keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, invalidateTimeout)
	defer cancel()
	if err := d.invalidator.Invalidate(ctx, keys); err != nil {
		d.log.Warn("cache invalidation failed",
			zap.String("notification_id", n.ID),
			zap.String("type", string(n.Type)),
			zap.Error(err),
		)
	}
}

// Acknowledge shows the outcome of a user command.
func (d *Dispatcher) Acknowledge(success bool, text string) {
	if d.toaster == nil {
		return
	}
	d.toaster.Show(ackToast(success, text))
}
