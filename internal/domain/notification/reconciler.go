package notification

import "time"

// Reconciler applies inbound server events to a Set.
// All methods are pure state transitions; none perform I/O.
type Reconciler struct {
	set *Set
}

func NewReconciler(set *Set) *Reconciler {
	return &Reconciler{set: set}
}

func (r *Reconciler) Set() *Set {
	return r.set
}

// Hydrate replaces the whole set with the server baseline (unread_notifications).
func (r *Reconciler) Hydrate(list []Notification) {
	r.set.replace(list)
}

// SyncCount applies a server unread count (unread_count).
// The list-derived part is kept; only the remainder beyond the list follows the server.
func (r *Reconciler) SyncCount(count int) {
	r.set.syncCount(count)
}

// Insert prepends a new notification (new_notification).
// It reports false when the id was already present and the entry was replaced in place.
func (r *Reconciler) Insert(n Notification) bool {
	return r.set.insert(n)
}

// MarkRead flips one notification to read (notification_read).
// Applying it twice is a no-op.
func (r *Reconciler) MarkRead(id string) bool {
	return r.set.markRead(id)
}

// MarkAllRead flips every notification to read (all_notifications_read).
func (r *Reconciler) MarkAllRead() {
	r.set.markAllRead()
}

// PruneExpired silently drops notifications past their expiry.
func (r *Reconciler) PruneExpired(now time.Time) int {
	return r.set.pruneExpired(now)
}
