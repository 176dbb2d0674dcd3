package notification

import (
	"sync"
	"time"
)

// Set is the session-scoped, most-recent-first list of notifications.
//
// Pushed events reach it only through a Reconciler. The exported mutators
// (Remove, Reset) belong to confirmed command results and session disposal.
type Set struct {
	mu    sync.RWMutex
	items []Notification

	// extra counts unread notifications the server reported beyond the local list.
	extra int
}

func NewSet() *Set {
	return &Set{}
}

// Items returns a copy of the list, newest first.
func (s *Set) Items() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns a copy of the notification with the given id.
func (s *Set) Get(id string) (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return Notification{}, false
}

// UnreadCount is the list-derived unread count plus the server-reported remainder.
func (s *Set) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localUnread() + s.extra
}

// LocalUnread counts unread entries present in the list.
func (s *Set) LocalUnread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localUnread()
}

// Remove drops the notification from the visible list after a confirmed delete or archive.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

// Reset empties the set and zeroes the count.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.extra = 0
}

func (s *Set) localUnread() int {
	n := 0
	for i := range s.items {
		if !s.items[i].IsRead {
			n++
		}
	}
	return n
}

func (s *Set) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Set) replace(list []Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(list))
	items := make([]Notification, 0, len(list))
	for _, n := range list {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		items = append(items, n)
	}
	s.items = items
	s.extra = 0
}

func (s *Set) syncCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = max(count-s.localUnread(), 0)
}

func (s *Set) insert(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(n.ID); i >= 0 {
		// read state never goes back to unread
		n.IsRead = n.IsRead || s.items[i].IsRead
		s.items[i] = n
		return false
	}
	s.items = append([]Notification{n}, s.items...)
	// a pushed unread item may already be part of the last server count
	if !n.IsRead && s.extra > 0 {
		s.extra--
	}
	return true
}

func (s *Set) markRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		if s.extra > 0 {
			s.extra--
			return true
		}
		return false
	}
	if s.items[i].IsRead {
		return false
	}
	s.items[i].IsRead = true
	return true
}

func (s *Set) markAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		s.items[i].IsRead = true
	}
	s.extra = 0
}

func (s *Set) pruneExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	pruned := 0
	for _, n := range s.items {
		if n.IsExpired(now) {
			pruned++
			continue
		}
		kept = append(kept, n)
	}
	s.items = kept
	return pruned
}
