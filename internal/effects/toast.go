package effects

import (
	"time"

	"intranet/internal/domain/notification"
)

type Style string

const (
	StyleSuccess Style = "success"
	StyleWarning Style = "warning"
	StyleError   Style = "error"
)

const (
	urgentDuration  = 10 * time.Second
	highDuration    = 6 * time.Second
	defaultDuration = 4 * time.Second
)

// Toast is a compact, transient summary of a notification or command result.
type Toast struct {
	Title     string
	Message   string
	AvatarURL string // empty: no avatar
	ActorName string
	Badge     string // organizational unit, empty: no badge
	Link      string // followed on click, empty: not clickable
	Style     Style
	Duration  time.Duration
}

// Clickable reports whether activating the toast navigates somewhere.
func (t Toast) Clickable() bool {
	return t.Link != ""
}

// ToastFor derives the toast of a freshly received notification.
func ToastFor(n notification.Notification) Toast {
	t := Toast{
		Title:     n.Title,
		Message:   n.Message,
		AvatarURL: n.Metadata.Avatar(),
		Badge:     n.Metadata.Unit(),
		Link:      n.Metadata.Link(),
	}
	if n.Metadata != nil {
		t.ActorName = n.Metadata.ActorName
	}

	switch n.Priority {
	case notification.PriorityUrgent:
		t.Style, t.Duration = StyleError, urgentDuration
	case notification.PriorityHigh:
		t.Style, t.Duration = StyleWarning, highDuration
	default:
		t.Style, t.Duration = StyleSuccess, defaultDuration
	}
	return t
}

func ackToast(success bool, text string) Toast {
	if success {
		return Toast{Title: text, Style: StyleSuccess, Duration: defaultDuration}
	}
	return Toast{Title: text, Style: StyleError, Duration: highDuration}
}
