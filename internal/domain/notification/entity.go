package notification

import (
	"encoding/json"
	"strings"
	"time"
)

// Type represents notification type
type Type string

const (
	// Event lifecycle
	TypeEventCreated   Type = "event_created"
	TypeEventUpdated   Type = "event_updated"
	TypeEventCancelled Type = "event_cancelled"
	TypeEventReminder  Type = "event_reminder"

	// Job lifecycle
	TypeJobPosted              Type = "job_posted"
	TypeJobApplicationReceived Type = "job_application_received"
	TypeJobApplicationStatus   Type = "job_application_status"

	// Social interaction
	TypePostLiked      Type = "post_liked"
	TypePostCommented  Type = "post_commented"
	TypeCommentReplied Type = "comment_replied"
	TypeMention        Type = "mention"
	TypeUserFollowed   Type = "user_followed"
	TypePostShared     Type = "post_shared"

	// Moderation
	TypeContentFlagged    Type = "content_flagged"
	TypeContentRemoved    Type = "content_removed"
	TypeModerationWarning Type = "moderation_warning"
	TypeReportResolved    Type = "report_resolved"

	// Account lifecycle
	TypeAccountVerified  Type = "account_verified"
	TypeRoleChanged      Type = "role_changed"
	TypeProfileUpdated   Type = "profile_updated"
	TypeAccountSuspended Type = "account_suspended"
)

// AllTypes lists every declared Type. Anything keyed by Type is checked against it.
func AllTypes() []Type {
	return []Type{
		TypeEventCreated, TypeEventUpdated, TypeEventCancelled, TypeEventReminder,
		TypeJobPosted, TypeJobApplicationReceived, TypeJobApplicationStatus,
		TypePostLiked, TypePostCommented, TypeCommentReplied, TypeMention, TypeUserFollowed, TypePostShared,
		TypeContentFlagged, TypeContentRemoved, TypeModerationWarning, TypeReportResolved,
		TypeAccountVerified, TypeRoleChanged, TypeProfileUpdated, TypeAccountSuspended,
	}
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Priority is ordered: low < medium < high < urgent.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "medium"
	}
}

// ParsePriority maps a wire value to Priority. Unknown values become medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	default:
		return PriorityMedium
	}
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// numeric or null priorities are tolerated
		*p = PriorityMedium
		return nil
	}
	*p = ParsePriority(s)
	return nil
}

// Metadata is the optional structured payload of a notification.
// Every accessor is safe on a nil receiver.
type Metadata struct {
	EntityID       string         `json:"entityId,omitempty"`
	EntityType     string         `json:"entityType,omitempty"`
	URL            string         `json:"url,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	ActorName      string         `json:"actorName,omitempty"`
	ActorAvatar    string         `json:"actorAvatar,omitempty"`
	OrgUnit        string         `json:"orgUnit,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

func (m *Metadata) Entity() (entityType, entityID string) {
	if m == nil {
		return "", ""
	}
	return m.EntityType, m.EntityID
}

func (m *Metadata) Link() string {
	if m == nil {
		return ""
	}
	return m.URL
}

func (m *Metadata) Avatar() string {
	if m == nil {
		return ""
	}
	return m.ActorAvatar
}

func (m *Metadata) Unit() string {
	if m == nil {
		return ""
	}
	return m.OrgUnit
}

// Notification represents a server-pushed notification
type Notification struct {
	ID        string     `json:"id"`
	Type      Type       `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Priority  Priority   `json:"priority"`
	Metadata  *Metadata  `json:"metadata,omitempty"`
	IsRead    bool       `json:"isRead"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// IsExpired returns true once now is past ExpiresAt. No ExpiresAt means never.
func (n *Notification) IsExpired(now time.Time) bool {
	if n.ExpiresAt == nil {
		return false
	}
	return now.After(*n.ExpiresAt)
}
