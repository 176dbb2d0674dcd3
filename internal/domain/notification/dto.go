package notification

import "time"

// NotificationListResponse for list endpoint
type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int64          `json:"unread_count"`
	Total         int64          `json:"total"`
}

// UnreadCountResponse for unread count endpoint
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// CreateNotificationRequest is accepted from internal producers.
type CreateNotificationRequest struct {
	UserID    int64      `json:"user_id" binding:"required,gt=0"`
	Type      string     `json:"type" binding:"required"`
	Title     string     `json:"title" binding:"required,max=255"`
	Message   string     `json:"message"`
	Priority  string     `json:"priority"`
	Metadata  *Metadata  `json:"metadata,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (r CreateNotificationRequest) Input() CreateInput {
	return CreateInput{
		Type:      Type(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Priority:  ParsePriority(r.Priority),
		Metadata:  r.Metadata,
		ExpiresAt: r.ExpiresAt,
	}
}
