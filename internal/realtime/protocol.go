package realtime

import (
	"encoding/json"

	"intranet/internal/domain/notification"
)

// Server -> client events
const (
	EventNewNotification      = "new_notification"
	EventUnreadNotifications  = "unread_notifications"
	EventUnreadCount          = "unread_count"
	EventNotificationRead     = "notification_read"
	EventAllNotificationsRead = "all_notifications_read"
)

// Client -> server commands
const (
	CommandMarkAsRead     = "mark_as_read"
	CommandMarkAllAsRead  = "mark_all_as_read"
	CommandGetUnreadCount = "get_unread_count"
)

// Envelope is one frame on the notification channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type CountPayload struct {
	Count int64 `json:"count"`
}

type ReadPayload struct {
	NotificationID string `json:"notificationId"`
}

// Encode builds a frame. A nil payload is omitted.
func Encode(eventType string, payload any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

func DecodeNotification(env Envelope) (notification.Notification, error) {
	var n notification.Notification
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		return n, err
	}
	if n.ID == "" {
		return n, ErrMissingID
	}
	return n, nil
}

func DecodeNotifications(env Envelope) ([]notification.Notification, error) {
	var list []notification.Notification
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return list, nil
	}
	if err := json.Unmarshal(env.Payload, &list); err != nil {
		return nil, err
	}
	out := list[:0]
	for _, n := range list {
		if n.ID != "" {
			out = append(out, n)
		}
	}
	return out, nil
}

func DecodeCount(env Envelope) (int64, error) {
	var p CountPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return 0, err
	}
	return max(p.Count, 0), nil
}

func DecodeRead(env Envelope) (string, error) {
	var p ReadPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return "", err
	}
	if p.NotificationID == "" {
		return "", ErrMissingID
	}
	return p.NotificationID, nil
}
