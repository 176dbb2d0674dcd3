package notification

import "errors"

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrDuplicateNotification = errors.New("notification already exists")
	ErrInvalidType           = errors.New("unknown notification type")
	ErrEmptyTitle            = errors.New("notification title is required")
	ErrInvalidUser           = errors.New("invalid user id")
)
