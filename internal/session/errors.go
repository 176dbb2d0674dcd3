package session

import "errors"

var ErrSessionClosed = errors.New("notification session is closed")
