package realtime

import "errors"

var (
	ErrMissingID      = errors.New("notification id is missing")
	ErrHandshakeAuth  = errors.New("notification channel rejected the token")
	ErrUnknownCommand = errors.New("unknown command")
)
