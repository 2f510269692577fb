package transport

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("transport closed")
	ErrMissingArgument = errors.New("missing event argument")
	ErrMalformedEvent  = errors.New("malformed event")
)

// UnknownEventError is returned by dispatch when no handler is registered
// for an inbound event name. The read loop logs it and keeps going.
type UnknownEventError struct {
	EventName string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("no handler registered for event %q", e.EventName)
}
