package peer

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPeer        = errors.New("no session for peer")
	ErrSessionClosed      = errors.New("session is closed")
	ErrInvalidState       = errors.New("invalid negotiation state")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrConnectionClosed   = errors.New("peer connection closed")
	ErrReplaced           = errors.New("session replaced")
	ErrLeft               = errors.New("left the room")
	ErrRegistryClosed     = errors.New("registry is closed")
)

// NegotiationError reports an SDP step that failed for one peer session.
// The session is closed when one is returned; it is never retried.
type NegotiationError struct {
	PeerID string
	Step   string
	Err    error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s failed at %s: %v", e.PeerID, e.Step, e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}
