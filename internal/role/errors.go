package role

import "errors"

var (
	ErrInvalidJoin       = errors.New("joining needs a non-empty name and room")
	ErrMediaAcquisition  = errors.New("could not acquire local media")
	ErrAlreadyRegistered = errors.New("already registered in a room")
	ErrMissingPeerID     = errors.New("event carries no peer id")
	ErrPeerLeft          = errors.New("remote peer left")
)
