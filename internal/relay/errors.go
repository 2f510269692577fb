package relay

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomTaken         = errors.New("room already has a broadcaster")
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrNotRegistered     = errors.New("connection has not registered")
	ErrUnknownTarget     = errors.New("no such peer in this room")
	ErrBadRoute          = errors.New("signaling only flows between a broadcaster and its viewers")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrBadArguments      = errors.New("bad event arguments")
)
