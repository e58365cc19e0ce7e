package ipc

import (
	"errors"
	"fmt"
)

var (
	ErrClosed     = errors.New("endpoint closed")
	ErrTimeout    = errors.New("sync request timed out")
	ErrBadMessage = errors.New("malformed message")
	ErrBadArgs    = errors.New("malformed arguments")
	ErrNoHandler  = errors.New("no handler for channel")
)

// PeerError is a failure reported by the peer in a reply.
type PeerError struct {
	Channel string
	Message string
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Channel, e.Message)
}
