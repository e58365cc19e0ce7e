package descriptor

import (
	"errors"
	"fmt"
)

// ErrProtocol marks a violation of the wire contract. It is never coerced into
// a value: callers get it back as an error and scripts see it thrown.
var ErrProtocol = errors.New("remote protocol error")

var (
	ErrMalformed = fmt.Errorf("%w: malformed descriptor", ErrProtocol)
	ErrTooDeep   = fmt.Errorf("%w: descriptor nesting too deep", ErrProtocol)
	ErrTooLarge  = fmt.Errorf("%w: descriptor too large", ErrProtocol)
	ErrCycle     = fmt.Errorf("%w: cyclic value", ErrProtocol)
)

// RemoteError is an exception raised by the peer while serving a request.
type RemoteError struct {
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// AsError converts an "exception" descriptor into a *RemoteError.
func (d *Descriptor) AsError() *RemoteError {
	return &RemoteError{Message: d.Message, Stack: d.Stack}
}
