package link

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReply indicates no reply received from peer.
	// This happens when a reply is received for a later command, and all
	// previous commands fail with this error.
	ErrNoReply = errors.New("no reply")
	// ErrClosed indicates the link is closed.
	ErrClosed = errors.New("link closed")
	// ErrShortFrame indicates a truncated frame.
	ErrShortFrame = errors.New("short frame")
	// ErrFrameTooLarge indicates a frame over MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")
)

// RemoteError is an error reported by the kernel stack.
type RemoteError struct {
	Code    Code
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error on command %#x: %s", byte(e.Code.Command()), e.Message)
}
