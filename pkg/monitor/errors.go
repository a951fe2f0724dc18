package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrStreamClosed is reported when the server ends the push stream.
	ErrStreamClosed = errors.New("push stream closed by server")
	// ErrSessionRunning is returned when Run is called on a session that already ran.
	ErrSessionRunning = errors.New("session already started")
)

// StreamTransportError wraps a transport-level failure of the push channel.
// The session recovers from it by falling back to polling.
type StreamTransportError struct {
	Err error
}

func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("push transport error: %v", e.Err)
}

func (e *StreamTransportError) Unwrap() error {
	return e.Err
}

// MessageDecodeError is returned for a push message that is not a valid event.
// Such messages are dropped without closing the channel.
type MessageDecodeError struct {
	Size int
	Err  error
}

func (e *MessageDecodeError) Error() string {
	return fmt.Sprintf("malformed push message (%d bytes): %v", e.Size, e.Err)
}

func (e *MessageDecodeError) Unwrap() error {
	return e.Err
}

// HeaderParseError describes a headers_json blob that could not be parsed.
type HeaderParseError struct {
	Raw string
	Err error
}

func (e *HeaderParseError) Error() string {
	return e.Err.Error()
}

func (e *HeaderParseError) Unwrap() error {
	return e.Err
}
