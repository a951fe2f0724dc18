package httpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrEventNotFound is returned by GetEvent when the gateway has no such event.
	ErrEventNotFound = errors.New("event not found")
	// ErrStoreNotReady is returned when the gateway reports its store as unavailable.
	ErrStoreNotReady = errors.New("gateway event store not ready")
)

// NetworkError describes a failed request: a transport error, or a response
// outside the 2xx range.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
