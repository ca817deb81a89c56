package transport

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotReady is returned for sends issued before the transport is ready.
	ErrNotReady = errors.New("transport is not ready")

	// ErrCancelled is returned for sends issued after Cancel.
	ErrCancelled = errors.New("transport is cancelled")

	// errNoInterfaces means no interface is up and multicast capable.
	errNoInterfaces = errors.New("no multicast capable interfaces are up")
)

// GroupJoinError means the address could not be turned into a multicast
// membership. No resources exist when it is returned.
type GroupJoinError struct {
	Address string
	Port    int
	Err     error
}

// Error implements the error interface
func (e *GroupJoinError) Error() string {
	return fmt.Sprintf("cannot join multicast group %s:%d: %v", e.Address, e.Port, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *GroupJoinError) Unwrap() error {
	return e.Err
}

// TransientNetworkError is carried by StateWaiting. The transport keeps
// retrying on its own.
type TransientNetworkError struct {
	Group   string
	Err     error
	RetryIn time.Duration
}

// Error implements the error interface
func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("multicast group %s unavailable, retrying in %s: %v", e.Group, e.RetryIn, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// TransportFailedError is carried by StateFailed.
type TransportFailedError struct {
	Group string
	Err   error
}

// Error implements the error interface
func (e *TransportFailedError) Error() string {
	return fmt.Sprintf("multicast transport for %s failed: %v", e.Group, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *TransportFailedError) Unwrap() error {
	return e.Err
}

// SendError is passed to a Send completion when the datagram could not be
// written. It never affects the transport state.
type SendError struct {
	Group string
	Err   error
}

// Error implements the error interface
func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send to %s: %v", e.Group, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *SendError) Unwrap() error {
	return e.Err
}
