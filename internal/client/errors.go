package client

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by sends on a closed Connection.
	ErrClosed = errors.New("connection closed")

	// ErrQueueFull is returned when too much user text is sent before the
	// handshake completes.
	ErrQueueFull = errors.New("handshake send queue full")

	// ErrTooManyAttempts is returned by a capped Negotiator that ran out of
	// prompts.
	ErrTooManyAttempts = errors.New("no acceptable username")
)

// ConnectError reports a failure to reach the relay. No Connection exists
// when one is returned.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("cannot connect to relay at %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
