package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFrame is returned by Classify for a zero-length frame.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrFrameTooLarge is returned by WriteFrame when the encoded string
	// does not fit the 2-byte length prefix.
	ErrFrameTooLarge = errors.New("frame exceeds 65535 encoded bytes")
)

// TransportError reports a read or write failure on the underlying stream.
// The stream framing can no longer be trusted after one.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a frame that was read intact but could not be
// decoded or classified. Only that frame is affected.
type ProtocolError struct {
	Frame string
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Frame == "" {
		return fmt.Sprintf("protocol error: %v", e.Err)
	}
	return fmt.Sprintf("protocol error on frame %q: %v", truncate(e.Frame, 32), e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
