// Package protocol implements the relay wire format: length-prefixed
// strings carrying single-character control prefixes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the largest encoded payload a frame can carry. The limit
// counts modified UTF-8 bytes, as Java's writeUTF does, so a character
// outside the Basic Multilingual Plane costs 6 bytes rather than 4.
const MaxFrameSize = 0xFFFF

type flusher interface {
	Flush() error
}

// WriteFrame writes s as one frame: a 2-byte big-endian byte count followed
// by the encoded string. The frame is handed to w in a single Write and w is
// flushed when it supports it. Callers sharing w must serialize calls.
func WriteFrame(w io.Writer, s string) error {
	n := encodedLen(s)
	if n > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	buf := make([]byte, 2, 2+n)
	binary.BigEndian.PutUint16(buf, uint16(n))
	buf = appendModifiedUTF8(buf, s)

	if _, err := w.Write(buf); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return &TransportError{Op: "flush", Err: err}
		}
	}
	return nil
}

// ReadFrame blocks until one complete frame has been read from r.
// A stream that ends before the frame is complete yields a *TransportError;
// a frame whose payload cannot be decoded yields a *ProtocolError and leaves
// r positioned at the next frame.
func ReadFrame(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", &TransportError{Op: "read", Err: err}
	}

	payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", &TransportError{Op: "read", Err: err}
	}

	s, err := decodeModifiedUTF8(payload)
	if err != nil {
		return "", &ProtocolError{Err: err}
	}
	return s, nil
}

// EncodedLen returns the payload size s occupies in a frame.
func EncodedLen(s string) int {
	return encodedLen(s)
}
