// Package bus moves whole frames over the daisy-chained serial bus. Frames
// are COBS encoded and zero delimited on the wire.
package bus

import "errors"

var (
	// ErrNotConnected is returned when sending on a closed link.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("already connected")
)

// Link defines a frame link (serial port or in-memory pipe).
type Link interface {
	Connect() error
	Close() error
	Frames() <-chan []byte
	Send(frame []byte) error
	Flush() error
	IsConnected() bool
}

// Ensure Serial implements Link.
var _ Link = (*Serial)(nil)

// Ensure Pipe implements Link.
var _ Link = (*Pipe)(nil)
