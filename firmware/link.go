//go:build tinygo

package main

import (
	"github.com/itohio/cellbms/pkg/cobs"
	"github.com/itohio/cellbms/pkg/protocol"
)

// maxEncoded bounds a frame on the wire, delimiter included.
var maxEncoded = cobs.EncodedLen(protocol.LegacyFrameSize)

// uartLink frames bus traffic over the UART.
type uartLink struct {
	raw   []byte
	frame []byte
	out   []byte
}

func newUARTLink() *uartLink {
	return &uartLink{
		raw:   make([]byte, 0, maxEncoded),
		frame: make([]byte, 0, maxEncoded),
		out:   make([]byte, 0, maxEncoded),
	}
}

// Poll reads the buffered bytes and calls fn for every complete frame.
func (l *uartLink) Poll(fn func(frame []byte)) {
	for uart.Buffered() > 0 {
		b, err := uart.ReadByte()
		if err != nil {
			return
		}
		if b != cobs.Delimiter {
			if len(l.raw) < maxEncoded {
				l.raw = append(l.raw, b)
			}
			continue
		}
		if len(l.raw) == 0 {
			continue
		}
		frame, err := cobs.Decode(l.frame[:0], l.raw)
		l.raw = l.raw[:0]
		if err != nil {
			continue
		}
		fn(frame)
	}
}

// Send implements protocol.Sender.
func (l *uartLink) Send(frame []byte) error {
	l.out = cobs.Encode(l.out[:0], frame)
	l.out = append(l.out, cobs.Delimiter)
	_, err := uart.Write(l.out)
	return err
}
