// Package protocol implements the cell module side of the daisy-chain
// protocol: frame validation, address filtering, command dispatch and the
// reply. Two wire generations are supported behind one Processor.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/itohio/cellbms/pkg/crc16"
)

var (
	// ErrFrameSize is returned for a frame of the wrong length.
	ErrFrameSize = errors.New("frame size mismatch")
	// ErrChecksum is returned when the frame checksum does not match.
	ErrChecksum = errors.New("frame checksum mismatch")
	// ErrTimeout is returned when no reply arrives in time.
	ErrTimeout = errors.New("reply timeout")
	// ErrVersion is returned for an unknown protocol generation.
	ErrVersion = errors.New("unknown protocol version")
)

// Version selects a wire protocol generation.
type Version uint8

const (
	// V4 is the current 32 byte frame format.
	V4 Version = iota
	// Legacy is the 38 byte frame format with per-module data slots.
	Legacy
)

// ParseVersion parses a configuration value ("v4" or "legacy").
func ParseVersion(s string) (Version, error) {
	switch s {
	case "v4":
		return V4, nil
	case "legacy":
		return Legacy, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrVersion)
}

func (v Version) String() string {
	switch v {
	case V4:
		return "v4"
	case Legacy:
		return "legacy"
	}
	return fmt.Sprintf("version(%d)", uint8(v))
}

// FrameSize returns the frame length of the generation, or 0 if unknown.
func (v Version) FrameSize() int {
	switch v {
	case V4:
		return FrameSize
	case Legacy:
		return LegacyFrameSize
	}
	return 0
}

// ReplyFlag marks a frame as answered.
const ReplyFlag = 0x80

// ChecksumSize is the length of the trailing checksum.
const ChecksumSize = 2

// seal writes the checksum of everything before it into the last two bytes.
func seal(frame []byte) {
	n := len(frame) - ChecksumSize
	binary.LittleEndian.PutUint16(frame[n:], crc16.Checksum(frame[:n]))
}

// verify checks the frame length and trailing checksum.
func verify(frame []byte, size int) error {
	if len(frame) != size {
		return fmt.Errorf("got %d bytes, want %d: %w", len(frame), size, ErrFrameSize)
	}
	n := size - ChecksumSize
	if binary.LittleEndian.Uint16(frame[n:]) != crc16.Checksum(frame[:n]) {
		return ErrChecksum
	}
	return nil
}
