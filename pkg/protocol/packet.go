package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// FrameSize is the length of a V4 frame.
	FrameSize = 32
	// DataSlots is the number of data words in a V4 frame.
	DataSlots = 12

	// BroadcastBit marks a V4 broadcast address.
	BroadcastBit = 0x8000
	// UnsetBank is the bank nibble matching modules in any bank.
	UnsetBank = 0x0F
)

// Address is a V4 frame address: broadcast bit, bank nibble and module byte.
type Address uint16

// NewAddress returns a directed address.
func NewAddress(bank, module uint8) Address {
	return Address(uint16(bank&0x0F)<<8 | uint16(module))
}

// BroadcastAddress returns a broadcast address for bank.
func BroadcastAddress(bank uint8) Address {
	return BroadcastBit | NewAddress(bank, 0)
}

// Broadcast reports whether the broadcast bit is set.
func (a Address) Broadcast() bool { return a&BroadcastBit != 0 }

// Bank returns the bank nibble.
func (a Address) Bank() uint8 { return uint8(a>>8) & 0x0F }

// Module returns the module byte.
func (a Address) Module() uint8 { return uint8(a) }

func (a Address) String() string {
	if a.Broadcast() {
		return fmt.Sprintf("broadcast/%d", a.Bank())
	}
	return fmt.Sprintf("%d/%d", a.Bank(), a.Module())
}

// Command is a V4 command code.
type Command uint8

const (
	CmdPing          Command = 0x00
	CmdIdentify      Command = 0x01
	CmdVoltage       Command = 0x02
	CmdTemperature   Command = 0x03
	CmdBadPacket     Command = 0x04
	CmdSettingsRead  Command = 0x06
	CmdSettingsWrite Command = 0x07
	CmdIdentitySet   Command = 0x08
)

// Code returns the command without the reply flag.
func (c Command) Code() Command { return c &^ ReplyFlag }

// Reply reports whether the reply flag is set.
func (c Command) Reply() bool { return c&ReplyFlag != 0 }

func (c Command) String() string {
	var name string
	switch c.Code() {
	case CmdPing:
		name = "ping"
	case CmdIdentify:
		name = "identify"
	case CmdVoltage:
		name = "voltage"
	case CmdTemperature:
		name = "temperature"
	case CmdBadPacket:
		name = "bad_packet"
	case CmdSettingsRead:
		name = "settings_read"
	case CmdSettingsWrite:
		name = "settings_write"
	case CmdIdentitySet:
		name = "identity_set"
	default:
		name = fmt.Sprintf("cmd(0x%02x)", uint8(c.Code()))
	}
	if c.Reply() {
		return name + "/reply"
	}
	return name
}

// Packet is a V4 frame. The checksum is computed on marshal and verified on
// unmarshal.
type Packet struct {
	Address  Address
	Sequence uint16
	Command  Command
	Stats    uint8 // Module status bits in replies
	Data     [DataSlots]uint16
}

// MarshalBinary encodes and seals the packet.
func (p Packet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(FrameSize)
	if err := binary.Write(&buf, binary.LittleEndian, &p); err != nil {
		return nil, fmt.Errorf("failed to encode packet: %w", err)
	}
	frame := append(buf.Bytes(), 0, 0)
	seal(frame)
	return frame, nil
}

// UnmarshalBinary verifies and decodes a frame.
func (p *Packet) UnmarshalBinary(frame []byte) error {
	if err := verify(frame, FrameSize); err != nil {
		return err
	}
	r := bytes.NewReader(frame[:FrameSize-ChecksumSize])
	if err := binary.Read(r, binary.LittleEndian, p); err != nil {
		return fmt.Errorf("failed to decode packet: %w", err)
	}
	return nil
}
