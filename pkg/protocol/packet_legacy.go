package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// LegacyFrameSize is the length of a legacy frame.
	LegacyFrameSize = 38
	// LegacyDataSlots is the number of data words, one per module.
	LegacyDataSlots = 16

	// LegacyBroadcastBit marks a legacy broadcast address.
	LegacyBroadcastBit = 0x80
	// LegacyUnsetBank is the bank field matching modules in any bank.
	LegacyUnsetBank = 0x07
)

// LegacyAddress is a legacy frame address: broadcast bit, 3 bit bank and
// 4 bit module.
type LegacyAddress uint8

// NewLegacyAddress returns a directed legacy address.
func NewLegacyAddress(bank, module uint8) LegacyAddress {
	return LegacyAddress((bank&0x07)<<4 | module&0x0F)
}

// Broadcast reports whether the broadcast bit is set.
func (a LegacyAddress) Broadcast() bool { return a&LegacyBroadcastBit != 0 }

// Bank returns the bank field.
func (a LegacyAddress) Bank() uint8 { return uint8(a&0x70) >> 4 }

// Module returns the module field.
func (a LegacyAddress) Module() uint8 { return uint8(a) & 0x0F }

// Next returns the address with the module field incremented, as forwarded
// to the next module in the chain.
func (a LegacyAddress) Next() LegacyAddress {
	return a&0xF0 | (a+1)&0x0F
}

// LegacyCommand is a legacy command code.
type LegacyCommand uint8

const (
	LegacyCmdBankIdentitySet LegacyCommand = 0x00
	LegacyCmdVoltageStatus   LegacyCommand = 0x01
	LegacyCmdIdentify        LegacyCommand = 0x02
	LegacyCmdTemperature     LegacyCommand = 0x03
	LegacyCmdBadPacket       LegacyCommand = 0x04
	LegacyCmdSettingsRead    LegacyCommand = 0x05
	LegacyCmdSettingsWrite   LegacyCommand = 0x06
)

// Code returns the command without the reply flag.
func (c LegacyCommand) Code() LegacyCommand { return c &^ ReplyFlag }

// Reply reports whether the reply flag is set.
func (c LegacyCommand) Reply() bool { return c&ReplyFlag != 0 }

// LegacyPacket is a legacy frame.
type LegacyPacket struct {
	Address  LegacyAddress
	Command  LegacyCommand
	Sequence uint16
	Data     [LegacyDataSlots]uint16
}

// MarshalBinary encodes and seals the packet.
func (p LegacyPacket) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(LegacyFrameSize)
	if err := binary.Write(&buf, binary.LittleEndian, &p); err != nil {
		return nil, fmt.Errorf("failed to encode legacy packet: %w", err)
	}
	frame := append(buf.Bytes(), 0, 0)
	seal(frame)
	return frame, nil
}

// UnmarshalBinary verifies and decodes a frame.
func (p *LegacyPacket) UnmarshalBinary(frame []byte) error {
	if err := verify(frame, LegacyFrameSize); err != nil {
		return err
	}
	r := bytes.NewReader(frame[:LegacyFrameSize-ChecksumSize])
	if err := binary.Read(r, binary.LittleEndian, p); err != nil {
		return fmt.Errorf("failed to decode legacy packet: %w", err)
	}
	return nil
}
