package cell

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/itohio/cellbms/pkg/sample"
)

// ConfigSize is the packed size of Config in bytes.
const ConfigSize = 27

// Unassigned marks a bank or cell identifier that was never provisioned.
const Unassigned = 0xFF

// Config is the persisted module configuration. Field order and widths
// define the stored layout and must not change.
type Config struct {
	// Communication addresses
	BankID uint8
	CellID uint8

	// Cell temperature limits (C)
	CellThresholdOverTemperature  uint8
	CellThresholdUnderTemperature uint8

	EnableBypass bool

	// Load resistor temperature limit and regulation target (C)
	BypassThresholdOverTemperature uint8
	BypassTemperatureSetpoint      uint8

	BypassThresholdVoltage uint16 // mV
	BypassResistance       uint16 // mOhm
	BypassDurationCount    uint16 // cycles spent in bypass before re-checking
	BypassCooldownCount    uint16 // cycles to stay awake after bypass

	EnableBalancing           bool
	EnableBalancingOnBypass   bool
	BalancingThresholdVoltage uint16 // mV

	VoltOffset    uint16 // mV
	VoltReference uint16 // mV per ADC step
	InternalBeta  uint16
	ExternalBeta  uint16
}

// DefaultConfig returns the factory configuration.
func DefaultConfig() Config {
	return Config{
		BankID:                         Unassigned,
		CellID:                         Unassigned,
		CellThresholdOverTemperature:   70,
		CellThresholdUnderTemperature:  2,
		EnableBypass:                   true,
		BypassThresholdOverTemperature: 80,
		BypassTemperatureSetpoint:      70,
		BypassThresholdVoltage:         4100,
		BypassResistance:               2667, // 2.667 Ohm resistor network
		BypassDurationCount:            200,
		BypassCooldownCount:            200,
		BalancingThresholdVoltage:      4100,
		VoltOffset:                     2210,
		VoltReference:                  2, // 2048mV / 1024
		InternalBeta:                   4150,
		ExternalBeta:                   4150,
	}
}

// Provisioned reports whether a cell identifier has been assigned.
func (c Config) Provisioned() bool {
	return c.CellID != Unassigned
}

// Calibration returns the ADC conversion parameters.
func (c Config) Calibration() sample.Calibration {
	return sample.Calibration{
		VoltOffset:    c.VoltOffset,
		VoltReference: c.VoltReference,
		InternalBeta:  c.InternalBeta,
		ExternalBeta:  c.ExternalBeta,
	}
}

// MarshalBinary encodes the configuration in its packed little-endian layout.
func (c Config) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(ConfigSize)
	if err := binary.Write(&buf, binary.LittleEndian, &c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a packed configuration.
func (c *Config) UnmarshalBinary(data []byte) error {
	if len(data) != ConfigSize {
		return fmt.Errorf("config record is %d bytes, want %d", len(data), ConfigSize)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, c); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}
