package protocol

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/itohio/cellbms/pkg/cell"
)

// Settings slots of a V4 settings read or write.
const (
	SlotCellTemperature   = iota // over<<8 | under (C)
	SlotBypassTemperature        // over<<8 | setpoint (C)
	SlotFlags
	SlotBypassVoltage
	SlotBypassResistance
	SlotBypassDuration
	SlotBypassCooldown
	SlotBalancingVoltage
	SlotVoltOffset
	SlotVoltReference
	SlotInternalBeta
	SlotExternalBeta
)

// Flag bits of SlotFlags.
const (
	FlagBypass            = 0x01
	FlagBalancing         = 0x02
	FlagBalancingOnBypass = 0x04
)

// Keep leaves a slot unchanged on write.
const Keep = 0xFFFF

// keepByte leaves one half of a packed slot unchanged on write.
const keepByte = 0xFF

// Settings is the data block of a V4 settings read or write.
type Settings [DataSlots]uint16

// KeepSettings returns a write that changes nothing.
func KeepSettings() Settings {
	var s Settings
	for i := range s {
		s[i] = Keep
	}
	return s
}

// SettingsFromConfig packs cfg into settings slots.
func SettingsFromConfig(cfg cell.Config) Settings {
	var flags uint16
	if cfg.EnableBypass {
		flags |= FlagBypass
	}
	if cfg.EnableBalancing {
		flags |= FlagBalancing
	}
	if cfg.EnableBalancingOnBypass {
		flags |= FlagBalancingOnBypass
	}

	return Settings{
		SlotCellTemperature:   pack(cfg.CellThresholdOverTemperature, cfg.CellThresholdUnderTemperature),
		SlotBypassTemperature: pack(cfg.BypassThresholdOverTemperature, cfg.BypassTemperatureSetpoint),
		SlotFlags:             flags,
		SlotBypassVoltage:     cfg.BypassThresholdVoltage,
		SlotBypassResistance:  cfg.BypassResistance,
		SlotBypassDuration:    cfg.BypassDurationCount,
		SlotBypassCooldown:    cfg.BypassCooldownCount,
		SlotBalancingVoltage:  cfg.BalancingThresholdVoltage,
		SlotVoltOffset:        cfg.VoltOffset,
		SlotVoltReference:     cfg.VoltReference,
		SlotInternalBeta:      cfg.InternalBeta,
		SlotExternalBeta:      cfg.ExternalBeta,
	}
}

// Apply writes the slots into cfg in slot order, skipping Keep slots and
// keepByte halves.
func (s Settings) Apply(cfg *cell.Config) {
	unpack(s[SlotCellTemperature], &cfg.CellThresholdOverTemperature, &cfg.CellThresholdUnderTemperature)
	unpack(s[SlotBypassTemperature], &cfg.BypassThresholdOverTemperature, &cfg.BypassTemperatureSetpoint)

	if f := s[SlotFlags]; f != Keep {
		cfg.EnableBypass = f&FlagBypass != 0
		cfg.EnableBalancing = f&FlagBalancing != 0
		cfg.EnableBalancingOnBypass = f&FlagBalancingOnBypass != 0
	}

	word(s[SlotBypassVoltage], &cfg.BypassThresholdVoltage)
	word(s[SlotBypassResistance], &cfg.BypassResistance)
	word(s[SlotBypassDuration], &cfg.BypassDurationCount)
	word(s[SlotBypassCooldown], &cfg.BypassCooldownCount)
	word(s[SlotBalancingVoltage], &cfg.BalancingThresholdVoltage)
	word(s[SlotVoltOffset], &cfg.VoltOffset)
	word(s[SlotVoltReference], &cfg.VoltReference)
	word(s[SlotInternalBeta], &cfg.InternalBeta)
	word(s[SlotExternalBeta], &cfg.ExternalBeta)
}

func pack(hi, lo uint8) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

func unpack(v uint16, hi, lo *uint8) {
	if h := uint8(v >> 8); h != keepByte {
		*hi = h
	}
	if l := uint8(v); l != keepByte {
		*lo = l
	}
}

func word(v uint16, dst *uint16) {
	if v != Keep {
		*dst = v
	}
}

// Legacy settings slots. Floats occupy two words, low word first.
const (
	LegacySlotResistance    = 0 // float32 Ohm
	LegacySlotVoltOffset    = 2 // float32 V
	LegacySlotVoltReference = 4 // float32 mV per ADC step
	LegacySlotSetpoint      = 6
	LegacySlotBypassVoltage = 7
	LegacySlotInternalBeta  = 8
	LegacySlotExternalBeta  = 9
)

// floatKeep is the smallest float that leaves a legacy float slot unchanged.
const floatKeep = 0xFFFF

func putFloat(data []uint16, slot int, f float32) {
	bits := math32.Float32bits(f)
	data[slot] = uint16(bits)
	data[slot+1] = uint16(bits >> 16)
}

func getFloat(data []uint16, slot int) float32 {
	return math32.Float32frombits(uint32(data[slot]) | uint32(data[slot+1])<<16)
}

// saturate16 converts f to uint16, clamping to the type's range. NaN is 0.
func saturate16(f float32) uint16 {
	switch {
	case !(f > 0):
		return 0
	case f >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(f)
}

// floatSet reports whether a legacy float slot carries a value. NaN and
// anything at or above floatKeep leave the field unchanged.
func floatSet(f float32) bool {
	return f < floatKeep
}

// legacySettingsRead fills data with cfg in the legacy layout.
func legacySettingsRead(cfg cell.Config, data []uint16) {
	putFloat(data, LegacySlotResistance, float32(cfg.BypassResistance)/1000)
	putFloat(data, LegacySlotVoltOffset, float32(cfg.VoltOffset)/1000)
	putFloat(data, LegacySlotVoltReference, float32(cfg.VoltReference))
	data[LegacySlotSetpoint] = uint16(cfg.BypassTemperatureSetpoint)
	data[LegacySlotBypassVoltage] = cfg.BypassThresholdVoltage
	data[LegacySlotInternalBeta] = cfg.InternalBeta
	data[LegacySlotExternalBeta] = cfg.ExternalBeta
}

// legacySettingsWrite applies a legacy settings write to cfg in slot order.
func legacySettingsWrite(data []uint16, cfg *cell.Config) {
	if f := getFloat(data, LegacySlotResistance); floatSet(f) {
		cfg.BypassResistance = saturate16(math32.Round(f * 1000))
	}
	if f := getFloat(data, LegacySlotVoltOffset); floatSet(f) {
		cfg.VoltOffset = saturate16(math32.Round(f * 1000))
	}
	if f := getFloat(data, LegacySlotVoltReference); floatSet(f) {
		cfg.VoltReference = saturate16(f)
	}
	if v := data[LegacySlotSetpoint]; v != keepByte {
		cfg.BypassTemperatureSetpoint = uint8(v)
	}
	word(data[LegacySlotBypassVoltage], &cfg.BypassThresholdVoltage)
	word(data[LegacySlotInternalBeta], &cfg.InternalBeta)
	word(data[LegacySlotExternalBeta], &cfg.ExternalBeta)
}
