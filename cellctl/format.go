package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/itohio/cellbms/pkg/protocol"
)

// halfSetting is one byte of a packed slot.
type halfSetting struct {
	slot int
	high bool
}

var halfSettings = map[string]halfSetting{
	"cell_over":       {protocol.SlotCellTemperature, true},
	"cell_under":      {protocol.SlotCellTemperature, false},
	"bypass_over":     {protocol.SlotBypassTemperature, true},
	"bypass_setpoint": {protocol.SlotBypassTemperature, false},
}

var flagSettings = map[string]uint16{
	"bypass":              protocol.FlagBypass,
	"balancing":           protocol.FlagBalancing,
	"balancing_on_bypass": protocol.FlagBalancingOnBypass,
}

var wordSettings = map[string]int{
	"bypass_voltage":    protocol.SlotBypassVoltage,
	"bypass_resistance": protocol.SlotBypassResistance,
	"bypass_duration":   protocol.SlotBypassDuration,
	"bypass_cooldown":   protocol.SlotBypassCooldown,
	"balancing_voltage": protocol.SlotBalancingVoltage,
	"volt_offset":       protocol.SlotVoltOffset,
	"volt_reference":    protocol.SlotVoltReference,
	"internal_beta":     protocol.SlotInternalBeta,
	"external_beta":     protocol.SlotExternalBeta,
}

func settingNames() []string {
	var names []string
	for n := range halfSettings {
		names = append(names, n)
	}
	for n := range flagSettings {
		names = append(names, n)
	}
	for n := range wordSettings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// settingWrite builds a settings write changing only name. current is only
// consulted for flags, which share one slot.
func settingWrite(current protocol.Settings, name, value string) (protocol.Settings, error) {
	write := protocol.KeepSettings()

	if h, ok := halfSettings[name]; ok {
		v, err := parseByte(value)
		if err != nil {
			return write, err
		}
		if v == 0xFF {
			return write, fmt.Errorf("%s: 255 is reserved", name)
		}
		if h.high {
			write[h.slot] = uint16(v)<<8 | 0x00FF
		} else {
			write[h.slot] = 0xFF00 | uint16(v)
		}
		return write, nil
	}

	if bit, ok := flagSettings[name]; ok {
		on, err := strconv.ParseBool(value)
		if err != nil {
			return write, fmt.Errorf("%s: %w", name, err)
		}
		flags := current[protocol.SlotFlags]
		if on {
			flags |= bit
		} else {
			flags &^= bit
		}
		write[protocol.SlotFlags] = flags
		return write, nil
	}

	if slot, ok := wordSettings[name]; ok {
		v, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return write, fmt.Errorf("%s: %w", name, err)
		}
		if v == protocol.Keep {
			return write, fmt.Errorf("%s: 65535 is reserved", name)
		}
		write[slot] = uint16(v)
		return write, nil
	}

	return write, fmt.Errorf("unknown setting %q", name)
}

func formatSettings(s protocol.Settings) string {
	var w strings.Builder
	flags := s[protocol.SlotFlags]

	fmt.Fprintf(&w, "cell_over           %d C\n", s[protocol.SlotCellTemperature]>>8)
	fmt.Fprintf(&w, "cell_under          %d C\n", s[protocol.SlotCellTemperature]&0xFF)
	fmt.Fprintf(&w, "bypass_over         %d C\n", s[protocol.SlotBypassTemperature]>>8)
	fmt.Fprintf(&w, "bypass_setpoint     %d C\n", s[protocol.SlotBypassTemperature]&0xFF)
	fmt.Fprintf(&w, "bypass              %t\n", flags&protocol.FlagBypass != 0)
	fmt.Fprintf(&w, "balancing           %t\n", flags&protocol.FlagBalancing != 0)
	fmt.Fprintf(&w, "balancing_on_bypass %t\n", flags&protocol.FlagBalancingOnBypass != 0)
	fmt.Fprintf(&w, "bypass_voltage      %d mV\n", s[protocol.SlotBypassVoltage])
	fmt.Fprintf(&w, "bypass_resistance   %d mOhm\n", s[protocol.SlotBypassResistance])
	fmt.Fprintf(&w, "bypass_duration     %d cycles\n", s[protocol.SlotBypassDuration])
	fmt.Fprintf(&w, "bypass_cooldown     %d cycles\n", s[protocol.SlotBypassCooldown])
	fmt.Fprintf(&w, "balancing_voltage   %d mV\n", s[protocol.SlotBalancingVoltage])
	fmt.Fprintf(&w, "volt_offset         %d\n", s[protocol.SlotVoltOffset])
	fmt.Fprintf(&w, "volt_reference      %d\n", s[protocol.SlotVoltReference])
	fmt.Fprintf(&w, "internal_beta       %d\n", s[protocol.SlotInternalBeta])
	fmt.Fprintf(&w, "external_beta       %d\n", s[protocol.SlotExternalBeta])
	return w.String()
}

// formatDeci prints a deci-Celsius reading, or "n/a" for a missing sensor.
func formatDeci(v int16) string {
	if v <= -2732 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f C", float64(v)/10)
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint8(v), nil
}

// parseTarget parses "BANK CELL" or "broadcast BANK".
func parseTarget(args []string) (protocol.Address, error) {
	if len(args) != 2 {
		return 0, fmt.Errorf("BANK CELL or broadcast BANK required")
	}
	if args[0] == "broadcast" || args[0] == "b" {
		bank, err := parseByte(args[1])
		if err != nil {
			return 0, err
		}
		return protocol.BroadcastAddress(bank), nil
	}
	bank, err := parseByte(args[0])
	if err != nil {
		return 0, err
	}
	if bank > 0x0F {
		return 0, fmt.Errorf("bank %d out of range", bank)
	}
	id, err := parseByte(args[1])
	if err != nil {
		return 0, err
	}
	return protocol.NewAddress(bank, id), nil
}
