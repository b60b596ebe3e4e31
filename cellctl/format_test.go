package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/protocol"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    protocol.Address
		wantErr bool
	}{
		{"directed", []string{"1", "7"}, protocol.NewAddress(1, 7), false},
		{"hex", []string{"0x2", "0x10"}, protocol.NewAddress(2, 16), false},
		{"broadcast", []string{"broadcast", "3"}, protocol.BroadcastAddress(3), false},
		{"short broadcast", []string{"b", "0"}, protocol.BroadcastAddress(0), false},
		{"bank out of range", []string{"16", "0"}, 0, true},
		{"not a number", []string{"x", "1"}, 0, true},
		{"missing cell", []string{"1"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTarget(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingWrite_KeepsOtherSlots(t *testing.T) {
	write, err := settingWrite(protocol.Settings{}, "bypass_voltage", "4150")
	require.NoError(t, err)

	cfg := cell.DefaultConfig()
	before := cfg
	write.Apply(&cfg)

	before.BypassThresholdVoltage = 4150
	assert.Equal(t, before, cfg)
}

func TestSettingWrite_Halves(t *testing.T) {
	write, err := settingWrite(protocol.Settings{}, "bypass_setpoint", "65")
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFF41), write[protocol.SlotBypassTemperature])

	cfg := cell.DefaultConfig()
	write.Apply(&cfg)
	assert.Equal(t, uint8(65), cfg.BypassTemperatureSetpoint)
	assert.Equal(t, cell.DefaultConfig().BypassThresholdOverTemperature, cfg.BypassThresholdOverTemperature)

	write, err = settingWrite(protocol.Settings{}, "cell_over", "50")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x32FF), write[protocol.SlotCellTemperature])
}

func TestSettingWrite_Flags(t *testing.T) {
	current := protocol.Settings{protocol.SlotFlags: protocol.FlagBypass}

	write, err := settingWrite(current, "balancing", "true")
	require.NoError(t, err)
	assert.Equal(t, uint16(protocol.FlagBypass|protocol.FlagBalancing), write[protocol.SlotFlags])

	write, err = settingWrite(current, "bypass", "0")
	require.NoError(t, err)
	assert.Zero(t, write[protocol.SlotFlags])
}

func TestSettingWrite_Rejects(t *testing.T) {
	tests := []struct {
		name, value string
	}{
		{"unknown", "1"},
		{"bypass_voltage", "65535"},
		{"bypass_voltage", "70000"},
		{"cell_under", "255"},
		{"bypass", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"="+tt.value, func(t *testing.T) {
			_, err := settingWrite(protocol.Settings{}, tt.name, tt.value)
			assert.Error(t, err)
		})
	}
}

func TestFormatSettings(t *testing.T) {
	out := formatSettings(protocol.SettingsFromConfig(cell.DefaultConfig()))

	assert.Contains(t, out, "bypass_voltage      4100 mV\n")
	assert.Contains(t, out, "bypass_setpoint     70 C\n")
	assert.Contains(t, out, "bypass              true\n")
}

func TestFormatDeci(t *testing.T) {
	assert.Equal(t, "25.0 C", formatDeci(250))
	assert.Equal(t, "-5.5 C", formatDeci(-55))
	assert.Equal(t, "n/a", formatDeci(-2732))
}

func TestSettingNames(t *testing.T) {
	names := settingNames()
	assert.Len(t, names, len(halfSettings)+len(flagSettings)+len(wordSettings))
	assert.Contains(t, names, "external_beta")
	assert.IsNonDecreasing(t, names)
}
