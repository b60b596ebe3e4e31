package protocol

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/itohio/cellbms/pkg/cell"
	"github.com/stretchr/testify/assert"
)

func TestSettings_KeepChangesNothing(t *testing.T) {
	cfg := cell.DefaultConfig()
	cfg.EnableBalancing = true

	got := cfg
	KeepSettings().Apply(&got)
	assert.Equal(t, cfg, got)
}

func TestSettings_RoundTrip(t *testing.T) {
	cfg := cell.DefaultConfig()
	cfg.CellThresholdOverTemperature = 60
	cfg.BypassTemperatureSetpoint = 55
	cfg.EnableBypass = false
	cfg.EnableBalancingOnBypass = true
	cfg.VoltReference = 3

	got := cell.DefaultConfig()
	SettingsFromConfig(cfg).Apply(&got)
	assert.Equal(t, cfg, got)
}

func TestSettings_PackedHalves(t *testing.T) {
	cfg := cell.DefaultConfig()
	s := KeepSettings()
	s[SlotBypassTemperature] = 90<<8 | 0xFF

	s.Apply(&cfg)
	assert.Equal(t, uint8(90), cfg.BypassThresholdOverTemperature)
	assert.Equal(t, uint8(70), cfg.BypassTemperatureSetpoint)
}

func TestLegacyFloatSentinel(t *testing.T) {
	data := make([]uint16, 2)

	data[0], data[1] = Keep, Keep // NaN
	assert.False(t, floatSet(getFloat(data, 0)))

	putFloat(data, 0, 65535)
	assert.False(t, floatSet(getFloat(data, 0)))

	putFloat(data, 0, 2.5)
	assert.True(t, floatSet(getFloat(data, 0)))
	assert.Equal(t, float32(2.5), getFloat(data, 0))
}

func TestLegacySettingsWrite_Setpoint(t *testing.T) {
	tests := []struct {
		name string
		slot uint16
		want uint8
	}{
		{"keep", 0x00FF, 70},
		{"all ones", 0xFFFF, 255},
		{"high byte set", 0x01FF, 255},
		{"value", 0x0041, 65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]uint16, LegacyDataSlots)
			for i := range data {
				data[i] = Keep
			}
			data[LegacySlotSetpoint] = tt.slot

			cfg := cell.DefaultConfig()
			legacySettingsWrite(data, &cfg)
			assert.Equal(t, tt.want, cfg.BypassTemperatureSetpoint)
		})
	}
}

func TestLegacySettingsWrite_Saturates(t *testing.T) {
	data := make([]uint16, LegacyDataSlots)
	for i := range data {
		data[i] = Keep
	}
	putFloat(data, LegacySlotResistance, 1000)
	putFloat(data, LegacySlotVoltOffset, -1)
	putFloat(data, LegacySlotVoltReference, 65534.5)

	cfg := cell.DefaultConfig()
	legacySettingsWrite(data, &cfg)
	assert.Equal(t, uint16(65535), cfg.BypassResistance)
	assert.Equal(t, uint16(0), cfg.VoltOffset)
	assert.Equal(t, uint16(65534), cfg.VoltReference)
}

func TestSaturate16(t *testing.T) {
	assert.Equal(t, uint16(0), saturate16(math32.NaN()))
	assert.Equal(t, uint16(0), saturate16(-3))
	assert.Equal(t, uint16(1234), saturate16(1234.7))
	assert.Equal(t, uint16(65535), saturate16(1e9))
	assert.Equal(t, uint16(65535), saturate16(math32.Inf(1)))
}
