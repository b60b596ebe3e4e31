package thermistor

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestRawToCelsius_Zero(t *testing.T) {
	assert.Equal(t, float32(-273.15), RawToCelsius(4150, 0))
	assert.Equal(t, Disconnected, DeciCelsius(4150, 0))
}

func TestRawToCelsius_KnownPoints(t *testing.T) {
	tests := []struct {
		name string
		raw  uint16
		want float32
	}{
		{"freezing side", 256, 3.213},
		{"mid scale", 512, 25.042},
		{"warm", 700, 42.542},
		{"hot", 900, 74.743},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RawToCelsius(4150, tt.raw), 0.05)
		})
	}
}

func TestRawToCelsius_Monotonic(t *testing.T) {
	// Higher readings mean lower thermistor resistance, i.e. a hotter sensor.
	prev := RawToCelsius(4150, 1)
	for raw := uint16(2); raw <= FullScale; raw++ {
		got := RawToCelsius(4150, raw)
		assert.False(t, math32.IsInf(got, 0) || math32.IsNaN(got), "raw %d not finite", raw)
		if raw < FullScale {
			assert.Greater(t, got, prev, "raw %d", raw)
		}
		prev = got
	}
}

func TestDeciCelsius_Rounding(t *testing.T) {
	assert.Equal(t, int16(250), DeciCelsius(4150, 512))
	assert.Equal(t, int16(425), DeciCelsius(4150, 700))
}

func TestDeciCelsius_Saturates(t *testing.T) {
	tests := []struct {
		name string
		beta uint16
		want int16
	}{
		{"far above range", 2068, math.MaxInt16},
		{"above range", 2100, math.MaxInt16},
		{"below range", 2000, math.MinInt16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeciCelsius(tt.beta, FullScale-1))
		})
	}
}

func TestCelsiusToRaw_RoundTrip(t *testing.T) {
	tests := []struct {
		celsius float32
		raw     uint16
	}{
		{25, 512},
		{40, 676},
		{70, 881},
		{-10, 139},
	}

	for _, tt := range tests {
		raw := CelsiusToRaw(4150, tt.celsius)
		assert.Equal(t, tt.raw, raw, "celsius %v", tt.celsius)
		assert.InDelta(t, tt.celsius, RawToCelsius(4150, raw), 0.2)
	}

	assert.Equal(t, uint16(0), CelsiusToRaw(4150, AbsoluteZero))
}
