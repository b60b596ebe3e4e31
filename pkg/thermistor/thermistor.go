// Package thermistor converts NTC thermistor readings taken through a
// resistor divider into temperatures using the Beta approximation of the
// Steinhart-Hart equation.
package thermistor

import (
	"math"

	"github.com/chewxy/math32"
)

const (
	// SeriesResistor is the fixed divider resistor in ohms.
	SeriesResistor = 47000
	// NominalResistance is the thermistor resistance at NominalTemperature.
	NominalResistance = 47000
	// NominalTemperature is the Beta reference temperature in Celsius.
	NominalTemperature = 25

	// FullScale is the top of the 10-bit ADC range.
	FullScale = 1023

	// AbsoluteZero is returned for a zero reading (sensor grounded or missing).
	AbsoluteZero float32 = -273.15

	// Disconnected is AbsoluteZero expressed in deci-Celsius.
	Disconnected int16 = -2732

	kelvin float32 = 273.15
)

// RawToCelsius converts a 10-bit ADC reading into Celsius. A reading of 0 is
// the disconnected sentinel and yields AbsoluteZero. Readings at or above
// full scale are clamped one step below it so the result stays finite.
func RawToCelsius(beta uint16, raw uint16) float32 {
	if raw == 0 {
		return AbsoluteZero
	}
	if raw >= FullScale {
		raw = FullScale - 1
	}

	r := SeriesResistor * (float32(FullScale)/float32(raw) - 1)

	steinhart := math32.Log(r/NominalResistance) / float32(beta)
	steinhart += 1 / (NominalTemperature + kelvin)
	return 1/steinhart - kelvin
}

// DeciCelsius is RawToCelsius scaled by 10 and rounded to the nearest integer,
// saturating at the int16 limits.
func DeciCelsius(beta uint16, raw uint16) int16 {
	d := math32.Round(RawToCelsius(beta, raw) * 10)
	switch {
	case math32.IsNaN(d):
		return Disconnected
	case d >= math.MaxInt16:
		return math.MaxInt16
	case d <= math.MinInt16:
		return math.MinInt16
	}
	return int16(d)
}

// CelsiusToRaw is the inverse of RawToCelsius: the ADC reading a divider
// would produce at the given temperature. The result is clamped to [1, 1022].
func CelsiusToRaw(beta uint16, celsius float32) uint16 {
	if celsius <= AbsoluteZero {
		return 0
	}
	r := NominalResistance * math32.Exp(float32(beta)*(1/(celsius+kelvin)-1/(NominalTemperature+kelvin)))
	raw := math32.Round(FullScale / (r/SeriesResistor + 1))
	switch {
	case raw < 1:
		return 1
	case raw > FullScale-1:
		return FullScale - 1
	}
	return uint16(raw)
}
