// Package sample reads the analog channels of a cell module and converts the
// raw readings into calibrated values.
package sample

import (
	"math"

	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/thermistor"
)

// Raw is one batch of 10-bit ADC readings.
type Raw struct {
	Voltage  uint16
	Internal uint16
	External uint16
}

// Calibration holds the per-module conversion parameters.
type Calibration struct {
	VoltOffset    uint16 // mV added to the scaled reading
	VoltReference uint16 // mV per ADC step
	InternalBeta  uint16
	ExternalBeta  uint16
}

// Sample represents a processed measurement with physical values.
type Sample struct {
	Voltage  uint16 // Cell voltage (mV)
	Internal int16  // Onboard temperature (deci-Celsius)
	External int16  // External temperature (deci-Celsius), thermistor.Disconnected if absent
}

// Acquire powers the reference, reads the cell voltage, onboard and external
// thermistors in that order, and powers the reference down again. Each read
// blocks for up to hal.ADCLatency.
func Acquire(hw hal.Hardware) Raw {
	hw.ReferenceVoltageOn()
	defer hw.ReferenceVoltageOff()

	var raw Raw
	raw.Voltage = hw.ReadADC(hal.CellVoltage, true)
	raw.Internal = hw.ReadADC(hal.InternalTemperature, true)
	raw.External = hw.ReadADC(hal.ExternalTemperature, false)
	return raw
}

// Convert converts a raw batch using cal.
func Convert(raw Raw, cal Calibration) Sample {
	return Sample{
		Voltage:  adcToMillivolts(raw.Voltage, cal),
		Internal: thermistor.DeciCelsius(cal.InternalBeta, raw.Internal),
		External: thermistor.DeciCelsius(cal.ExternalBeta, raw.External),
	}
}

// adcToMillivolts applies mV = raw * reference + offset, saturating at the
// top of the u16 range.
func adcToMillivolts(adc uint16, cal Calibration) uint16 {
	mv := uint32(adc)*uint32(cal.VoltReference) + uint32(cal.VoltOffset)
	if mv > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(mv)
}

// HasExternal reports whether the external thermistor returned a reading.
func (s Sample) HasExternal() bool {
	return s.External != thermistor.Disconnected
}

// CellTemperature is the external reading when a sensor is fitted, otherwise
// the onboard one.
func (s Sample) CellTemperature() int16 {
	if s.HasExternal() {
		return s.External
	}
	return s.Internal
}
