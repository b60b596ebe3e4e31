// Package hal defines the hardware capabilities a cell module needs. The
// control core and protocol processor only see this interface, so each chip
// binding implements it on its own.
package hal

import "time"

// Channel selects an analog input.
type Channel uint8

const (
	// CellVoltage is the divided cell voltage.
	CellVoltage Channel = iota
	// InternalTemperature is the onboard thermistor next to the load resistor.
	InternalTemperature
	// ExternalTemperature is the thermistor attached to the cell.
	ExternalTemperature
)

// String returns the channel name.
func (c Channel) String() string {
	switch c {
	case CellVoltage:
		return "cell_voltage"
	case InternalTemperature:
		return "internal_temperature"
	case ExternalTemperature:
		return "external_temperature"
	}
	return "unknown"
}

// ADCLatency is the worst-case duration of a ReadADC call: reference and
// converter settling followed by one conversion.
const ADCLatency = 15 * time.Millisecond

// Hardware is the set of operations the core drives. Implementations are
// only called from the control loop.
type Hardware interface {
	Begin()

	DumpLoadOn()
	DumpLoadOff()

	ActiveBalanceOn()
	ActiveBalanceOff()

	ReferenceVoltageOn()
	ReferenceVoltageOff()

	EnableSerialTX()
	DisableSerialTX()
	FlushSerial()

	WatchdogOn()
	WatchdogOff()
	WatchdogReset()
	WatchdogReboot()

	// ReadADC blocks for at most ADCLatency and returns a 10-bit reading.
	// With more set the converter stays powered for a following reading.
	ReadADC(ch Channel, more bool) uint16

	PWMBegin()
	PWMEnd()
	// PWMSet sets the duty in 1/10000 steps.
	PWMSet(duty uint16)

	// Display renders the aggregate status, e.g. on a status LED.
	Display(status Status)

	// Sleep enters low power until an interrupt fires.
	Sleep()
	// Delay blocks for d.
	Delay(d time.Duration)
}
