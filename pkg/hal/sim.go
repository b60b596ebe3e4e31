package hal

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/cellbms/pkg/config"
	"github.com/itohio/cellbms/pkg/thermistor"
)

// Sim simulates a cell module board: a cell whose voltage drifts up while
// charging and drains through the bypass load, and a load resistor that
// heats the onboard thermistor with thermal lag.
type Sim struct {
	cfg *config.SimConfig

	mu sync.RWMutex

	// Physical state
	voltage           float64 // Cell voltage (mV)
	onboard           float64 // Onboard thermistor (C)
	external          float64 // External thermistor (C)
	externalConnected bool

	// Actuators
	load       bool
	balance    bool
	reference  bool
	adcPowered bool
	pwm        bool
	duty       uint16
	tx         bool
	watchdog   bool

	// Bookkeeping
	status   Status
	displays int
	sleeps   int
	delayed  time.Duration
	reboots  int
	resets   int
	calls    []string

	onFlush func()
}

var _ Hardware = (*Sim)(nil)

// NewSim creates a simulated board. A nil cfg uses config defaults.
func NewSim(cfg *config.SimConfig) *Sim {
	if cfg == nil {
		def := config.Default().Sim
		cfg = &def
	}

	return &Sim{
		cfg:               cfg,
		voltage:           cfg.CellVoltage,
		onboard:           cfg.Ambient,
		external:          cfg.Ambient,
		externalConnected: cfg.ExternalConnected,
	}
}

// Begin implements Hardware.
func (s *Sim) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load = false
	s.reference = false
	s.record("begin")
}

// DumpLoadOn implements Hardware.
func (s *Sim) DumpLoadOn() { s.set(&s.load, true, "load_on") }

// DumpLoadOff implements Hardware.
func (s *Sim) DumpLoadOff() { s.set(&s.load, false, "load_off") }

// ActiveBalanceOn implements Hardware.
func (s *Sim) ActiveBalanceOn() { s.set(&s.balance, true, "balance_on") }

// ActiveBalanceOff implements Hardware.
func (s *Sim) ActiveBalanceOff() { s.set(&s.balance, false, "balance_off") }

// ReferenceVoltageOn implements Hardware.
func (s *Sim) ReferenceVoltageOn() { s.set(&s.reference, true, "reference_on") }

// ReferenceVoltageOff implements Hardware.
func (s *Sim) ReferenceVoltageOff() { s.set(&s.reference, false, "reference_off") }

// EnableSerialTX implements Hardware.
func (s *Sim) EnableSerialTX() { s.set(&s.tx, true, "tx_on") }

// DisableSerialTX implements Hardware.
func (s *Sim) DisableSerialTX() { s.set(&s.tx, false, "tx_off") }

// FlushSerial implements Hardware.
func (s *Sim) FlushSerial() {
	s.mu.Lock()
	s.record("flush")
	fn := s.onFlush
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// WatchdogOn implements Hardware.
func (s *Sim) WatchdogOn() { s.set(&s.watchdog, true, "watchdog_on") }

// WatchdogOff implements Hardware.
func (s *Sim) WatchdogOff() { s.set(&s.watchdog, false, "watchdog_off") }

// WatchdogReset implements Hardware.
func (s *Sim) WatchdogReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// WatchdogReboot implements Hardware.
func (s *Sim) WatchdogReboot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reboots++
	s.record("reboot")
}

// ReadADC implements Hardware.
func (s *Sim) ReadADC(ch Channel, more bool) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adcPowered = more
	s.record("adc:" + ch.String())

	switch ch {
	case CellVoltage:
		raw := math.Round((s.voltage - float64(s.cfg.VoltOffset)) / float64(s.cfg.VoltReference))
		return uint16(math.Max(0, math.Min(raw, thermistor.FullScale)))
	case InternalTemperature:
		return thermistor.CelsiusToRaw(s.cfg.InternalBeta, float32(s.onboard))
	case ExternalTemperature:
		if !s.externalConnected {
			return 0
		}
		return thermistor.CelsiusToRaw(s.cfg.ExternalBeta, float32(s.external))
	}
	return 0
}

// PWMBegin implements Hardware.
func (s *Sim) PWMBegin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pwm = true
	s.duty = 0
	s.record("pwm_begin")
}

// PWMEnd implements Hardware.
func (s *Sim) PWMEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pwm = false
	s.duty = 0
	s.record("pwm_end")
}

// PWMSet implements Hardware.
func (s *Sim) PWMSet(duty uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duty = duty
	s.record(fmt.Sprintf("pwm_set:%d", duty))
}

// Display implements Hardware.
func (s *Sim) Display(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.displays++
}

// Sleep implements Hardware. The simulated board returns immediately; the
// caller decides how long the sleep lasts.
func (s *Sim) Sleep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps++
	s.record("sleep")
}

// Delay implements Hardware. Delays are accounted, not waited for.
func (s *Sim) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed += d
	s.record("delay")
}

// OnFlush registers fn to run when the serial transmitter is flushed.
func (s *Sim) OnFlush(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFlush = fn
}

// Advance moves the physical model forward by dt.
func (s *Sim) Advance(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seconds := dt.Seconds()
	fraction := s.dutyFraction()

	// P = V^2 / R through the load while it conducts
	power := 0.0
	if s.cfg.LoadResistance > 0 {
		v := s.voltage / 1000
		power = v * v / s.cfg.LoadResistance * fraction
	}

	alpha := 1.0
	if tau := s.cfg.ThermalTimeConstant.Seconds(); tau > 0 {
		alpha = math.Min(seconds/tau, 1)
	}
	target := s.cfg.Ambient + power*s.cfg.LoadCoupling
	s.onboard += alpha * (target - s.onboard)
	s.external += alpha * (s.cfg.Ambient - s.external)

	s.voltage += s.cfg.ChargeRate * seconds
	s.voltage -= s.cfg.DrainRate * fraction * seconds
	if s.voltage < 0 {
		s.voltage = 0
	}
}

// dutyFraction returns how much of the time the load conducts.
func (s *Sim) dutyFraction() float64 {
	switch {
	case s.pwm:
		return float64(s.duty) / 10000
	case s.load:
		return 1
	}
	return 0
}

// SetCellVoltage sets the simulated cell voltage in mV.
func (s *Sim) SetCellVoltage(mV float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voltage = mV
}

// SetOnboardTemperature sets the onboard thermistor temperature in Celsius.
func (s *Sim) SetOnboardTemperature(c float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onboard = c
}

// SetExternalTemperature sets the external thermistor temperature in Celsius.
func (s *Sim) SetExternalTemperature(c float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.external = c
}

// SetExternalConnected attaches or detaches the external thermistor.
func (s *Sim) SetExternalConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalConnected = connected
}

// CellVoltage returns the simulated cell voltage in mV.
func (s *Sim) CellVoltage() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voltage
}

// OnboardTemperature returns the simulated onboard temperature in Celsius.
func (s *Sim) OnboardTemperature() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onboard
}

// SimState is a copy of the simulated actuator state.
type SimState struct {
	Load       bool
	Balance    bool
	Reference  bool
	ADCPowered bool
	PWM        bool
	Duty       uint16
	TX         bool
	Watchdog   bool
	Status     Status
	Displays   int
	Sleeps     int
	Delayed    time.Duration
	Reboots    int
	Resets     int
}

// State returns the current actuator state.
func (s *Sim) State() SimState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SimState{
		Load:       s.load,
		Balance:    s.balance,
		Reference:  s.reference,
		ADCPowered: s.adcPowered,
		PWM:        s.pwm,
		Duty:       s.duty,
		TX:         s.tx,
		Watchdog:   s.watchdog,
		Status:     s.status,
		Displays:   s.displays,
		Sleeps:     s.sleeps,
		Delayed:    s.delayed,
		Reboots:    s.reboots,
		Resets:     s.resets,
	}
}

// Calls returns the recorded hardware operations in order.
func (s *Sim) Calls() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.calls...)
}

// ResetCalls clears the recorded operations.
func (s *Sim) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = s.calls[:0]
}

func (s *Sim) set(field *bool, v bool, call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*field = v
	s.record(call)
}

// record must be called with mu held.
func (s *Sim) record(call string) {
	const maxCalls = 1024
	if len(s.calls) >= maxCalls {
		s.calls = s.calls[1:]
	}
	s.calls = append(s.calls, call)
}
