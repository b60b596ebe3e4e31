//go:build tinygo

package main

import (
	"device/arm"
	"machine"
	"time"

	"github.com/itohio/cellbms/pkg/hal"
)

var _ hal.Hardware = (*board)(nil)

// board drives the module pins. The chip has no watchdog interrupt, so the
// sleep loop reports a watchdog wakeup itself and the hardware watchdog only
// resets a stalled loop.
type board struct {
	adc [3]machine.ADC

	loadChannel uint8
	pwmActive   bool

	charTime time.Duration
	led      bool

	// set by Sleep when the sleep watchdog period elapsed
	watchdogWake bool
}

func newBoard() *board {
	return &board{
		adc: [3]machine.ADC{
			hal.CellVoltage:         {Pin: PIN_CELL_VOLTAGE},
			hal.InternalTemperature: {Pin: PIN_INTERNAL_NTC},
			hal.ExternalTemperature: {Pin: PIN_EXTERNAL_NTC},
		},
		charTime: 10 * time.Second / UART_BAUD_RATE,
	}
}

func (b *board) Begin() {
	for _, p := range []machine.Pin{PIN_BALANCE, PIN_REFERENCE, PIN_TX_ENABLE, PIN_STATUS} {
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}

	machine.InitADC()
	for i := range b.adc {
		b.adc[i].Configure(machine.ADCConfig{})
	}

	uart.Configure(machine.UARTConfig{BaudRate: UART_BAUD_RATE})

	if err := loadPWM.Configure(machine.PWMConfig{}); err != nil {
		println("pwm:", err.Error())
		return
	}
	ch, err := loadPWM.Channel(PIN_LOAD)
	if err != nil {
		println("pwm channel:", err.Error())
		return
	}
	b.loadChannel = ch
	loadPWM.Set(ch, 0)
}

func (b *board) DumpLoadOn()  { loadPWM.Set(b.loadChannel, loadPWM.Top()) }
func (b *board) DumpLoadOff() { loadPWM.Set(b.loadChannel, 0) }

func (b *board) ActiveBalanceOn()  { PIN_BALANCE.High() }
func (b *board) ActiveBalanceOff() { PIN_BALANCE.Low() }

func (b *board) ReferenceVoltageOn() {
	PIN_REFERENCE.High()
	time.Sleep(REFERENCE_SETTLE)
}

func (b *board) ReferenceVoltageOff() { PIN_REFERENCE.Low() }

func (b *board) EnableSerialTX()  { PIN_TX_ENABLE.High() }
func (b *board) DisableSerialTX() { PIN_TX_ENABLE.Low() }

// FlushSerial waits for the last character to leave the shift register.
func (b *board) FlushSerial() {
	time.Sleep(2 * b.charTime)
}

func (b *board) WatchdogOn() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: HW_WATCHDOG_MS})
	machine.Watchdog.Start()
}

// WatchdogOff is not supported by the chip once started.
func (b *board) WatchdogOff() {}

func (b *board) WatchdogReset() { machine.Watchdog.Update() }

func (b *board) WatchdogReboot() { arm.SystemReset() }

func (b *board) ReadADC(ch hal.Channel, more bool) uint16 {
	if int(ch) >= len(b.adc) {
		return 0
	}
	return b.adc[ch].Get() >> (16 - ADC_RESOLUTION)
}

func (b *board) PWMBegin() {
	b.pwmActive = true
	loadPWM.Set(b.loadChannel, 0)
}

func (b *board) PWMEnd() {
	b.pwmActive = false
	loadPWM.Set(b.loadChannel, 0)
}

func (b *board) PWMSet(duty uint16) {
	if !b.pwmActive {
		return
	}
	loadPWM.Set(b.loadChannel, uint32(uint64(loadPWM.Top())*uint64(duty)/10000))
}

// Display lights the LED while bypassing and blinks it on every call in
// identify mode.
func (b *board) Display(status hal.Status) {
	switch {
	case status.Has(hal.StatusIdentify):
		b.led = !b.led
	case status.Has(hal.StatusBypassing):
		b.led = true
	default:
		b.led = false
	}
	PIN_STATUS.Set(b.led)
}

// Sleep idles until bus data arrives or the sleep watchdog period elapses.
func (b *board) Sleep() {
	b.led = false
	PIN_STATUS.Low()
	deadline := time.Now().Add(SLEEP_WATCHDOG)
	b.watchdogWake = false
	for uart.Buffered() == 0 {
		if time.Now().After(deadline) {
			b.watchdogWake = true
			return
		}
		machine.Watchdog.Update()
		time.Sleep(time.Millisecond)
	}
}

func (b *board) Delay(d time.Duration) { time.Sleep(d) }
