// Package cell implements the control core of a cell module: it samples the
// cell, runs the bypass state machine and keeps the persisted configuration.
package cell

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/pid"
	"github.com/itohio/cellbms/pkg/sample"
	"github.com/itohio/cellbms/pkg/settings"
)

const (
	// WatchdogRebootCount is the number of consecutive watchdog timeouts
	// without a completed cycle after which the module is rebooted.
	WatchdogRebootCount = 3

	// DutyMax is full scale PWM duty.
	DutyMax = 10000

	// Regulator gains for a loop running three times per second.
	pidKp = 150
	pidKi = 2.5
	pidKd = 5
	pidHz = 3
)

// Core is the cell module control core. Update and the configuration
// methods must be called from one goroutine; the interrupt handlers may be
// called from any goroutine.
type Core struct {
	hw        hal.Hardware
	store     *settings.Store
	log       *zap.Logger
	pid       *pid.Controller
	frameWait time.Duration

	cfg Config

	status   hal.Status
	fault    bool
	identify bool

	voltage  uint16
	internal int16
	external int16

	countdown uint16
	cooldown  uint16
	duty      uint16
	balancing bool
	wakeup    Event

	events   atomic.Uint32
	watchdog atomic.Uint32
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Core) {
		c.log = log
	}
}

// WithFrameWait sets how long Update waits for a frame to finish arriving
// after a serial wakeup.
func WithFrameWait(d time.Duration) Option {
	return func(c *Core) {
		c.frameWait = d
	}
}

// WithPID replaces the temperature regulator.
func WithPID(p *pid.Controller) Option {
	return func(c *Core) {
		c.pid = p
	}
}

// New creates a control core driving hw and persisting into store.
func New(hw hal.Hardware, store *settings.Store, opts ...Option) *Core {
	c := &Core{
		hw:    hw,
		store: store,
		log:   zap.NewNop(),
		cfg:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FrameWait returns the time one COBS framed frame of frameSize bytes takes
// on a bus running at baud, plus a settle margin.
func FrameWait(frameSize, baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	bits := (frameSize + 2) * 10
	return time.Duration(bits)*time.Second/time.Duration(baud) + 10*time.Millisecond
}

// Begin initializes the hardware, loads the configuration and configures the
// regulator. A corrupt configuration is replaced by factory defaults. Any
// returned error also raises the fault status.
func (c *Core) Begin() error {
	c.hw.Begin()

	if err := c.LoadConfig(); err != nil {
		c.log.Warn("stored configuration invalid, restoring factory defaults", zap.Error(err))
		if err := c.RestoreFactoryConfig(); err != nil {
			c.fault = true
			c.refreshStatus()
			return err
		}
	}

	if c.pid == nil {
		p, err := pid.New(pidKp, pidKi, pidKd, pidHz)
		if err != nil {
			c.fault = true
			c.refreshStatus()
			return fmt.Errorf("failed to configure regulator: %w", err)
		}
		c.pid = p
	}
	if err := c.pid.SetOutputRange(0, DutyMax); err != nil {
		c.fault = true
		c.refreshStatus()
		return fmt.Errorf("failed to configure regulator: %w", err)
	}

	c.refreshStatus()
	c.log.Info("cell module started",
		zap.Uint8("bank", c.cfg.BankID),
		zap.Uint8("cell", c.cfg.CellID),
	)
	return nil
}

// Update runs one control cycle and reports whether the module may sleep
// afterwards.
func (c *Core) Update() bool {
	ev := Event(c.events.Swap(0))
	awaked := ev != 0
	if awaked {
		c.wakeup = ev
	}

	s := sample.Convert(sample.Acquire(c.hw), c.cfg.Calibration())
	c.voltage = s.Voltage
	c.internal = s.Internal
	c.external = s.External

	cellTemp := s.CellTemperature()
	cellOver := cellTemp > int16(c.cfg.CellThresholdOverTemperature)*10
	cellUnder := cellTemp < int16(c.cfg.CellThresholdUnderTemperature)*10
	loadOverheated := c.internal > int16(c.cfg.BypassThresholdOverTemperature)*10

	if c.countdown > 0 {
		if loadOverheated {
			c.countdown = 0
		} else {
			c.duty = uint16(c.pid.Step(int(c.cfg.BypassTemperatureSetpoint)*10, int(c.internal)))
			c.hw.PWMSet(c.duty)
			c.countdown--
		}
		if c.countdown == 0 {
			c.stopBypass(loadOverheated)
		}
	} else if c.cooldown > 0 {
		c.cooldown--
	}

	if c.voltage > c.cfg.BypassThresholdVoltage && c.cfg.EnableBypass && c.countdown == 0 &&
		c.cfg.BypassDurationCount > 0 && !loadOverheated {
		c.startBypass()
	}

	c.updateBalancing()

	c.refreshStatus()
	c.status = c.status.
		Set(hal.StatusAwaked, awaked).
		Set(hal.StatusOverTemp, cellOver || loadOverheated).
		Set(hal.StatusUnderTemp, cellUnder)
	c.hw.Display(c.status)

	// A completed cycle proves the loop is alive
	c.watchdog.Store(0)

	if ev.Has(EventSerial) {
		c.hw.Delay(c.frameWait)
		return false
	}

	return c.countdown == 0 && c.cooldown == 0 && !Event(c.events.Load()).Has(EventSerial)
}

func (c *Core) startBypass() {
	c.pid.Reset()
	c.hw.PWMBegin()
	c.hw.PWMSet(0)
	c.duty = 0
	c.countdown = c.cfg.BypassDurationCount
	c.cooldown = 0
	c.log.Debug("bypass started",
		zap.Uint16("voltage", c.voltage),
		zap.Uint16("threshold", c.cfg.BypassThresholdVoltage),
	)
}

func (c *Core) stopBypass(overheated bool) {
	c.hw.PWMEnd()
	c.hw.DumpLoadOff()
	c.duty = 0
	c.cooldown = c.cfg.BypassCooldownCount
	c.log.Debug("bypass finished",
		zap.Bool("overheated", overheated),
		zap.Int16("onboard", c.internal),
		zap.Uint16("cooldown", c.cooldown),
	)
}

func (c *Core) updateBalancing() {
	want := c.cfg.EnableBalancing &&
		c.voltage > c.cfg.BalancingThresholdVoltage &&
		(c.countdown == 0 || c.cfg.EnableBalancingOnBypass)

	if want == c.balancing {
		return
	}
	c.balancing = want
	if want {
		c.hw.ActiveBalanceOn()
	} else {
		c.hw.ActiveBalanceOff()
	}
}

// refreshStatus re-derives the bits that follow the configuration and the
// bypass state. Reading dependent bits are set by Update.
func (c *Core) refreshStatus() {
	c.status = c.status.
		Set(hal.StatusProvisioned, c.cfg.Provisioned()).
		Set(hal.StatusIdentify, c.identify).
		Set(hal.StatusBypassing, c.countdown > 0).
		Set(hal.StatusBalancing, c.balancing).
		Set(hal.StatusFault, c.fault)
}

// OnWakeup must be called after hw.Sleep returns. A wakeup that was neither
// the watchdog nor a pin change came from the serial line.
func (c *Core) OnWakeup() {
	ev := Event(c.events.Load())
	if !ev.Has(EventWatchdog) && !ev.Has(EventPinChange) {
		c.SerialInterrupt()
	}
}

// WatchdogInterrupt handles a watchdog timeout and returns the number of
// consecutive timeouts without a completed cycle.
func (c *Core) WatchdogInterrupt() uint16 {
	c.raise(EventWatchdog)

	if WatchdogRebootCount > 0 && c.watchdog.Load() >= WatchdogRebootCount {
		c.hw.WatchdogReboot()
	}
	c.hw.WatchdogReset()

	return uint16(c.watchdog.Add(1))
}

// SerialInterrupt signals inbound serial data.
func (c *Core) SerialInterrupt() {
	c.raise(EventSerial)
}

// PinChangeInterrupt signals a pin level change.
func (c *Core) PinChangeInterrupt() {
	c.raise(EventPinChange)
}

func (c *Core) raise(e Event) {
	c.events.Or(uint32(e))
}

// Pending returns the events not yet consumed by Update.
func (c *Core) Pending() Event {
	return Event(c.events.Load())
}

// Config returns a copy of the active configuration.
func (c *Core) Config() Config {
	return c.cfg
}

// UpdateConfig applies fn to the configuration and persists the result.
func (c *Core) UpdateConfig(fn func(*Config)) error {
	fn(&c.cfg)
	c.refreshStatus()
	return c.StoreConfig()
}

// StoreConfig persists the active configuration.
func (c *Core) StoreConfig() error {
	record, err := c.cfg.MarshalBinary()
	if err != nil {
		return err
	}
	if err := c.store.Write(record); err != nil {
		return fmt.Errorf("failed to store config: %w", err)
	}
	return nil
}

// LoadConfig replaces the active configuration with the stored one. The
// active configuration is unchanged on error.
func (c *Core) LoadConfig() error {
	record := make([]byte, ConfigSize)
	if err := c.store.Read(record); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := cfg.UnmarshalBinary(record); err != nil {
		return err
	}
	c.cfg = cfg
	c.refreshStatus()
	return nil
}

// RestoreFactoryConfig replaces the configuration with factory defaults and
// persists it.
func (c *Core) RestoreFactoryConfig() error {
	c.cfg = DefaultConfig()
	c.refreshStatus()
	return c.StoreConfig()
}

// SetIdentify switches the identify indicator.
func (c *Core) SetIdentify(on bool) {
	c.identify = on
	c.refreshStatus()
	c.hw.Display(c.status)
}

// Identify reports whether the identify indicator is on.
func (c *Core) Identify() bool {
	return c.identify
}

// Status returns the status bits of the last cycle.
func (c *Core) Status() hal.Status {
	return c.status
}

// CellVoltage returns the last cell voltage in mV.
func (c *Core) CellVoltage() uint16 {
	return c.voltage
}

// OnboardTemperature returns the last onboard temperature in deci-Celsius.
func (c *Core) OnboardTemperature() int16 {
	return c.internal
}

// ExternalTemperature returns the last external temperature in deci-Celsius.
func (c *Core) ExternalTemperature() int16 {
	return c.external
}

// BypassCountdown returns the bypass cycles left.
func (c *Core) BypassCountdown() uint16 {
	return c.countdown
}

// BypassCooldown returns the cooldown cycles left.
func (c *Core) BypassCooldown() uint16 {
	return c.cooldown
}

// Duty returns the current PWM duty in [0, DutyMax].
func (c *Core) Duty() uint16 {
	return c.duty
}

// WakeupCause returns the events drained by the last woken cycle.
func (c *Core) WakeupCause() Event {
	return c.wakeup
}

// Snapshot is a copy of the live state.
type Snapshot struct {
	Status          hal.Status
	Voltage         uint16
	Onboard         int16
	External        int16
	BypassCountdown uint16
	BypassCooldown  uint16
	Duty            uint16
	WakeupCause     Event
	BankID          uint8
	CellID          uint8
}

// Snapshot returns a copy of the live state for observers outside the
// control loop.
func (c *Core) Snapshot() Snapshot {
	return Snapshot{
		Status:          c.status,
		Voltage:         c.voltage,
		Onboard:         c.internal,
		External:        c.external,
		BypassCountdown: c.countdown,
		BypassCooldown:  c.cooldown,
		Duty:            c.duty,
		WakeupCause:     c.wakeup,
		BankID:          c.cfg.BankID,
		CellID:          c.cfg.CellID,
	}
}
