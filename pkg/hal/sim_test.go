package hal

import (
	"testing"
	"time"

	"github.com/itohio/cellbms/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim() *Sim {
	cfg := config.Default().Sim
	return NewSim(&cfg)
}

func TestSim_ReadADC(t *testing.T) {
	sim := newTestSim()
	sim.SetCellVoltage(4200)
	sim.SetOnboardTemperature(25)
	sim.SetExternalTemperature(25)

	assert.Equal(t, uint16(995), sim.ReadADC(CellVoltage, true))
	assert.True(t, sim.State().ADCPowered)
	assert.Equal(t, uint16(512), sim.ReadADC(InternalTemperature, true))
	assert.Equal(t, uint16(512), sim.ReadADC(ExternalTemperature, false))
	assert.False(t, sim.State().ADCPowered)

	sim.SetExternalConnected(false)
	assert.Equal(t, uint16(0), sim.ReadADC(ExternalTemperature, false))

	assert.Equal(t, []string{
		"adc:cell_voltage",
		"adc:internal_temperature",
		"adc:external_temperature",
		"adc:external_temperature",
	}, sim.Calls())
}

func TestSim_ReadADCClamps(t *testing.T) {
	sim := newTestSim()

	sim.SetCellVoltage(1000)
	assert.Equal(t, uint16(0), sim.ReadADC(CellVoltage, false))

	sim.SetCellVoltage(9000)
	assert.Equal(t, uint16(1023), sim.ReadADC(CellVoltage, false))
}

func TestSim_Actuators(t *testing.T) {
	sim := newTestSim()

	sim.Begin()
	sim.DumpLoadOn()
	sim.ActiveBalanceOn()
	sim.PWMBegin()
	sim.PWMSet(2500)
	sim.WatchdogOn()
	sim.Display(StatusBypassing | StatusProvisioned)

	st := sim.State()
	assert.True(t, st.Load)
	assert.True(t, st.Balance)
	assert.True(t, st.PWM)
	assert.Equal(t, uint16(2500), st.Duty)
	assert.True(t, st.Watchdog)
	assert.Equal(t, StatusBypassing|StatusProvisioned, st.Status)
	assert.Equal(t, 1, st.Displays)

	sim.PWMEnd()
	sim.DumpLoadOff()
	sim.ActiveBalanceOff()

	st = sim.State()
	assert.False(t, st.Load)
	assert.False(t, st.Balance)
	assert.False(t, st.PWM)
	assert.Zero(t, st.Duty)
}

func TestSim_SerialOrdering(t *testing.T) {
	sim := newTestSim()

	var txDuringFlush bool
	sim.OnFlush(func() { txDuringFlush = sim.State().TX })

	sim.EnableSerialTX()
	sim.FlushSerial()
	sim.DisableSerialTX()

	assert.True(t, txDuringFlush)
	assert.Equal(t, []string{"tx_on", "flush", "tx_off"}, sim.Calls())

	sim.ResetCalls()
	assert.Empty(t, sim.Calls())
}

func TestSim_Bookkeeping(t *testing.T) {
	sim := newTestSim()

	sim.Sleep()
	sim.Delay(20 * time.Millisecond)
	sim.Delay(30 * time.Millisecond)
	sim.WatchdogReset()
	sim.WatchdogReboot()

	st := sim.State()
	assert.Equal(t, 1, st.Sleeps)
	assert.Equal(t, 50*time.Millisecond, st.Delayed)
	assert.Equal(t, 1, st.Resets)
	assert.Equal(t, 1, st.Reboots)
}

func TestSim_Advance(t *testing.T) {
	sim := newTestSim()
	sim.SetCellVoltage(4000)

	// Idle: temperature stays at ambient, the cell charges
	sim.Advance(10 * time.Second)
	assert.InDelta(t, 25, sim.OnboardTemperature(), 1e-9)
	assert.InDelta(t, 4005, sim.CellVoltage(), 1e-9)

	// Full duty through 2.667 Ohm at ~4V heats the resistor towards ~97C
	sim.SetCellVoltage(4000)
	sim.PWMBegin()
	sim.PWMSet(10000)
	sim.Advance(30 * time.Second)
	assert.InDelta(t, 25+16/2.667*12, sim.OnboardTemperature(), 0.01)
	assert.InDelta(t, 4000+15-60, sim.CellVoltage(), 1e-9)

	// Half duty halves the dissipated power
	sim.SetOnboardTemperature(25)
	sim.SetCellVoltage(4000)
	sim.PWMSet(5000)
	sim.Advance(30 * time.Second)
	assert.InDelta(t, 25+8/2.667*12, sim.OnboardTemperature(), 0.1)

	// Once the load is off the resistor cools back to ambient
	sim.PWMEnd()
	sim.Advance(time.Minute)
	assert.InDelta(t, 25, sim.OnboardTemperature(), 1e-9)
}

func TestSim_AdvanceLag(t *testing.T) {
	sim := newTestSim()
	sim.SetCellVoltage(4000)
	sim.DumpLoadOn()

	sim.Advance(3 * time.Second)
	first := sim.OnboardTemperature()
	require.Greater(t, first, 25.0)
	require.Less(t, first, 97.0)

	sim.Advance(3 * time.Second)
	assert.Greater(t, sim.OnboardTemperature(), first)
}

func TestNewSim_Defaults(t *testing.T) {
	sim := NewSim(nil)
	assert.InDelta(t, 3900, sim.CellVoltage(), 1e-9)
	assert.InDelta(t, 25, sim.OnboardTemperature(), 1e-9)
}
