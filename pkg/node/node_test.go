package node

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/cellbms/pkg/bus"
	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/config"
	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/protocol"
	"github.com/itohio/cellbms/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOffset = 0x10

var fastControl = config.ControlConfig{
	CyclePeriod:      5 * time.Millisecond,
	WatchdogInterval: 50 * time.Millisecond,
	SleepTimeout:     20 * time.Millisecond,
}

type harness struct {
	node       *Node
	sim        *hal.Sim
	core       *cell.Core
	store      *settings.Store
	controller *bus.Pipe
	client     *protocol.Client
	done       chan error
	cancel     context.CancelFunc
}

// newHarness wires a simulated module to an in-memory bus. The stored
// configuration is provisioned as bank 0, cell 3.
func newHarness(t *testing.T, mutate func(*cell.Config)) *harness {
	t.Helper()

	store := settings.New(settings.NewMemory(512), testOffset, cell.ConfigSize)
	cfg := cell.DefaultConfig()
	cfg.BankID = 0
	cfg.CellID = 3
	if mutate != nil {
		mutate(&cfg)
	}
	record, err := cfg.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, store.Write(record))

	sim := hal.NewSim(nil)
	sim.SetCellVoltage(3900)
	sim.SetOnboardTemperature(25)
	sim.SetExternalConnected(false)

	core := cell.New(sim, store)
	controller, module := bus.NewPipe()
	require.NoError(t, controller.Connect())
	require.NoError(t, module.Connect())

	proc, err := protocol.NewProcessor(protocol.V4, core, sim, module)
	require.NoError(t, err)

	h := &harness{
		node:       New(sim, core, proc, module, &fastControl),
		sim:        sim,
		core:       core,
		store:      store,
		controller: controller,
		client:     protocol.NewClient(controller, time.Second, nil),
		done:       make(chan error, 1),
	}
	t.Cleanup(func() {
		controller.Close()
		module.Close()
	})
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- h.node.Run(ctx)
	}()
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("node did not stop")
	}
	return nil
}

func TestRun_AnswersController(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	ctx := context.Background()
	addr := protocol.NewAddress(0, 3)

	status, err := h.client.Ping(ctx, addr)
	require.NoError(t, err)
	assert.True(t, status.Has(hal.StatusProvisioned))

	mv, _, err := h.client.Voltage(ctx, addr)
	require.NoError(t, err)
	assert.InDelta(t, 3900, int(mv), 5)

	onboard, _, err := h.client.Temperature(ctx, addr)
	require.NoError(t, err)
	assert.InDelta(t, 250, int(onboard), 10)

	assert.ErrorIs(t, h.stop(t), context.Canceled)
	assert.NotZero(t, h.node.Cycles())
}

func TestRun_SettingsPersisted(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	ctx := context.Background()
	addr := protocol.NewAddress(0, 3)

	s := protocol.KeepSettings()
	s[protocol.SlotBypassVoltage] = 4000
	got, err := h.client.WriteSettings(ctx, addr, s)
	require.NoError(t, err)
	assert.Equal(t, uint16(4000), got[protocol.SlotBypassVoltage])
	require.ErrorIs(t, h.stop(t), context.Canceled)

	record := make([]byte, cell.ConfigSize)
	require.NoError(t, h.store.Read(record))
	var stored cell.Config
	require.NoError(t, stored.UnmarshalBinary(record))
	assert.Equal(t, uint16(4000), stored.BypassThresholdVoltage)
}

func TestRun_SleepsWhenIdle(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	assert.Eventually(t, func() bool {
		return h.sim.State().Sleeps >= 2
	}, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, h.stop(t), context.Canceled)
	assert.Zero(t, h.sim.State().Reboots)
}

func TestRun_StaysAwakeWhileBypassing(t *testing.T) {
	h := newHarness(t, func(c *cell.Config) {
		c.BypassDurationCount = 1000
	})
	h.sim.SetCellVoltage(4200)

	snapshots := make(chan cell.Snapshot, 256)
	h.node.OnCycle(func(s cell.Snapshot) {
		select {
		case snapshots <- s:
		default:
		}
	})
	h.start()

	var bypassing cell.Snapshot
	require.Eventually(t, func() bool {
		for {
			select {
			case s := <-snapshots:
				if s.Status.Has(hal.StatusBypassing) && s.Duty > 0 {
					bypassing = s
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)

	sleeps := h.sim.State().Sleeps
	time.Sleep(50 * time.Millisecond)
	require.ErrorIs(t, h.stop(t), context.Canceled)

	assert.Equal(t, sleeps, h.sim.State().Sleeps, "must not sleep while bypassing")
	assert.Equal(t, uint8(3), bypassing.CellID)
	assert.True(t, h.sim.State().PWM)
}

func TestRun_LinkClosed(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	require.NoError(t, h.controller.Close())

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, ErrLinkClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("node did not notice the closed link")
	}
	h.cancel()
}

func TestRun_BeginFailure(t *testing.T) {
	store := settings.New(settings.NewMemory(512), testOffset, cell.ConfigSize-1)
	sim := hal.NewSim(nil)
	core := cell.New(sim, store)
	_, module := bus.NewPipe()

	proc, err := protocol.NewProcessor(protocol.V4, core, sim, module)
	require.NoError(t, err)

	n := New(sim, core, proc, module, &fastControl)
	err = n.Run(context.Background())

	assert.ErrorIs(t, err, settings.ErrCapacity)
	assert.True(t, core.Status().Has(hal.StatusFault))
}

func TestRun_AdvancesSimulator(t *testing.T) {
	h := newHarness(t, nil)
	var total time.Duration
	h.node.sim = simFunc(func(dt time.Duration) { total += dt })
	h.start()

	time.Sleep(30 * time.Millisecond)
	require.ErrorIs(t, h.stop(t), context.Canceled)

	assert.Greater(t, total, time.Duration(0))
}

type simFunc func(time.Duration)

func (f simFunc) Advance(dt time.Duration) { f(dt) }
