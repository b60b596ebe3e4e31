package protocol

import (
	"testing"

	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/settings"
	"github.com/stretchr/testify/require"
)

const testOffset = 0x10

// capture records sent frames and whether the transmitter was enabled.
type capture struct {
	sim    *hal.Sim
	frames [][]byte
	txOn   []bool
}

func (c *capture) Send(frame []byte) error {
	c.frames = append(c.frames, append([]byte(nil), frame...))
	c.txOn = append(c.txOn, c.sim.State().TX)
	return nil
}

func (c *capture) last(t *testing.T) []byte {
	t.Helper()
	require.NotEmpty(t, c.frames, "no reply sent")
	return c.frames[len(c.frames)-1]
}

type module struct {
	core  *cell.Core
	sim   *hal.Sim
	mem   *settings.Memory
	store *settings.Store
}

func newModule(t *testing.T, mutate func(*cell.Config)) *module {
	t.Helper()
	mem := settings.NewMemory(512)
	store := settings.New(mem, testOffset, cell.ConfigSize)
	sim := hal.NewSim(nil)
	sim.SetCellVoltage(3900)
	sim.SetOnboardTemperature(25)
	sim.SetExternalConnected(false)

	core := cell.New(sim, store)
	require.NoError(t, core.Begin())
	if mutate != nil {
		require.NoError(t, core.UpdateConfig(mutate))
	}
	core.Update()
	sim.ResetCalls()
	return &module{core: core, sim: sim, mem: mem, store: store}
}

func newProcessor(t *testing.T, v Version, m *module) (*Processor, *capture) {
	t.Helper()
	out := &capture{sim: m.sim}
	p, err := NewProcessor(v, m.core, m.sim, out)
	require.NoError(t, err)
	return p, out
}

func provisioned(bank, id uint8) func(*cell.Config) {
	return func(c *cell.Config) {
		c.BankID = bank
		c.CellID = id
	}
}

func frame(t *testing.T, pkt Packet) []byte {
	t.Helper()
	f, err := pkt.MarshalBinary()
	require.NoError(t, err)
	return f
}

func decode(t *testing.T, f []byte) Packet {
	t.Helper()
	var pkt Packet
	require.NoError(t, pkt.UnmarshalBinary(f))
	return pkt
}

func legacyFrame(t *testing.T, pkt LegacyPacket) []byte {
	t.Helper()
	f, err := pkt.MarshalBinary()
	require.NoError(t, err)
	return f
}

func legacyDecode(t *testing.T, f []byte) LegacyPacket {
	t.Helper()
	var pkt LegacyPacket
	require.NoError(t, pkt.UnmarshalBinary(f))
	return pkt
}
