package protocol

import (
	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/cell"
)

type v4Dialect struct {
	p *Processor
}

func (d *v4Dialect) handle(frame []byte) ([]byte, Outcome) {
	var pkt Packet
	if err := pkt.UnmarshalBinary(frame); err != nil {
		return nil, Rejected
	}
	if pkt.Command.Reply() {
		return nil, Ignored
	}
	if !d.addressed(pkt.Address) {
		return nil, Ignored
	}
	if !d.dispatch(&pkt) {
		d.p.log.Debug("unsupported command", zap.Stringer("command", pkt.Command))
		return nil, Unsupported
	}

	pkt.Command |= ReplyFlag
	pkt.Stats = uint8(d.p.module.Status())

	reply, err := pkt.MarshalBinary()
	if err != nil {
		d.p.log.Error("failed to encode reply", zap.Error(err))
		return nil, Ignored
	}
	return reply, Replied
}

// addressed accepts broadcasts for this module's bank or any bank, and
// directed frames matching both bank and module.
func (d *v4Dialect) addressed(a Address) bool {
	cfg := d.p.module.Config()
	bank := cfg.BankID & 0x0F

	if a.Broadcast() {
		return a.Bank() == UnsetBank || a.Bank() == bank
	}
	return cfg.Provisioned() && a.Module() == cfg.CellID && a.Bank() == bank
}

func (d *v4Dialect) dispatch(pkt *Packet) bool {
	m := d.p.module

	switch pkt.Command {
	case CmdPing:

	case CmdIdentify:
		on := !m.Identify()
		m.SetIdentify(on)
		pkt.Data[0] = 0
		if on {
			pkt.Data[0] = 1
		}

	case CmdVoltage:
		pkt.Data[0] = m.CellVoltage()
		pkt.Data[1] = uint16(m.Status())

	case CmdTemperature:
		pkt.Data[0] = uint16(m.OnboardTemperature())
		pkt.Data[1] = uint16(m.ExternalTemperature())

	case CmdBadPacket:
		pkt.Data[0] = d.p.badPackets

	case CmdSettingsRead:
		pkt.Data = SettingsFromConfig(m.Config())

	case CmdSettingsWrite:
		write := Settings(pkt.Data)
		d.p.persist(write.Apply)
		pkt.Data = SettingsFromConfig(m.Config())

	case CmdIdentitySet:
		if v := pkt.Data[0]; v != Keep {
			d.p.persist(func(c *cell.Config) {
				c.BankID = uint8(v >> 8)
				c.CellID = uint8(v)
			})
			d.p.log.Info("identity assigned",
				zap.Uint8("bank", uint8(v>>8)),
				zap.Uint8("cell", uint8(v)),
			)
		}
		cfg := m.Config()
		pkt.Data[0] = pack(cfg.BankID, cfg.CellID)

	default:
		return false
	}
	return true
}
