package protocol

import (
	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/hal"
)

// IdentifyPackets is how many processed legacy frames the identify
// indicator stays on for.
const IdentifyPackets = 10

type legacyDialect struct {
	p        *Processor
	identify int
}

func (d *legacyDialect) handle(frame []byte) ([]byte, Outcome) {
	var pkt LegacyPacket
	if err := pkt.UnmarshalBinary(frame); err != nil {
		return nil, Rejected
	}
	d.tickIdentify()

	// Answered frames belong to other modules.
	if pkt.Command.Reply() {
		return nil, Ignored
	}
	if !d.addressed(&pkt) {
		return nil, Ignored
	}
	if !d.dispatch(&pkt) {
		d.p.log.Debug("unsupported command", zap.Uint8("command", uint8(pkt.Command)))
		return nil, Unsupported
	}

	pkt.Command |= ReplyFlag

	reply, err := pkt.MarshalBinary()
	if err != nil {
		d.p.log.Error("failed to encode reply", zap.Error(err))
		return nil, Ignored
	}
	return reply, Replied
}

// tickIdentify switches the identify indicator off once its frame budget
// is spent.
func (d *legacyDialect) tickIdentify() {
	if d.identify == 0 {
		return
	}
	d.identify--
	if d.identify == 0 {
		d.p.module.SetIdentify(false)
	}
}

// legacyBank returns the module bank in legacy terms.
func legacyBank(cfg cell.Config) uint8 {
	if cfg.BankID == cell.Unassigned {
		return LegacyUnsetBank
	}
	return cfg.BankID & LegacyUnsetBank
}

// addressed filters by bank and module. A broadcast assigns the module
// field as this module's cell id and increments it for the next module.
func (d *legacyDialect) addressed(pkt *LegacyPacket) bool {
	cfg := d.p.module.Config()
	a := pkt.Address

	if a.Broadcast() {
		if a.Bank() != LegacyUnsetBank && a.Bank() != legacyBank(cfg) {
			return false
		}
		if id := a.Module(); cfg.CellID != id {
			d.p.persist(func(c *cell.Config) { c.CellID = id })
			d.p.log.Info("cell address assigned", zap.Uint8("cell", id))
		}
		pkt.Address = a.Next()
		return true
	}

	return cfg.Provisioned() && a.Bank() == legacyBank(cfg) && a.Module() == cfg.CellID
}

func (d *legacyDialect) dispatch(pkt *LegacyPacket) bool {
	m := d.p.module
	slot := m.Config().CellID & 0x0F

	switch pkt.Command.Code() {
	case LegacyCmdBankIdentitySet:
		b := uint8(pkt.Data[slot] & 0x3)
		d.p.persist(func(c *cell.Config) { c.BankID = b })
		pkt.Data[slot] = Keep

	case LegacyCmdVoltageStatus:
		status := m.Status()
		v := m.CellVoltage() & 0x1FFF
		if status.Has(hal.StatusOverTemp) {
			v |= 0x4000
		}
		if status.Has(hal.StatusBypassing) {
			v |= 0x8000
		}
		pkt.Data[slot] = v

	case LegacyCmdIdentify:
		m.SetIdentify(true)
		d.identify = IdentifyPackets
		pkt.Data[slot] = Keep

	case LegacyCmdTemperature:
		pkt.Data[slot] = uint16(temperatureByte(m.OnboardTemperature()))<<8 |
			uint16(temperatureByte(m.ExternalTemperature()))

	case LegacyCmdBadPacket:
		pkt.Data[slot] = d.p.badPackets

	case LegacyCmdSettingsRead:
		legacySettingsRead(m.Config(), pkt.Data[:])

	case LegacyCmdSettingsWrite:
		d.p.persist(func(c *cell.Config) { legacySettingsWrite(pkt.Data[:], c) })

	default:
		return false
	}
	return true
}

// temperatureByte maps deci-Celsius onto one byte offset by 40C, giving a
// range of -40 to +215C.
func temperatureByte(deci int16) uint8 {
	c := int(deci)/10 + 40
	switch {
	case c < 0:
		return 0
	case c > 255:
		return 255
	}
	return uint8(c)
}
