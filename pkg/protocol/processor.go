package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/hal"
)

// Outcome is the result of processing one frame.
type Outcome uint8

const (
	// Rejected frames had the wrong size or checksum and were counted.
	Rejected Outcome = iota
	// Ignored frames were replies or addressed elsewhere.
	Ignored
	// Unsupported frames carried an unknown command.
	Unsupported
	// Replied frames were executed and answered.
	Replied
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Ignored:
		return "ignored"
	case Unsupported:
		return "unsupported"
	case Replied:
		return "replied"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// Module is the control core as seen by the protocol.
type Module interface {
	Config() cell.Config
	UpdateConfig(fn func(*cell.Config)) error
	Status() hal.Status
	CellVoltage() uint16
	OnboardTemperature() int16
	ExternalTemperature() int16
	SetIdentify(on bool)
	Identify() bool
}

// Transmitter switches the shared bus driver.
type Transmitter interface {
	EnableSerialTX()
	FlushSerial()
	DisableSerialTX()
}

// Sender delivers a whole frame.
type Sender interface {
	Send(frame []byte) error
}

var _ Module = (*cell.Core)(nil)

// dialect handles the frames of one protocol generation. handle is only
// called with frames of the right size and checksum and returns the sealed
// reply.
type dialect interface {
	handle(frame []byte) ([]byte, Outcome)
}

// Processor validates, filters and executes inbound frames.
type Processor struct {
	version Version
	size    int
	dialect dialect

	module Module
	tx     Transmitter
	out    Sender
	log    *zap.Logger

	observe    func(Outcome)
	badPackets uint16
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Processor) {
		p.log = log
	}
}

// WithObserver registers fn to be called with every outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(p *Processor) {
		p.observe = fn
	}
}

// NewProcessor creates a processor for version v serving module m. Replies
// are sent through out while tx drives the bus.
func NewProcessor(v Version, m Module, tx Transmitter, out Sender, opts ...Option) (*Processor, error) {
	p := &Processor{
		version: v,
		size:    v.FrameSize(),
		module:  m,
		tx:      tx,
		out:     out,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	switch v {
	case V4:
		p.dialect = &v4Dialect{p: p}
	case Legacy:
		p.dialect = &legacyDialect{p: p}
	default:
		return nil, fmt.Errorf("%s: %w", v, ErrVersion)
	}
	p.log = p.log.With(zap.Stringer("protocol", v))

	return p, nil
}

// Version returns the protocol generation.
func (p *Processor) Version() Version {
	return p.version
}

// BadPackets returns the number of rejected frames.
func (p *Processor) BadPackets() uint16 {
	return p.badPackets
}

// Process handles one inbound frame.
func (p *Processor) Process(frame []byte) Outcome {
	outcome := p.process(frame)
	if p.observe != nil {
		p.observe(outcome)
	}
	return outcome
}

func (p *Processor) process(frame []byte) Outcome {
	if err := verify(frame, p.size); err != nil {
		p.badPackets++
		p.log.Debug("frame rejected", zap.Error(err), zap.Uint16("bad_packets", p.badPackets))
		return Rejected
	}

	reply, outcome := p.dialect.handle(frame)
	if outcome != Replied {
		return outcome
	}

	p.transmit(reply)
	return Replied
}

// transmit drives the bus only for the duration of the reply.
func (p *Processor) transmit(frame []byte) {
	p.tx.EnableSerialTX()
	if err := p.out.Send(frame); err != nil {
		p.log.Warn("failed to send reply", zap.Error(err))
	}
	p.tx.FlushSerial()
	p.tx.DisableSerialTX()
}

// persist applies fn to the module configuration and logs a storage failure.
// The in-memory change stands either way.
func (p *Processor) persist(fn func(*cell.Config)) {
	if err := p.module.UpdateConfig(fn); err != nil {
		p.log.Error("failed to persist configuration", zap.Error(err))
	}
}
