package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/cellbms/pkg/hal"
)

// Conn carries whole frames to and from the bus.
type Conn interface {
	Send(frame []byte) error
	Frames() <-chan []byte
}

// Client is the controller side of the current protocol. Requests are
// serialized; each waits for the reply carrying its sequence number.
type Client struct {
	conn    Conn
	timeout time.Duration
	log     *zap.Logger

	mu  sync.Mutex
	seq uint16
}

// NewClient creates a controller client. A zero timeout waits for ctx only.
func NewClient(conn Conn, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		conn:    conn,
		timeout: timeout,
		log:     log,
	}
}

// Request sends a command to addr and returns the reply.
func (c *Client) Request(ctx context.Context, addr Address, cmd Command, data [DataSlots]uint16) (Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	req := Packet{
		Address:  addr,
		Sequence: c.seq,
		Command:  cmd,
		Data:     data,
	}
	frame, err := req.MarshalBinary()
	if err != nil {
		return Packet{}, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.conn.Send(frame); err != nil {
		return Packet{}, fmt.Errorf("failed to send %s: %w", cmd, err)
	}

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return Packet{}, fmt.Errorf("%s to %s: %w", cmd, addr, ErrTimeout)
			}
			return Packet{}, ctx.Err()
		case frame, ok := <-c.conn.Frames():
			if !ok {
				return Packet{}, fmt.Errorf("%s to %s: connection closed", cmd, addr)
			}
			var reply Packet
			if err := reply.UnmarshalBinary(frame); err != nil {
				c.log.Debug("dropping invalid frame", zap.Error(err))
				continue
			}
			if !reply.Command.Reply() || reply.Sequence != req.Sequence || reply.Command.Code() != cmd {
				continue
			}
			return reply, nil
		}
	}
}

// Ping checks that addr answers.
func (c *Client) Ping(ctx context.Context, addr Address) (hal.Status, error) {
	reply, err := c.Request(ctx, addr, CmdPing, [DataSlots]uint16{})
	return hal.Status(reply.Stats), err
}

// Identify toggles the identify indicator and returns its new state.
func (c *Client) Identify(ctx context.Context, addr Address) (bool, error) {
	reply, err := c.Request(ctx, addr, CmdIdentify, [DataSlots]uint16{})
	return reply.Data[0] != 0, err
}

// Voltage returns the cell voltage in mV and the module status.
func (c *Client) Voltage(ctx context.Context, addr Address) (uint16, hal.Status, error) {
	reply, err := c.Request(ctx, addr, CmdVoltage, [DataSlots]uint16{})
	return reply.Data[0], hal.Status(reply.Data[1]), err
}

// Temperature returns the onboard and external temperatures in deci-Celsius.
func (c *Client) Temperature(ctx context.Context, addr Address) (onboard, external int16, err error) {
	reply, err := c.Request(ctx, addr, CmdTemperature, [DataSlots]uint16{})
	return int16(reply.Data[0]), int16(reply.Data[1]), err
}

// BadPackets returns the module's rejected frame counter.
func (c *Client) BadPackets(ctx context.Context, addr Address) (uint16, error) {
	reply, err := c.Request(ctx, addr, CmdBadPacket, [DataSlots]uint16{})
	return reply.Data[0], err
}

// ReadSettings returns the module settings.
func (c *Client) ReadSettings(ctx context.Context, addr Address) (Settings, error) {
	reply, err := c.Request(ctx, addr, CmdSettingsRead, [DataSlots]uint16{})
	return Settings(reply.Data), err
}

// WriteSettings writes s, where Keep slots are left unchanged, and returns
// the resulting settings.
func (c *Client) WriteSettings(ctx context.Context, addr Address, s Settings) (Settings, error) {
	reply, err := c.Request(ctx, addr, CmdSettingsWrite, s)
	return Settings(reply.Data), err
}

// SetIdentity assigns bank and cell identifiers to the module at addr.
func (c *Client) SetIdentity(ctx context.Context, addr Address, bank, cell uint8) error {
	reply, err := c.Request(ctx, addr, CmdIdentitySet, [DataSlots]uint16{pack(bank, cell)})
	if err != nil {
		return err
	}
	if got := reply.Data[0]; got != pack(bank, cell) {
		return fmt.Errorf("identity not applied: got %04x", got)
	}
	return nil
}

// Identity reads the bank and cell identifiers without changing them.
func (c *Client) Identity(ctx context.Context, addr Address) (bank, cell uint8, err error) {
	reply, err := c.Request(ctx, addr, CmdIdentitySet, [DataSlots]uint16{Keep})
	return uint8(reply.Data[0] >> 8), uint8(reply.Data[0]), err
}
