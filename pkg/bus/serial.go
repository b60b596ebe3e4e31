package bus

import (
	"context"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// DefaultBaudRate is the bus rate of the cell module chain.
const DefaultBaudRate = 2400

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial is a frame link over a serial port.
type Serial struct {
	port     string
	baudRate int
	bufSize  int
	log      *zap.Logger

	mu        sync.RWMutex
	conn      serial.Port
	frames    chan []byte
	cancel    context.CancelFunc
	connected bool
}

// NewSerial creates a new Serial link with the specified port, baud rate
// and buffer size.
func NewSerial(port string, baudRate int, bufSize int, log *zap.Logger) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		log:      log.With(zap.String("port", port)),
		frames:   make(chan []byte),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// BaudRate returns the configured bus rate.
func (d *Serial) BaudRate() int {
	return d.baudRate
}

// Connect opens the serial port and starts reading frames.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = port
	d.cancel = cancel
	d.frames = make(chan []byte, d.bufSize)
	d.connected = true

	go readFrames(ctx, port, d.frames, d.log)

	d.log.Info("serial link connected", zap.Int("baud", d.baudRate))
	return nil
}

// Close closes the port. The frames channel is closed once the reader
// stops.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if err := d.conn.Close(); err != nil {
		d.log.Warn("error closing serial port", zap.Error(err))
	}
	d.conn = nil
	d.connected = false

	return nil
}

// Frames returns the channel of decoded inbound frames.
func (d *Serial) Frames() <-chan []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frames
}

// Send encodes and writes one frame.
func (d *Serial) Send(frame []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}
	return writeFrame(d.conn, frame)
}

// Flush blocks until written data has left the port.
func (d *Serial) Flush() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}
	if err := d.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain serial port: %w", err)
	}
	return nil
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}
