package bus

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Pipe is one end of an in-memory frame link. Frames go through the same
// encoding as on a serial port.
type Pipe struct {
	r   *io.PipeReader
	w   *io.PipeWriter
	log *zap.Logger

	mu        sync.RWMutex
	frames    chan []byte
	cancel    context.CancelFunc
	connected bool
}

// NewPipe returns two connected ends.
func NewPipe() (*Pipe, *Pipe) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()

	a := &Pipe{r: ar, w: aw, log: zap.NewNop(), frames: make(chan []byte)}
	b := &Pipe{r: br, w: bw, log: zap.NewNop(), frames: make(chan []byte)}
	return a, b
}

// Connect starts reading frames.
func (p *Pipe) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.frames = make(chan []byte, DefaultBufferSize)
	p.connected = true

	go readFrames(ctx, p.r, p.frames, p.log)
	return nil
}

// Close closes this end; the peer's reader sees EOF.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return nil
	}
	p.cancel()
	p.w.Close()
	p.r.Close()
	p.connected = false
	return nil
}

// Frames returns the channel of inbound frames.
func (p *Pipe) Frames() <-chan []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frames
}

// Send writes one frame. It blocks until the peer reads it.
func (p *Pipe) Send(frame []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.connected {
		return ErrNotConnected
	}
	return writeFrame(p.w, frame)
}

// Flush is a no-op; Send returns once the peer has the frame.
func (p *Pipe) Flush() error {
	return nil
}

// IsConnected returns whether this end is open.
func (p *Pipe) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}
