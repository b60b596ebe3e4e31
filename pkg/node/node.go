package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/cellbms/pkg/bus"
	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/config"
	"github.com/itohio/cellbms/pkg/hal"
	"github.com/itohio/cellbms/pkg/protocol"
	"go.uber.org/zap"
)

// ErrLinkClosed is returned by Run when the bus stops delivering frames.
var ErrLinkClosed = errors.New("link closed")

// FrameProcessor handles one inbound frame.
type FrameProcessor interface {
	Process(frame []byte) protocol.Outcome
}

// Simulator is a physical model advanced between control cycles.
type Simulator interface {
	Advance(dt time.Duration)
}

var _ FrameProcessor = (*protocol.Processor)(nil)
var _ Simulator = (*hal.Sim)(nil)

// Node runs one cell module: control cycles, frame handling and the
// sleep/wake policy of the chip.
type Node struct {
	hw   hal.Hardware
	core *cell.Core
	proc FrameProcessor
	link bus.Link
	sim  Simulator
	log  *zap.Logger

	cyclePeriod      time.Duration
	watchdogInterval time.Duration
	sleepTimeout     time.Duration

	queue [][]byte
	last  time.Time

	cycles uint64

	callbacks []func(cell.Snapshot)
	cbMu      sync.RWMutex
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(n *Node) {
		if log != nil {
			n.log = log
		}
	}
}

// WithSimulator advances sim by the elapsed time before every cycle.
func WithSimulator(sim Simulator) Option {
	return func(n *Node) {
		n.sim = sim
	}
}

// New creates a node. Timing comes from cfg; a nil cfg uses defaults.
func New(hw hal.Hardware, core *cell.Core, proc FrameProcessor, link bus.Link, cfg *config.ControlConfig, opts ...Option) *Node {
	if cfg == nil {
		cfg = &config.Default().Control
	}

	n := &Node{
		hw:               hw,
		core:             core,
		proc:             proc,
		link:             link,
		log:              zap.NewNop(),
		cyclePeriod:      cfg.CyclePeriod,
		watchdogInterval: cfg.WatchdogInterval,
		sleepTimeout:     cfg.SleepTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnCycle registers fn to receive a snapshot after every control cycle.
// Callbacks run on the node goroutine and must not block.
func (n *Node) OnCycle(fn func(cell.Snapshot)) {
	n.cbMu.Lock()
	defer n.cbMu.Unlock()
	n.callbacks = append(n.callbacks, fn)
}

// Cycles returns the number of completed control cycles. Only valid after
// Run returned or from an OnCycle callback.
func (n *Node) Cycles() uint64 {
	return n.cycles
}

// Run starts the core and loops until ctx is done or the link closes.
//
// Every iteration runs one Update, handles the frames that arrived, and
// then waits. When Update allows sleeping the node emulates a powered down
// chip: it only wakes on a frame or on the long watchdog period. Otherwise it
// waits one cycle period, serving the short watchdog meanwhile.
func (n *Node) Run(ctx context.Context) error {
	if err := n.core.Begin(); err != nil {
		return fmt.Errorf("failed to start cell module: %w", err)
	}

	watchdog := time.NewTicker(n.watchdogInterval)
	defer watchdog.Stop()

	n.last = time.Now()
	frames := n.link.Frames()

	for {
		n.advance()

		maySleep := n.core.Update()
		if err := n.drain(frames); err != nil {
			return err
		}
		n.cycles++
		n.notify(n.core.Snapshot())

		if maySleep {
			n.hw.Sleep()
			if err := n.sleep(ctx, frames); err != nil {
				return err
			}
			n.core.OnWakeup()
			continue
		}

		if err := n.wait(ctx, frames, watchdog.C); err != nil {
			return err
		}
	}
}

// sleep blocks until a frame arrives or the sleep watchdog fires.
func (n *Node) sleep(ctx context.Context, frames <-chan []byte) error {
	timer := time.NewTimer(n.sleepTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case frame, ok := <-frames:
		if !ok {
			return ErrLinkClosed
		}
		n.queue = append(n.queue, frame)
	case <-timer.C:
		n.interruptWatchdog()
	}
	return nil
}

// wait blocks for one cycle period while serving the watchdog and queueing
// frames.
func (n *Node) wait(ctx context.Context, frames <-chan []byte, watchdog <-chan time.Time) error {
	timer := time.NewTimer(n.cyclePeriod)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return ErrLinkClosed
			}
			n.queue = append(n.queue, frame)
			n.core.SerialInterrupt()
		case <-watchdog:
			n.interruptWatchdog()
		case <-timer.C:
			return nil
		}
	}
}

// drain processes queued frames and whatever else is already buffered.
func (n *Node) drain(frames <-chan []byte) error {
	for buffered := true; buffered; {
		select {
		case frame, ok := <-frames:
			if !ok {
				return ErrLinkClosed
			}
			n.queue = append(n.queue, frame)
		default:
			buffered = false
		}
	}

	for _, frame := range n.queue {
		outcome := n.proc.Process(frame)
		n.log.Debug("frame processed", zap.Stringer("outcome", outcome), zap.Int("size", len(frame)))
	}
	n.queue = n.queue[:0]
	return nil
}

func (n *Node) interruptWatchdog() {
	if count := n.core.WatchdogInterrupt(); count > 1 {
		n.log.Warn("control cycle stalled", zap.Uint16("watchdog", count))
	}
}

func (n *Node) advance() {
	now := time.Now()
	if n.sim != nil {
		n.sim.Advance(now.Sub(n.last))
	}
	n.last = now
}

func (n *Node) notify(s cell.Snapshot) {
	n.cbMu.RLock()
	callbacks := make([]func(cell.Snapshot), len(n.callbacks))
	copy(callbacks, n.callbacks)
	n.cbMu.RUnlock()

	for _, fn := range callbacks {
		fn(s)
	}
}
