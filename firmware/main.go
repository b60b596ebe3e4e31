//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"time"

	"github.com/itohio/cellbms/pkg/cell"
	"github.com/itohio/cellbms/pkg/protocol"
	"github.com/itohio/cellbms/pkg/settings"
)

func main() {
	hw := newBoard()
	store := settings.New(newFlashEEPROM(), CONFIG_OFFSET, cell.ConfigSize)
	core := cell.New(hw, store,
		cell.WithFrameWait(cell.FrameWait(protocol.FrameSize, UART_BAUD_RATE)),
	)
	link := newUARTLink()

	proc, err := protocol.NewProcessor(protocol.V4, core, hw, link)
	if err != nil {
		panic(err)
	}

	if err := core.Begin(); err != nil {
		println("begin:", err.Error())
	}
	hw.WatchdogOn()

	process := func(frame []byte) {
		proc.Process(frame)
	}

	for {
		start := time.Now()

		if core.Update() {
			hw.Sleep()
			if hw.watchdogWake {
				core.WatchdogInterrupt()
			}
			core.OnWakeup()
			continue
		}

		link.Poll(process)

		// Poll the bus for the rest of the cycle
		for deadline := start.Add(CYCLE_PERIOD); time.Now().Before(deadline); {
			link.Poll(process)
			time.Sleep(time.Millisecond)
		}
	}
}
