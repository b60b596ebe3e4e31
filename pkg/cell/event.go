package cell

import "strings"

// Event is a set of pending wakeup sources.
type Event uint32

const (
	EventWatchdog Event = 1 << iota
	EventSerial
	EventPinChange
)

// Has reports whether every bit of e is set.
func (ev Event) Has(e Event) bool {
	return ev&e == e
}

// String lists the set events, e.g. "watchdog|serial".
func (ev Event) String() string {
	if ev == 0 {
		return "none"
	}
	var parts []string
	if ev.Has(EventWatchdog) {
		parts = append(parts, "watchdog")
	}
	if ev.Has(EventSerial) {
		parts = append(parts, "serial")
	}
	if ev.Has(EventPinChange) {
		parts = append(parts, "pin_change")
	}
	return strings.Join(parts, "|")
}
