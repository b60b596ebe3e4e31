package hal

import "strings"

// Status is the aggregate module status bit field.
type Status uint8

const (
	StatusProvisioned Status = 0x01
	StatusIdentify    Status = 0x02
	StatusBalancing   Status = 0x04
	StatusBypassing   Status = 0x08
	StatusAwaked      Status = 0x10
	StatusOverTemp    Status = 0x20
	StatusUnderTemp   Status = 0x40
	StatusFault       Status = 0x80
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusProvisioned, "provisioned"},
	{StatusIdentify, "identify"},
	{StatusBalancing, "balancing"},
	{StatusBypassing, "bypassing"},
	{StatusAwaked, "awaked"},
	{StatusOverTemp, "over_temp"},
	{StatusUnderTemp, "under_temp"},
	{StatusFault, "fault"},
}

// Has reports whether every bit of flag is set.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// Set returns s with flag set or cleared.
func (s Status) Set(flag Status, on bool) Status {
	if on {
		return s | flag
	}
	return s &^ flag
}

// String lists the set flags, e.g. "provisioned|bypassing".
func (s Status) String() string {
	if s == 0 {
		return "idle"
	}
	var parts []string
	for _, n := range statusNames {
		if s.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Names returns the flag names in bit order, for labelling.
func Names() []string {
	names := make([]string, len(statusNames))
	for i, n := range statusNames {
		names[i] = n.name
	}
	return names
}

// Bits returns the flags in the same order as Names.
func Bits() []Status {
	bits := make([]Status, len(statusNames))
	for i, n := range statusNames {
		bits[i] = n.bit
	}
	return bits
}
