package settings

import (
	"fmt"
	"io"
	"sync"
)

// Erased is the value of a cell that was never written.
const Erased = 0xFF

// Memory is an in-memory EEPROM. It counts physical cell writes so wear can
// be observed.
type Memory struct {
	mu     sync.RWMutex
	cells  []byte
	writes int
}

var _ EEPROM = (*Memory)(nil)

// NewMemory creates an erased medium of the given size.
func NewMemory(size int) *Memory {
	cells := make([]byte, size)
	for i := range cells {
		cells[i] = Erased
	}
	return &Memory{cells: cells}
}

// Size implements EEPROM.
func (m *Memory) Size() int {
	return len(m.cells)
}

// ReadAt implements EEPROM.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 || off >= int64(len(m.cells)) {
		return 0, io.EOF
	}
	n := copy(p, m.cells[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Update implements EEPROM.
func (m *Memory) Update(off int64, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.cells)) {
		return fmt.Errorf("update %d bytes at %d: out of range", len(p), off)
	}
	for i, b := range p {
		if m.cells[off+int64(i)] != b {
			m.cells[off+int64(i)] = b
			m.writes++
		}
	}
	return nil
}

// Writes returns the number of cells physically written so far.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Corrupt flips every bit of the cell at off.
func (m *Memory) Corrupt(off int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[off] ^= 0xFF
}
