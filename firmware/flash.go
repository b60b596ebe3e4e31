//go:build tinygo

package main

import (
	"bytes"
	"machine"

	"github.com/itohio/cellbms/pkg/settings"
)

var _ settings.EEPROM = (*flashEEPROM)(nil)

// flashEEPROM emulates byte-addressable storage on the first erase block of
// the flash data area.
type flashEEPROM struct {
	page []byte
}

func newFlashEEPROM() *flashEEPROM {
	return &flashEEPROM{page: make([]byte, machine.Flash.EraseBlockSize())}
}

func (f *flashEEPROM) Size() int {
	return len(f.page)
}

func (f *flashEEPROM) ReadAt(p []byte, off int64) (int, error) {
	return machine.Flash.ReadAt(p, off)
}

// Update rewrites the page only when p differs from what is stored.
func (f *flashEEPROM) Update(off int64, p []byte) error {
	if _, err := machine.Flash.ReadAt(f.page, 0); err != nil {
		return err
	}
	if bytes.Equal(f.page[off:off+int64(len(p))], p) {
		return nil
	}
	copy(f.page[off:], p)

	if err := machine.Flash.EraseBlocks(0, 1); err != nil {
		return err
	}
	_, err := machine.Flash.WriteAt(f.page, 0)
	return err
}
