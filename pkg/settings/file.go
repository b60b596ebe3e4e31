package settings

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// File is an EEPROM backed by a regular file, so a simulated module keeps
// its configuration across restarts.
type File struct {
	mu   sync.Mutex
	f    *os.File
	size int
}

var _ EEPROM = (*File)(nil)

// OpenFile opens or creates path as an EEPROM image of size bytes. A new or
// short image is padded with erased cells.
func OpenFile(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open eeprom image %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat eeprom image: %w", err)
	}

	if pad := int64(size) - info.Size(); pad > 0 {
		if _, err := f.WriteAt(bytes.Repeat([]byte{Erased}, int(pad)), info.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to format eeprom image: %w", err)
		}
	}

	return &File{f: f, size: size}, nil
}

// Size implements EEPROM.
func (e *File) Size() int {
	return e.size
}

// ReadAt implements EEPROM.
func (e *File) ReadAt(p []byte, off int64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if off+int64(len(p)) > int64(e.size) {
		return 0, io.EOF
	}
	return e.f.ReadAt(p, off)
}

// Update implements EEPROM.
func (e *File) Update(off int64, p []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(e.size) {
		return fmt.Errorf("update %d bytes at %d: out of range", len(p), off)
	}

	current := make([]byte, len(p))
	if _, err := e.f.ReadAt(current, off); err != nil {
		return fmt.Errorf("failed to read eeprom image: %w", err)
	}
	if bytes.Equal(current, p) {
		return nil
	}
	for i := range p {
		if current[i] == p[i] {
			continue
		}
		if _, err := e.f.WriteAt(p[i:i+1], off+int64(i)); err != nil {
			return fmt.Errorf("failed to write eeprom image: %w", err)
		}
	}
	return e.f.Sync()
}

// Close closes the backing file.
func (e *File) Close() error {
	return e.f.Close()
}
