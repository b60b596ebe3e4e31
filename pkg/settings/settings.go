// Package settings persists a fixed-size configuration record in
// non-volatile memory, sealed with a trailing CRC-16.
package settings

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/itohio/cellbms/pkg/crc16"
)

// ChecksumSize is the size of the trailing checksum in bytes.
const ChecksumSize = 2

var (
	// ErrCapacity is returned when a record does not fit the store.
	ErrCapacity = errors.New("record exceeds store capacity")
	// ErrChecksum is returned when the stored checksum does not match the record.
	ErrChecksum = errors.New("stored record checksum mismatch")
)

// EEPROM is a byte-addressable non-volatile medium.
type EEPROM interface {
	// Size returns the medium size in bytes.
	Size() int
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(p []byte, off int64) (int, error)
	// Update writes p at off, skipping cells that already hold the same value.
	Update(off int64, p []byte) error
}

// Store reads and writes a checksummed record at a fixed offset.
type Store struct {
	medium    EEPROM
	offset    int
	maxLength int
}

// New creates a Store writing at offset. maxLength bounds the record size;
// zero or anything larger than the medium allows is clamped to what fits
// in front of the trailing checksum.
func New(medium EEPROM, offset int, maxLength int) *Store {
	room := medium.Size() - offset - ChecksumSize
	if room < 0 {
		room = 0
	}
	if maxLength <= 0 || maxLength > room {
		maxLength = room
	}

	return &Store{
		medium:    medium,
		offset:    offset,
		maxLength: maxLength,
	}
}

// Capacity returns the largest record the store accepts.
func (s *Store) Capacity() int {
	return s.maxLength
}

// Write commits record followed by its checksum. Records larger than
// Capacity are refused before anything is written.
func (s *Store) Write(record []byte) error {
	if len(record) > s.maxLength {
		return fmt.Errorf("write %d bytes: %w", len(record), ErrCapacity)
	}

	if err := s.medium.Update(int64(s.offset), record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	var sum [ChecksumSize]byte
	binary.LittleEndian.PutUint16(sum[:], crc16.Checksum(record))
	if err := s.medium.Update(int64(s.offset+len(record)), sum[:]); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}

	return nil
}

// Read fills buf with the stored record when its checksum is valid. On any
// failure buf is left untouched.
func (s *Store) Read(buf []byte) error {
	if len(buf) > s.maxLength {
		return fmt.Errorf("read %d bytes: %w", len(buf), ErrCapacity)
	}

	scratch := make([]byte, len(buf)+ChecksumSize)
	if _, err := s.medium.ReadAt(scratch, int64(s.offset)); err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}

	record := scratch[:len(buf)]
	stored := binary.LittleEndian.Uint16(scratch[len(buf):])
	if crc16.Checksum(record) != stored {
		return ErrChecksum
	}

	copy(buf, record)
	return nil
}
