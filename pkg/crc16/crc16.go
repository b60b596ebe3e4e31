// Package crc16 implements the XMODEM flavour of CRC-16/CCITT used to seal
// bus frames and the persisted configuration record.
package crc16

const (
	// Polynomial is the CCITT generator x^16 + x^12 + x^5 + 1.
	Polynomial = 0x1021

	msbMask = 0x8000
)

// Checksum returns the XMODEM CRC of data: zero initial value, no final XOR,
// most significant bit first. An empty buffer yields 0.
func Checksum(data []byte) uint16 {
	return Update(0, data)
}

// Update continues a running checksum over data.
func Update(crc uint16, data []byte) uint16 {
	for _, c := range data {
		for j := byte(0x80); j > 0; j >>= 1 {
			bit := crc & msbMask
			crc <<= 1
			if c&j != 0 {
				bit ^= msbMask
			}
			if bit != 0 {
				crc ^= Polynomial
			}
		}
	}
	return crc
}
