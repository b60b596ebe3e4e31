// Package cobs implements consistent overhead byte stuffing, the frame
// delimiting used on the cell bus.
package cobs

import "errors"

// Delimiter terminates every encoded frame on the wire.
const Delimiter = 0x00

// ErrEncoding is returned for a malformed COBS frame.
var ErrEncoding = errors.New("malformed cobs frame")

// Encode appends the COBS encoding of src to dst. The result contains no
// zero bytes; the caller appends the Delimiter.
func Encode(dst, src []byte) []byte {
	codeAt := len(dst)
	dst = append(dst, 0)
	code := byte(1)

	for i, b := range src {
		if b != 0 {
			dst = append(dst, b)
			code++
		}
		if b == 0 || (code == 0xFF && i < len(src)-1) {
			dst[codeAt] = code
			codeAt = len(dst)
			dst = append(dst, 0)
			code = 1
		}
	}
	dst[codeAt] = code
	return dst
}

// Decode appends the decoding of a COBS frame, without its delimiter, to dst.
func Decode(dst, src []byte) ([]byte, error) {
	for i := 0; i < len(src); {
		code := src[i]
		if code == 0 {
			return dst, ErrEncoding
		}
		i++
		end := i + int(code) - 1
		if end > len(src) {
			return dst, ErrEncoding
		}
		for _, b := range src[i:end] {
			if b == 0 {
				return dst, ErrEncoding
			}
		}
		dst = append(dst, src[i:end]...)
		i = end
		if code != 0xFF && i < len(src) {
			dst = append(dst, 0)
		}
	}
	return dst, nil
}

// EncodedLen is the worst case encoded size of n bytes, delimiter included.
func EncodedLen(n int) int {
	return n + n/254 + 2
}
