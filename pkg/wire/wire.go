// Package wire implements the little-endian binary primitives shared by the
// A2S and RCON wire formats: integer/float accessors at a byte offset, a
// NUL-terminated string reader, and byte-slice concatenation.
//
// Every accessor here is a pure function over a caller-owned buffer; none of
// them allocate beyond the string/slice they return.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Concat joins a series of byte slices into one allocation.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}

	buf := make([]byte, 0, n)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// ReadCString reads bytes from buf starting at *offset until (and not
// including) the first 0x00 byte, reinterprets them as a single-byte-per-char
// string (no multibyte decoding), and advances *offset past the terminator.
//
// Returns an error if no terminator is found before the end of buf.
func ReadCString(buf []byte, offset *int) (string, error) {
	start := *offset
	if start < 0 || start > len(buf) {
		return "", fmt.Errorf("wire: offset %d out of range (len %d)", start, len(buf))
	}

	i := start
	for i < len(buf) && buf[i] != 0x00 {
		i++
	}
	if i >= len(buf) {
		return "", fmt.Errorf("wire: unterminated string starting at offset %d", start)
	}

	*offset = i + 1
	return string(buf[start:i]), nil
}

// Uint8 reads a single byte at offset.
func Uint8(buf []byte, offset int) (uint8, error) {
	if offset < 0 || offset >= len(buf) {
		return 0, fmt.Errorf("wire: offset %d out of range (len %d)", offset, len(buf))
	}
	return buf[offset], nil
}

// Int16LE reads a little-endian signed 16-bit integer at offset.
func Int16LE(buf []byte, offset int) (int16, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, fmt.Errorf("wire: offset %d out of range (len %d)", offset, len(buf))
	}
	return int16(binary.LittleEndian.Uint16(buf[offset : offset+2])), nil
}

// Int32LE reads a little-endian signed 32-bit integer at offset.
func Int32LE(buf []byte, offset int) (int32, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, fmt.Errorf("wire: offset %d out of range (len %d)", offset, len(buf))
	}
	return int32(binary.LittleEndian.Uint32(buf[offset : offset+4])), nil
}

// Float32LE reads a little-endian IEEE-754 32-bit float at offset.
func Float32LE(buf []byte, offset int) (float32, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, fmt.Errorf("wire: offset %d out of range (len %d)", offset, len(buf))
	}
	bits := binary.LittleEndian.Uint32(buf[offset : offset+4])
	return math.Float32frombits(bits), nil
}

// PutInt32LE appends the little-endian encoding of v to dst.
func PutInt32LE(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

// CString encodes s as a NUL-terminated byte slice.
func CString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	b[len(s)] = 0x00
	return b
}
