// Package packets has big-endian byte readers and writers used by the
// wire codec.
package packets

import "github.com/pkg/errors"

var ErrShort = errors.New("buffer too short")

func ReadB8(b []byte, offset int) (uint8, error) {
	if len(b) < offset+1 {
		return 0, ErrShort
	}
	return b[offset], nil
}

func ReadB16(b []byte, offset int) (uint16, error) {
	if len(b) < offset+2 {
		return 0, ErrShort
	}
	return uint16(b[offset])<<8 | uint16(b[offset+1]), nil
}

func ReadB32(b []byte, offset int) (uint32, error) {
	if len(b) < offset+4 {
		return 0, ErrShort
	}
	return uint32(b[offset])<<24 | uint32(b[offset+1])<<16 |
		uint32(b[offset+2])<<8 | uint32(b[offset+3]), nil
}

func ReadB64(b []byte, offset int) (uint64, error) {
	hi, err := ReadB32(b, offset)
	if err != nil {
		return 0, err
	}
	lo, err := ReadB32(b, offset+4)
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

func WriteB8(b []byte, offset int, v uint8) {
	b[offset] = v
}

func WriteB16(b []byte, offset int, v uint16) {
	b[offset] = byte(v >> 8)
	b[offset+1] = byte(v)
}

func WriteB32(b []byte, offset int, v uint32) {
	b[offset] = byte(v >> 24)
	b[offset+1] = byte(v >> 16)
	b[offset+2] = byte(v >> 8)
	b[offset+3] = byte(v)
}

func WriteB64(b []byte, offset int, v uint64) {
	WriteB32(b, offset, uint32(v>>32))
	WriteB32(b, offset+4, uint32(v))
}
