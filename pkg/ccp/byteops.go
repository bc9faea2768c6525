package ccp

import (
	"fmt"
	"slices"
)

// ByteOrder selects the byte order used by ToBytes and BytesToInt.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// Side selects where Pad inserts zero bytes.
type Side int

const (
	PadRight Side = iota
	PadLeft
)

// ToBytes returns the shortest byte sequence holding v in the given order.
// Zero encodes as a single zero byte.
func ToBytes(v uint64, order ByteOrder) []byte {
	out := []byte{byte(v)}
	for v >>= 8; v > 0; v >>= 8 {
		out = append(out, byte(v))
	}
	if order == BigEndian {
		slices.Reverse(out)
	}
	return out
}

// Pad grows b with zero bytes on the given side until it is n bytes long.
// The input slice is never modified.
func Pad(b []byte, n int, side Side) ([]byte, error) {
	if len(b) > n {
		return nil, fmt.Errorf("%w: %d bytes does not fit in %d", ErrLength, len(b), n)
	}
	out := make([]byte, n)
	if side == PadLeft {
		copy(out[n-len(b):], b)
	} else {
		copy(out, b)
	}
	return out, nil
}

// BytesToInt is the inverse of ToBytes. Sequences wider than 8 bytes are
// rejected unless the excess high-order bytes are zero.
func BytesToInt(b []byte, order ByteOrder) (uint64, error) {
	le := b
	if order == BigEndian {
		le = slices.Clone(b)
		slices.Reverse(le)
	}
	var v uint64
	for i, c := range le {
		if i >= 8 {
			if c != 0 {
				return 0, fmt.Errorf("%w: %d bytes overflows uint64", ErrLength, len(b))
			}
			continue
		}
		v |= uint64(c) << (8 * i)
	}
	return v, nil
}

// putAddress appends the 4-byte big-endian wire form of addr.
func putAddress(dst []byte, addr uint32) []byte {
	return append(dst, byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

func getAddress(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// stationBytes is the little-endian (Intel) station address used by
// CONNECT, DISCONNECT and TEST.
func stationBytes(station uint16) []byte {
	b, _ := Pad(ToBytes(uint64(station), LittleEndian), 2, PadRight)
	return b
}
