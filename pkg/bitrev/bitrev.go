// Package bitrev reverses and packs the bit buffers exchanged with a scan
// chain. Bit k of a buffer lives in byte k/8; within that byte its weight is
// selected by an Order (LSB-first unless stated otherwise).
package bitrev

import (
	"fmt"
	"strings"
)

// Order selects where bit k sits inside byte k/8.
type Order uint8

const (
	// LSBFirst stores bit k at weight 1<<(k%8). This matches what the cable
	// shifts out first.
	LSBFirst Order = iota
	// MSBFirst stores bit k at weight 1<<(7-k%8).
	MSBFirst
)

func (o Order) String() string {
	switch o {
	case LSBFirst:
		return "lsb-first"
	case MSBFirst:
		return "msb-first"
	default:
		return fmt.Sprintf("Order(%d)", o)
	}
}

var byteTable = func() [256]byte {
	var t [256]byte
	for i := range t {
		b := byte(i)
		var r byte
		for j := 0; j < 8; j++ {
			r = r<<1 | b&1
			b >>= 1
		}
		t[i] = r
	}
	return t
}()

// ReverseByte mirrors the bits of b (bit 0 swaps with bit 7, 1 with 6, ...).
func ReverseByte(b byte) byte {
	return byteTable[b]
}

// ByteLen returns the number of bytes needed to hold n bits.
func ByteLen(n int) int {
	return (n + 7) / 8
}

// ReverseBits reverses the order of the first n bits of buf in place and
// returns buf. Bits at positions n and above keep their values, so applying
// ReverseBits twice with the same n restores buf exactly. It panics when n is
// negative or larger than the buffer.
func ReverseBits(buf []byte, n int) []byte {
	if n < 0 || n > len(buf)*8 {
		panic(fmt.Sprintf("bitrev: bit count %d out of range for %d-byte buffer", n, len(buf)))
	}
	if n%8 == 0 {
		nb := n / 8
		for i, j := 0, nb-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = byteTable[buf[j]], byteTable[buf[i]]
		}
		if nb%2 == 1 {
			buf[nb/2] = byteTable[buf[nb/2]]
		}
		return buf
	}
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		bi := Bit(buf, i, LSBFirst)
		bj := Bit(buf, j, LSBFirst)
		if bi != bj {
			SetBit(buf, i, bj, LSBFirst)
			SetBit(buf, j, bi, LSBFirst)
		}
	}
	return buf
}

func mask(k int, order Order) byte {
	if order == MSBFirst {
		return 0x80 >> uint(k%8)
	}
	return 1 << uint(k%8)
}

// Bit reports bit k of buf.
func Bit(buf []byte, k int, order Order) bool {
	return buf[k/8]&mask(k, order) != 0
}

// SetBit assigns bit k of buf.
func SetBit(buf []byte, k int, v bool, order Order) {
	if v {
		buf[k/8] |= mask(k, order)
	} else {
		buf[k/8] &^= mask(k, order)
	}
}

// Pack converts a bit slice into a buffer of ByteLen(len(bits)) bytes.
// Padding bits in the final byte are zero.
func Pack(bits []bool, order Order) []byte {
	if len(bits) == 0 {
		return nil
	}
	buf := make([]byte, ByteLen(len(bits)))
	for i, bit := range bits {
		if bit {
			buf[i/8] |= mask(i, order)
		}
	}
	return buf
}

// Unpack expands the first n bits of buf.
func Unpack(buf []byte, n int, order Order) []bool {
	if n == 0 {
		return nil
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = Bit(buf, i, order)
	}
	return out
}

// ParseBinary reads a string of '0' and '1' characters, first character
// first. Underscores and whitespace may be used as separators.
func ParseBinary(s string) ([]bool, error) {
	bits := make([]bool, 0, len(s))
	for i, r := range s {
		switch r {
		case '0':
			bits = append(bits, false)
		case '1':
			bits = append(bits, true)
		case '_', ' ', '\t', '\n', '\r':
		default:
			return nil, fmt.Errorf("bitrev: invalid character %q at offset %d", r, i)
		}
	}
	return bits, nil
}

// FormatBinary renders bits as a '0'/'1' string, first bit first.
func FormatBinary(bits []bool) string {
	var sb strings.Builder
	sb.Grow(len(bits))
	for _, b := range bits {
		if b {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
