package bitrev

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseByte(t *testing.T) {
	assert.Equal(t, byte(0x10), ReverseByte(0x08))
	assert.Equal(t, byte(0x80), ReverseByte(0x01))
	assert.Equal(t, byte(0x3C), ReverseByte(0x3C))
	for i := 0; i < 256; i++ {
		b := byte(i)
		require.Equal(t, b, ReverseByte(ReverseByte(b)), "byte 0x%02X", b)
	}
}

func TestReverseBitsScenarios(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		bits int
		want []byte
	}{
		{"aligned palindrome", []byte{0x10, 0x42, 0x08}, 24, []byte{0x10, 0x42, 0x08}},
		{"twenty bits", []byte{0x10, 0x42, 0x08}, 20, []byte{0x21, 0x84, 0x00}},
		{"aligned nibbles", []byte{0xFF, 0x00, 0xF0}, 24, []byte{0x0F, 0x00, 0xFF}},
		{"twenty bits sparse", []byte{0x01, 0x24, 0x08}, 20, []byte{0x41, 0x02, 0x08}},
		{"zero bits", []byte{0xA5}, 0, []byte{0xA5}},
		{"single bit", []byte{0x01}, 1, []byte{0x01}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := append([]byte(nil), tc.in...)
			out := ReverseBits(buf, tc.bits)
			assert.Equal(t, tc.want, out)
			assert.Same(t, &buf[0], &out[0], "must reverse in place")

			ReverseBits(buf, tc.bits)
			assert.Equal(t, tc.in, buf, "second reversal must restore")
		})
	}
}

func TestReverseBitsPreservesTrailingBits(t *testing.T) {
	buf := []byte{0x00, 0xF0}
	ReverseBits(buf, 12)
	assert.Equal(t, byte(0xF0), buf[1]&0xF0)
}

func TestReverseBitsInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for size := 1; size <= 9; size++ {
		orig := make([]byte, size)
		rng.Read(orig)
		for n := 0; n <= size*8; n++ {
			buf := append([]byte(nil), orig...)
			ReverseBits(ReverseBits(buf, n), n)
			if !bytes.Equal(buf, orig) {
				t.Fatalf("size %d, n %d: got % X want % X", size, n, buf, orig)
			}
		}
	}
}

func TestReverseBitsAlignedMatchesBytewise(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for size := 1; size <= 8; size++ {
		buf := make([]byte, size)
		rng.Read(buf)
		want := make([]byte, size)
		for i, b := range buf {
			want[size-1-i] = ReverseByte(b)
		}
		assert.Equal(t, want, ReverseBits(append([]byte(nil), buf...), size*8))
	}
}

func TestReverseBitsMatchesBitwiseDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	buf := make([]byte, 5)
	rng.Read(buf)
	for n := 1; n <= 40; n++ {
		in := Unpack(buf, len(buf)*8, LSBFirst)
		got := Unpack(ReverseBits(append([]byte(nil), buf...), n), len(buf)*8, LSBFirst)
		for k := 0; k < n; k++ {
			require.Equal(t, in[n-1-k], got[k], "n=%d bit %d", n, k)
		}
		require.Equal(t, in[n:], got[n:], "n=%d tail", n)
	}
}

func TestReverseBitsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { ReverseBits([]byte{0}, 9) })
	assert.Panics(t, func() { ReverseBits([]byte{0}, -1) })
}

func TestPackOrders(t *testing.T) {
	bits, err := ParseBinary("1111_0000 1111_0000")
	require.NoError(t, err)
	require.Len(t, bits, 16)

	assert.Equal(t, []byte{0x0F, 0x0F}, Pack(bits, LSBFirst))
	assert.Equal(t, []byte{0xF0, 0xF0}, Pack(bits, MSBFirst))
	assert.Equal(t, bits, Unpack(Pack(bits, MSBFirst), 16, MSBFirst))
	assert.Equal(t, "1111000011110000", FormatBinary(bits))
	assert.Nil(t, Pack(nil, LSBFirst))
}

func TestParseBinaryRejectsJunk(t *testing.T) {
	_, err := ParseBinary("10x1")
	assert.Error(t, err)
}

func TestSetBit(t *testing.T) {
	buf := make([]byte, 2)
	SetBit(buf, 9, true, LSBFirst)
	assert.Equal(t, []byte{0x00, 0x02}, buf)
	SetBit(buf, 9, false, LSBFirst)
	SetBit(buf, 0, true, MSBFirst)
	assert.Equal(t, []byte{0x80, 0x00}, buf)
	assert.True(t, Bit(buf, 0, MSBFirst))
	assert.Equal(t, 3, ByteLen(17))
}
