package idcode

import (
	"errors"
	"fmt"
)

// ErrNoIDCode is returned by Parse for values that cannot be an IDCODE.
var ErrNoIDCode = errors.New("idcode: not an IDCODE")

// Decode splits raw into its fields without validating it.
func Decode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8(raw >> 28),
		PartNumber:       uint16(raw >> 12),
		ManufacturerCode: uint16(raw>>1) & 0x7FF,
	}
}

// Parse decodes raw and rejects values that fail Valid.
func Parse(raw uint32) (IDCode, error) {
	id := Decode(raw)
	if !id.Valid() {
		return id, fmt.Errorf("%w: 0x%08X", ErrNoIDCode, raw)
	}
	return id, nil
}

// SplitChain walks the first n bits of a data register scan taken right
// after Test-Logic-Reset, bit 0 first. A device with an IDCODE register
// contributes 32 bits starting with a 1; a device without one has BYPASS
// selected and contributes a single 0, reported as a zero IDCode. The walk
// stops at an all-ones word, which is the TDI fill beyond the last device.
func SplitChain(buf []byte, n int) []IDCode {
	bit := func(k int) uint32 { return uint32(buf[k/8]>>(k%8)) & 1 }

	var ids []IDCode
	for k := 0; k < n; {
		if bit(k) == 0 {
			ids = append(ids, IDCode{})
			k++
			continue
		}
		if k+32 > n {
			break
		}
		var raw uint32
		for i := 0; i < 32; i++ {
			raw |= bit(k+i) << i
		}
		if raw == 0xFFFFFFFF {
			break
		}
		ids = append(ids, Decode(raw))
		k += 32
	}
	return ids
}
