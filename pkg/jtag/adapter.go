package jtag

import (
	"errors"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/erc"
)

// AdapterInfo is what a cable reports about itself. Frequencies are in Hz.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int
	MaxFrequency int
	SupportsSRST bool
	SupportsTRST bool
	Notes        string
}

// Adapter is the transport under a boundary-scan session: a cable that can
// clock TCK with chosen TMS and TDI levels.
//
// Shift clocks TCK once per bit and samples TDO on each clock. Buffers are
// packed LSB first, bit k at buf[k/8]&(1<<(k%8)). A nil tms or tdi holds the
// line low. TDO comes back in ceil(bits/8) bytes.
type Adapter interface {
	Info() (AdapterInfo, error)
	Shift(tms, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(hard bool) error
	SetSpeed(hz int) error
	Close() error
}

// ErrUnsupported is wrapped by adapters asked for a capability their cable
// lacks, such as a hardware reset line.
var ErrUnsupported = errors.New("jtag: unsupported by adapter")

// ValidateShiftBuffers checks a Shift request and returns the byte length of
// its buffers. Empty tms or tdi buffers are allowed.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, erc.Errorf(erc.BadParameter, "shift", "bit count must be positive, got %d", bits)
	}
	n := bitrev.ByteLen(bits)
	for _, b := range []struct {
		name string
		buf  []byte
	}{{"tms", tms}, {"tdi", tdi}} {
		if len(b.buf) > 0 && len(b.buf) < n {
			return 0, erc.Errorf(erc.BadParameter, "shift", "%s holds %d bytes, %d bits need %d", b.name, len(b.buf), bits, n)
		}
	}
	return n, nil
}
