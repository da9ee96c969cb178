package bscan

import (
	"encoding/binary"
	"fmt"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

type shiftOptions struct {
	order bitrev.Order
}

// ShiftOption adjusts ShiftBinary.
type ShiftOption func(*shiftOptions)

// WithOrder selects the bit order of the capture buffer returned by
// ShiftBinary. The default is bitrev.MSBFirst.
func WithOrder(o bitrev.Order) ShiftOption {
	return func(so *shiftOptions) { so.order = o }
}

// checkShiftDR must be called with the lock held.
func (s *Session) checkShiftDR() error {
	if err := s.usable(); err != nil {
		return err
	}
	if st := s.tap.State(); st != tap.StateShiftDR {
		return fmt.Errorf("%w: in %s, need %s", ErrProtocolState, st, tap.StateShiftDR)
	}
	if s.cfg.RequireInstruction && !s.hasInstr {
		return fmt.Errorf("%w: no instruction loaded", ErrProtocolState)
	}
	return nil
}

// shiftDR clocks tdi through the selected data register. When last is set
// TMS is raised on the final bit and the TAP moves to Exit1-DR.
func (s *Session) shiftDR(op string, tdi []bool, last bool) ([]bool, error) {
	if err := s.checkShiftDR(); err != nil {
		return nil, err
	}
	if len(tdi) == 0 {
		return nil, fmt.Errorf("bscan: %s: no bits to shift", op)
	}
	tms := make([]bool, len(tdi))
	tms[len(tms)-1] = last
	return s.transfer(op, tms, tdi)
}

// ShiftBit clocks one bit through the data register and returns the bit
// sampled on TDO.
func (s *Session) ShiftBit(tdi, last bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.shiftDR("shift bit", []bool{tdi}, last)
	if err != nil {
		return false, err
	}
	return out[0], nil
}

// ShiftBits clocks bits in order and returns one TDO sample per bit.
func (s *Session) ShiftBits(bits []bool, last bool) ([]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shiftDR("shift bits", bits, last)
}

// ShiftBinary shifts a string of '0' and '1' characters, first character
// first, and returns the captured bits packed into ceil(n/8) bytes.
func (s *Session) ShiftBinary(bits string, last bool, opts ...ShiftOption) ([]byte, error) {
	so := shiftOptions{order: bitrev.MSBFirst}
	for _, o := range opts {
		o(&so)
	}
	in, err := bitrev.ParseBinary(bits)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.shiftDR("shift binary", in, last)
	if err != nil {
		return nil, err
	}
	return bitrev.Pack(out, so.order), nil
}

// ShiftBytes shifts the first bits bits of tdi, LSB of byte 0 first. TDO
// is returned in the same order.
func (s *Session) ShiftBytes(tdi []byte, bits int, last bool) ([]byte, error) {
	if bits <= 0 || bitrev.ByteLen(bits) > len(tdi) {
		return nil, fmt.Errorf("bscan: shift bytes: %d bits do not fit %d bytes", bits, len(tdi))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, err := s.shiftDR("shift bytes", bitrev.Unpack(tdi, bits, bitrev.LSBFirst), last)
	if err != nil {
		return nil, err
	}
	return bitrev.Pack(out, bitrev.LSBFirst), nil
}

// ShiftByte shifts eight bits, LSB first.
func (s *Session) ShiftByte(b byte, last bool) (byte, error) {
	out, err := s.ShiftBytes([]byte{b}, 8, last)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// ShiftUint16 shifts v LSB first.
func (s *Session) ShiftUint16(v uint16, last bool) (uint16, error) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	out, err := s.ShiftBytes(buf[:], 16, last)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(out), nil
}

// ShiftUint32 shifts v LSB first.
func (s *Session) ShiftUint32(v uint32, last bool) (uint32, error) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	out, err := s.ShiftBytes(buf[:], 32, last)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(out), nil
}

// ReadTDO clocks bits cycles in Shift-DR with constant TDI and TMS and
// returns TDO packed LSB first. A high TMS leaves Shift-DR after the first
// clock.
func (s *Session) ReadTDO(tdi, tms bool, bits int) ([]byte, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("bscan: read tdo: invalid bit count %d", bits)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkShiftDR(); err != nil {
		return nil, err
	}
	tmsBits := make([]bool, bits)
	tdiBits := make([]bool, bits)
	for i := range tmsBits {
		tmsBits[i], tdiBits[i] = tms, tdi
	}
	out, err := s.transfer("read tdo", tmsBits, tdiBits)
	if err != nil {
		return nil, err
	}
	return bitrev.Pack(out, bitrev.LSBFirst), nil
}

// ClockTCK applies cycles clocks with fixed TMS and TDI in any state. It is
// used for Run-Test/Idle waits.
func (s *Session) ClockTCK(cycles int, tms, tdi bool) error {
	if cycles < 0 {
		return fmt.Errorf("bscan: clock: invalid cycle count %d", cycles)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tmsBits := make([]bool, cycles)
	tdiBits := make([]bool, cycles)
	for i := range tmsBits {
		tmsBits[i], tdiBits[i] = tms, tdi
	}
	_, err := s.transfer("clock", tmsBits, tdiBits)
	return err
}

// ScanIR shifts bits raw bits through the whole instruction register chain
// and moves to end. Once Update-IR latches them, here or on a later move,
// the active instruction is InstructionRaw.
func (s *Session) ScanIR(tdi []byte, bits int, end tap.State) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.irScan = true
	defer func() { s.irScan = false }()
	return s.scan("scan ir", tap.StateShiftIR, tdi, bits, end)
}

// ScanDR shifts bits raw bits through the selected data registers and moves
// to end. No instruction is required.
func (s *Session) ScanDR(tdi []byte, bits int, end tap.State) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan("scan dr", tap.StateShiftDR, tdi, bits, end)
}

func (s *Session) scan(op string, shiftState tap.State, tdi []byte, bits int, end tap.State) ([]byte, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if bits <= 0 || bitrev.ByteLen(bits) > len(tdi) {
		return nil, fmt.Errorf("bscan: %s: %d bits do not fit %d bytes", op, bits, len(tdi))
	}
	if !end.Valid() {
		return nil, fmt.Errorf("%w: invalid end state %d", tap.ErrInvalidTransition, end)
	}

	enter, err := tap.Path(s.tap.State(), shiftState)
	if err != nil {
		return nil, err
	}
	exit1 := tap.NextState(shiftState, true)
	leave, err := tap.Path(exit1, end)
	if err != nil {
		return nil, err
	}

	tms := append([]bool(nil), enter.TMS...)
	in := make([]bool, len(tms))
	start := len(tms)
	data := bitrev.Unpack(tdi, bits, bitrev.LSBFirst)
	for i, b := range data {
		tms = append(tms, i == bits-1)
		in = append(in, b)
	}
	tms = append(tms, leave.TMS...)
	in = append(in, make([]bool, len(leave.TMS))...)

	out, err := s.transfer(op, tms, in)
	if err != nil {
		return nil, err
	}
	return bitrev.Pack(out[start:start+bits], bitrev.LSBFirst), nil
}
