package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/bistio/pkg/erc"
)

// ShiftHook allows the simulator to emulate the chain behind the cable.
type ShiftHook func(tms, tdi []byte, bits int) ([]byte, error)

// ResetHook observes ResetTAP calls.
type ResetHook func(hard bool) error

// ShiftOp captures a shift invocation for inspection within tests.
type ShiftOp struct {
	TMS  []byte
	TDI  []byte
	Bits int
}

// SimAdapter is an in-memory adapter useful for unit tests. It records every
// shift request and can optionally provide deterministic TDO data via
// OnShift.
type SimAdapter struct {
	InfoData AdapterInfo
	SpeedHz  int

	OnShift ShiftHook
	OnReset ResetHook

	// Fail, when set, is returned by every subsequent Shift.
	Fail error

	mu        sync.Mutex
	history   []ShiftOp
	clocks    int
	resets    int
	hardReset int
	closed    bool
}

// NewSimAdapter constructs a simulator configured with the provided AdapterInfo.
func NewSimAdapter(info AdapterInfo) *SimAdapter {
	return &SimAdapter{InfoData: info}
}

// LastShift returns a copy of the most recent shift request.
func (s *SimAdapter) LastShift() ShiftOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return ShiftOp{}
	}
	return copyOp(s.history[len(s.history)-1])
}

// History returns copies of every shift request in order.
func (s *SimAdapter) History() []ShiftOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ShiftOp, len(s.history))
	for i, op := range s.history {
		out[i] = copyOp(op)
	}
	return out
}

// Clocks reports the total number of TCK cycles shifted.
func (s *SimAdapter) Clocks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clocks
}

// ResetCounts reports how many resets have been requested (soft as total,
// hardReset as subset).
func (s *SimAdapter) ResetCounts() (soft, hard int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets, s.hardReset
}

// Closed reports whether Close has been called.
func (s *SimAdapter) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SimAdapter) Info() (AdapterInfo, error) {
	return s.InfoData, nil
}

func (s *SimAdapter) Shift(tms, tdi []byte, bits int) ([]byte, error) {
	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, erc.Errorf(erc.InvalidHif, "shift", "adapter closed")
	}
	if s.Fail != nil {
		err := s.Fail
		s.mu.Unlock()
		return nil, err
	}
	s.history = append(s.history, ShiftOp{
		TMS:  append([]byte(nil), tms...),
		TDI:  append([]byte(nil), tdi...),
		Bits: bits,
	})
	s.clocks += bits
	hook := s.OnShift
	s.mu.Unlock()

	if hook != nil {
		return hook(tms, tdi, bits)
	}

	// Default: echo TDI to TDO to keep tests predictable.
	tdo := make([]byte, (bits+7)/8)
	copy(tdo, tdi)
	return tdo, nil
}

func (s *SimAdapter) ResetTAP(hard bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return erc.Errorf(erc.InvalidHif, "reset", "adapter closed")
	}
	s.resets++
	if hard {
		s.hardReset++
	}
	hook := s.OnReset
	s.mu.Unlock()
	if hook != nil {
		return hook(hard)
	}
	return nil
}

func (s *SimAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	s.mu.Lock()
	s.SpeedHz = hz
	s.mu.Unlock()
	return nil
}

func (s *SimAdapter) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func copyOp(op ShiftOp) ShiftOp {
	return ShiftOp{
		TMS:  append([]byte(nil), op.TMS...),
		TDI:  append([]byte(nil), op.TDI...),
		Bits: op.Bits,
	}
}
