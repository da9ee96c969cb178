package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

// SimRegister is a data register inside a simulated device.
type SimRegister struct {
	Name   string
	Length int
	// Capture supplies the value parallel-loaded in Capture-DR, first bit
	// shifted out first. Nil captures zeros.
	Capture func() []bool
	// Update receives the shifted contents in Update-DR.
	Update func([]bool)
}

// SimDevice describes one TAP controller in a simulated chain.
type SimDevice struct {
	Name     string
	IDCode   uint32 // zero: no IDCODE register, reset selects BYPASS
	IRLength int
	// IDCodeOpcode selects the 32-bit IDCODE register.
	IDCodeOpcode uint32
	// Registers maps opcodes to data registers. Unlisted opcodes select
	// BYPASS.
	Registers map[uint32]*SimRegister
}

type simTAP struct {
	dev   SimDevice
	ir    []bool
	instr uint32
	dr    []bool
	reg   *SimRegister
}

func (d *simTAP) bypassOpcode() uint32 {
	return 1<<uint(d.dev.IRLength) - 1
}

func (d *simTAP) reset() {
	if d.dev.IDCode != 0 {
		d.instr = d.dev.IDCodeOpcode
	} else {
		d.instr = d.bypassOpcode()
	}
}

func (d *simTAP) captureIR() {
	for i := range d.ir {
		d.ir[i] = false
	}
	d.ir[0] = true
}

func (d *simTAP) captureDR() {
	switch {
	case d.instr == d.bypassOpcode():
		d.reg = nil
		d.dr = []bool{false}
	case d.dev.IDCode != 0 && d.instr == d.dev.IDCodeOpcode:
		d.reg = nil
		d.dr = make([]bool, 32)
		for i := range d.dr {
			d.dr[i] = d.dev.IDCode&(1<<uint(i)) != 0
		}
	default:
		reg, ok := d.dev.Registers[d.instr]
		if !ok {
			d.reg = nil
			d.dr = []bool{false}
			return
		}
		d.reg = reg
		d.dr = make([]bool, reg.Length)
		if reg.Capture != nil {
			copy(d.dr, reg.Capture())
		}
	}
}

func (d *simTAP) updateIR() {
	var v uint32
	for i, b := range d.ir {
		if b {
			v |= 1 << uint(i)
		}
	}
	d.instr = v
}

func (d *simTAP) updateDR() {
	if d.reg != nil && d.reg.Update != nil {
		d.reg.Update(append([]bool(nil), d.dr...))
	}
}

// shift moves reg one position toward TDO, inserting in at the TDI end, and
// returns the bit that falls out.
func shift(reg []bool, in bool) bool {
	out := reg[0]
	copy(reg, reg[1:])
	reg[len(reg)-1] = in
	return out
}

// ChainSimulator models a scan chain clock by clock. TDI feeds device 0 and
// TDO is driven by the last device. Every device sees the same TMS so a
// single TAP state is tracked.
type ChainSimulator struct {
	mu      sync.Mutex
	devices []*simTAP
	tap     *tap.StateMachine
	adapter *SimAdapter
}

// NewChainSimulator builds a simulator for devices ordered from TDI to TDO.
func NewChainSimulator(devices ...SimDevice) (*ChainSimulator, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("jtag: chain needs at least one device")
	}
	cs := &ChainSimulator{tap: tap.NewStateMachine()}
	for i, dev := range devices {
		if dev.IRLength < 2 || dev.IRLength > 32 {
			return nil, fmt.Errorf("jtag: device %d (%s): invalid IR length %d", i, dev.Name, dev.IRLength)
		}
		for op, reg := range dev.Registers {
			if reg.Length <= 0 {
				return nil, fmt.Errorf("jtag: device %d (%s): register %s for opcode 0x%X has length %d",
					i, dev.Name, reg.Name, op, reg.Length)
			}
		}
		d := &simTAP{dev: dev, ir: make([]bool, dev.IRLength)}
		d.reset()
		cs.devices = append(cs.devices, d)
	}

	cs.adapter = NewSimAdapter(AdapterInfo{
		Name:         "Chain Simulator",
		Vendor:       "bistio",
		MinFrequency: 1,
		MaxFrequency: 100_000_000,
		SupportsTRST: true,
	})
	cs.adapter.OnShift = cs.handleShift
	cs.adapter.OnReset = cs.handleReset
	return cs, nil
}

// Adapter returns the cable attached to the simulated chain.
func (cs *ChainSimulator) Adapter() *SimAdapter {
	return cs.adapter
}

// State reports the TAP state of the chain.
func (cs *ChainSimulator) State() tap.State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.tap.State()
}

// Instruction returns the latched opcode of device i.
func (cs *ChainSimulator) Instruction(i int) uint32 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.devices[i].instr
}

// Clock applies a single TCK cycle and returns the sampled TDO.
func (cs *ChainSimulator) Clock(tms, tdi bool) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.clock(tms, tdi)
}

func (cs *ChainSimulator) clock(tms, tdi bool) bool {
	tdo := false
	switch cs.tap.State() {
	case tap.StateCaptureIR:
		for _, d := range cs.devices {
			d.captureIR()
		}
	case tap.StateCaptureDR:
		for _, d := range cs.devices {
			d.captureDR()
		}
	case tap.StateShiftIR:
		in := tdi
		for _, d := range cs.devices {
			in = shift(d.ir, in)
		}
		tdo = in
	case tap.StateShiftDR:
		in := tdi
		for _, d := range cs.devices {
			in = shift(d.dr, in)
		}
		tdo = in
	}

	switch cs.tap.Clock(tms) {
	case tap.StateUpdateIR:
		for _, d := range cs.devices {
			d.updateIR()
		}
	case tap.StateUpdateDR:
		for _, d := range cs.devices {
			d.updateDR()
		}
	case tap.StateTestLogicReset:
		for _, d := range cs.devices {
			d.reset()
		}
	}
	return tdo
}

func (cs *ChainSimulator) handleShift(tms, tdi []byte, bits int) ([]byte, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	tdo := make([]byte, (bits+7)/8)
	for i := 0; i < bits; i++ {
		tmsBit := len(tms) > 0 && bitrev.Bit(tms, i, bitrev.LSBFirst)
		tdiBit := len(tdi) > 0 && bitrev.Bit(tdi, i, bitrev.LSBFirst)
		if cs.clock(tmsBit, tdiBit) {
			bitrev.SetBit(tdo, i, true, bitrev.LSBFirst)
		}
	}
	return tdo, nil
}

func (cs *ChainSimulator) handleReset(hard bool) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if hard {
		// TRST drops the controller straight into Test-Logic-Reset.
		if err := cs.tap.Force(tap.StateTestLogicReset); err != nil {
			return err
		}
		for _, d := range cs.devices {
			d.reset()
		}
		return nil
	}
	for i := 0; i < tap.ResetClocks; i++ {
		cs.clock(true, false)
	}
	return nil
}
