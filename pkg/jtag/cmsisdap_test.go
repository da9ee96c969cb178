package jtag

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/erc"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

// fakeProbe answers CMSIS-DAP commands by clocking a simulated chain.
type fakeProbe struct {
	t          *testing.T
	chain      *ChainSimulator
	packetSize int
	commands   [][]byte
	clockHz    uint32
	resets     int
	closed     bool
	failWrites bool
}

func (p *fakeProbe) GetPacketSize() int { return p.packetSize }

func (p *fakeProbe) Close() error {
	p.closed = true
	return nil
}

func (p *fakeProbe) WriteRead(cmd []byte) ([]byte, error) {
	if p.failWrites {
		return nil, erc.Errorf(erc.CmdSendFailed, "usb write", "pipe error")
	}
	if len(cmd) > p.packetSize {
		p.t.Fatalf("command of %d bytes exceeds packet size %d", len(cmd), p.packetSize)
	}
	p.commands = append(p.commands, append([]byte(nil), cmd...))

	id := dapCmd(cmd[0])
	switch id {
	case dapInfo:
		s := map[byte]string{infoVendor: "ARM", infoProduct: "CMSIS-DAP", infoSerial: "E66038B7", infoFirmware: "2.1.0"}[cmd[1]]
		return append([]byte{cmd[0], byte(len(s))}, s...), nil
	case dapConnect:
		return []byte{cmd[0], cmd[1]}, nil
	case dapDisconnect:
		return []byte{cmd[0], dapOK}, nil
	case dapSWJClock:
		p.clockHz = binary.LittleEndian.Uint32(cmd[1:])
		return []byte{cmd[0], dapOK}, nil
	case dapResetTarget:
		p.resets++
		return []byte{cmd[0], dapOK}, nil
	case dapJTAGSequence:
		resp := []byte{cmd[0], dapOK}
		rest := cmd[2:]
		for n := 0; n < int(cmd[1]); n++ {
			clocks, tms, capture := parseSequenceInfo(rest[0])
			tdi := rest[1 : 1+(clocks+7)/8]
			rest = rest[1+len(tdi):]
			tdo := make([]byte, len(tdi))
			for i := 0; i < clocks; i++ {
				if p.chain.Clock(tms, bitrev.Bit(tdi, i, bitrev.LSBFirst)) {
					bitrev.SetBit(tdo, i, true, bitrev.LSBFirst)
				}
			}
			if capture {
				resp = append(resp, tdo...)
			}
		}
		if len(resp) > p.packetSize {
			p.t.Fatalf("response of %d bytes exceeds packet size %d", len(resp), p.packetSize)
		}
		return resp, nil
	}
	p.t.Fatalf("unexpected command %s", id)
	return nil, nil
}

func newFakeAdapter(t *testing.T, packetSize int) (*CMSISDAPAdapter, *fakeProbe) {
	t.Helper()
	chain, err := BuildSpartan3Board()
	if err != nil {
		t.Fatalf("BuildSpartan3Board: %v", err)
	}
	probe := &fakeProbe{t: t, chain: chain, packetSize: packetSize}
	adapter, err := newCMSISDAPAdapter(probe)
	if err != nil {
		t.Fatalf("newCMSISDAPAdapter: %v", err)
	}
	return adapter, probe
}

func TestCMSISDAPAdapterBuildSequences(t *testing.T) {
	adapter := &CMSISDAPAdapter{packetSize: 64}

	type run struct {
		clocks int
		tms    bool
	}
	tests := []struct {
		name string
		tms  []byte
		tdi  []byte
		bits int
		want []run
	}{
		{"no TMS", nil, []byte{0xAA}, 8, []run{{8, false}}},
		{"constant TMS high", []byte{0xFF}, []byte{0xAA}, 8, []run{{8, true}}},
		{"TMS drops after four clocks", []byte{0x0F, 0x00}, []byte{0xAA, 0x55}, 16, []run{{4, true}, {12, false}}},
		{"last bit raises TMS", []byte{0x00, 0x80}, []byte{0xFF, 0xFF}, 16, []run{{15, false}, {1, true}}},
		{"long run splits at 64", nil, make([]byte, 9), 70, []run{{64, false}, {6, false}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seqs := adapter.buildSequences(tt.tms, tt.tdi, tt.bits)
			if len(seqs) != len(tt.want) {
				t.Fatalf("got %d sequences, want %d", len(seqs), len(tt.want))
			}
			for i, w := range tt.want {
				if seqs[i].clocks != w.clocks || seqs[i].tms != w.tms || !seqs[i].capture {
					t.Errorf("sequence %d = %d clocks TMS=%v capture=%v, want %d clocks TMS=%v",
						i, seqs[i].clocks, seqs[i].tms, seqs[i].capture, w.clocks, w.tms)
				}
			}
		})
	}

	// 0xAA55 shifted right by four, twelve bits.
	seqs := adapter.buildSequences([]byte{0x0F, 0x00}, []byte{0xAA, 0x55}, 16)
	if !bytes.Equal(seqs[1].tdi, []byte{0x5A, 0x05}) {
		t.Errorf("second run TDI = % X, want 5A 05", seqs[1].tdi)
	}
}

func TestCMSISDAPAdapterBatchFitsPacket(t *testing.T) {
	adapter := &CMSISDAPAdapter{packetSize: 16}
	tms := bitrev.Pack([]bool{true, false, true, false, true, false, true, false}, bitrev.LSBFirst)
	seqs := adapter.buildSequences(append(tms, make([]byte, 15)...), nil, 128)

	batches := adapter.batch(seqs)
	total := 0
	for i, b := range batches {
		req, resp := sequenceSizes(b)
		if req > 16 || resp > 16 {
			t.Errorf("batch %d needs %d/%d bytes", i, req, resp)
		}
		total += len(b)
	}
	if total != len(seqs) {
		t.Fatalf("batches hold %d sequences, want %d", total, len(seqs))
	}
}

func TestCMSISDAPAdapter_ValidateInterface(t *testing.T) {
	var _ Adapter = (*CMSISDAPAdapter)(nil)
}

func TestCMSISDAPAdapterOpenQueriesProbe(t *testing.T) {
	adapter, probe := newFakeAdapter(t, 64)

	info, err := adapter.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Vendor != "ARM" || info.SerialNumber != "E66038B7" {
		t.Fatalf("unexpected info %+v", info)
	}
	if probe.clockHz != 1_000_000 {
		t.Fatalf("default clock = %d, want 1 MHz", probe.clockHz)
	}

	if err := adapter.SetSpeed(100); erc.CodeOf(err) != erc.BadParameter {
		t.Fatalf("SetSpeed(100) error = %v, want BadParameter", err)
	}

	if err := adapter.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !probe.closed {
		t.Fatalf("transport not closed")
	}
	if _, err := adapter.Shift(nil, nil, 1); erc.CodeOf(err) != erc.InvalidHif {
		t.Fatalf("Shift after Close error = %v, want InvalidHif", err)
	}
}

func TestCMSISDAPAdapterHardReset(t *testing.T) {
	adapter, probe := newFakeAdapter(t, 64)
	info, _ := adapter.Info()
	if info.SupportsTRST || !info.SupportsSRST {
		t.Fatalf("reset capabilities TRST=%v SRST=%v, want system reset only", info.SupportsTRST, info.SupportsSRST)
	}

	// Test-Logic-Reset, Run-Test/Idle, Select-DR, Capture-DR, Shift-DR.
	tms := bitrev.Pack([]bool{true, true, true, true, true, false, true, false, false}, bitrev.LSBFirst)
	if _, err := adapter.Shift(tms, nil, 9); err != nil {
		t.Fatalf("Shift: %v", err)
	}
	if err := adapter.ResetTAP(true); err != nil {
		t.Fatalf("ResetTAP(true): %v", err)
	}
	if probe.resets != 1 {
		t.Fatalf("reset target sent %d times", probe.resets)
	}
	if probe.chain.State() != tap.StateShiftDR {
		t.Fatalf("system reset moved the TAP to %s", probe.chain.State())
	}
	if err := adapter.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP(false): %v", err)
	}
	if probe.chain.State() != tap.StateTestLogicReset {
		t.Fatalf("TMS reset left the TAP in %s", probe.chain.State())
	}
}

func TestCMSISDAPAdapterShiftReadsIDCodes(t *testing.T) {
	// A small packet forces the shift to be split across several commands.
	adapter, probe := newFakeAdapter(t, 16)

	if err := adapter.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP: %v", err)
	}
	if probe.chain.State() != tap.StateTestLogicReset {
		t.Fatalf("chain state after reset = %s", probe.chain.State())
	}

	tmsBits := append([]bool{false, true, false, false}, make([]bool, 64)...)
	tmsBits[len(tmsBits)-1] = true
	before := len(probe.commands)
	tdo, err := adapter.Shift(bitrev.Pack(tmsBits, bitrev.LSBFirst), nil, len(tmsBits))
	if err != nil {
		t.Fatalf("Shift: %v", err)
	}
	if len(probe.commands)-before < 2 {
		t.Fatalf("expected the shift to span several packets, got %d", len(probe.commands)-before)
	}

	bits := bitrev.Unpack(tdo, len(tmsBits), bitrev.LSBFirst)[4:]
	prom := bitrev.Pack(bits[:32], bitrev.LSBFirst)
	fpga := bitrev.Pack(bits[32:], bitrev.LSBFirst)
	if got := binary.LittleEndian.Uint32(prom); got != IDCodeXCF04S {
		t.Fatalf("PROM IDCODE = 0x%08X", got)
	}
	if got := binary.LittleEndian.Uint32(fpga); got != IDCodeXC3S1000 {
		t.Fatalf("FPGA IDCODE = 0x%08X", got)
	}
}

func TestCMSISDAPAdapterTransportError(t *testing.T) {
	adapter, probe := newFakeAdapter(t, 64)
	probe.failWrites = true

	_, err := adapter.Shift(nil, []byte{0x01}, 8)
	if erc.CodeOf(err) != erc.CmdSendFailed {
		t.Fatalf("Shift error = %v, want CmdSendFailed", err)
	}
}

// Integration test - requires real CMSIS-DAP hardware
func TestCMSISDAPAdapter_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	adapter, err := NewCMSISDAPAdapter(VendorIDRaspberryPi, ProductIDCMSISDAP, "")
	if err != nil {
		t.Skipf("No CMSIS-DAP hardware found: %v", err)
	}
	defer adapter.Close()

	if err := adapter.ResetTAP(false); err != nil {
		t.Errorf("ResetTAP(soft) failed: %v", err)
	}

	// Reset, Run-Test/Idle, Select-DR, Capture-DR, Shift-DR, then 32 bits.
	tms := []bool{true, true, true, true, true, false, true, false, false}
	tms = append(tms, make([]bool, 32)...)
	tms[len(tms)-1] = true
	tdo, err := adapter.Shift(bitrev.Pack(tms, bitrev.LSBFirst), nil, len(tms))
	if err != nil {
		t.Fatalf("Shift failed: %v", err)
	}
	id := bitrev.Unpack(tdo, len(tms), bitrev.LSBFirst)[9:]
	if !id[0] {
		t.Errorf("first device IDCODE bit 0 should be 1")
	}
}

// Benchmark sequence building
func BenchmarkBuildSequences(b *testing.B) {
	adapter := &CMSISDAPAdapter{packetSize: 64}

	tms := make([]byte, 100)
	tdi := make([]byte, 100)
	// Create some TMS transitions
	tms[10] = 0xFF
	tms[50] = 0xFF

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		adapter.buildSequences(tms, tdi, 800)
	}
}
