package jtag

import (
	"bytes"
	"errors"
	"testing"

	"github.com/OpenTraceLab/bistio/pkg/erc"
)

func TestValidateShiftBuffers(t *testing.T) {
	tests := []struct {
		name     string
		tms, tdi []byte
		bits     int
		want     int
		wantErr  bool
	}{
		{"zero bits", nil, nil, 0, 0, true},
		{"negative bits", nil, nil, -3, 0, true},
		{"short tms", []byte{0x00}, nil, 16, 0, true},
		{"short tdi", nil, []byte{0x00}, 9, 0, true},
		{"nil buffers", nil, nil, 5, 1, false},
		{"exact tdi", nil, []byte{0x01}, 8, 1, false},
		{"longer buffers", []byte{1, 2, 3}, []byte{4, 5, 6}, 17, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ValidateShiftBuffers(tt.tms, tt.tdi, tt.bits)
			if tt.wantErr {
				if erc.CodeOf(err) != erc.BadParameter {
					t.Fatalf("error = %v, want BadParameter", err)
				}
				return
			}
			if err != nil || n != tt.want {
				t.Fatalf("ValidateShiftBuffers() = %d, %v, want %d", n, err, tt.want)
			}
		})
	}
}

func TestSimAdapterEchoShift(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})
	tdo, err := sim.Shift([]byte{0xAA}, []byte{0xCC}, 8)
	if err != nil {
		t.Fatalf("Shift returned error: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0xCC}) {
		t.Fatalf("tdo = %X, want CC", tdo)
	}

	last := sim.LastShift()
	if last.Bits != 8 || !bytes.Equal(last.TMS, []byte{0xAA}) {
		t.Fatalf("unexpected last shift metadata: %+v", last)
	}
	if sim.Clocks() != 8 {
		t.Fatalf("Clocks() = %d, want 8", sim.Clocks())
	}
}

func TestSimAdapterHook(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})
	sim.OnShift = func(_, _ []byte, bits int) ([]byte, error) {
		if bits != 4 {
			t.Fatalf("unexpected hook bits=%d", bits)
		}
		return []byte{0x0F}, nil
	}

	tdo, err := sim.Shift(nil, nil, 4)
	if err != nil {
		t.Fatalf("Shift returned error: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0x0F}) {
		t.Fatalf("tdo = %X, want 0F", tdo)
	}
}

func TestSimAdapterResetsAndSpeed(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	if err := sim.SetSpeed(1_000_000); err != nil {
		t.Fatalf("SetSpeed returned error: %v", err)
	}
	if err := sim.SetSpeed(0); err == nil {
		t.Fatalf("expected error for zero speed")
	}

	if err := sim.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP returned error: %v", err)
	}
	if err := sim.ResetTAP(true); err != nil {
		t.Fatalf("ResetTAP hard returned error: %v", err)
	}
	if soft, hard := sim.ResetCounts(); soft != 2 || hard != 1 {
		t.Fatalf("ResetCounts = %d soft / %d hard, want 2/1", soft, hard)
	}
}

func TestSimAdapterFailAndClose(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	sim.Fail = erc.Errorf(erc.StsReceiveFailed, "shift", "cable unplugged")
	_, err := sim.Shift(nil, nil, 1)
	if erc.CodeOf(err) != erc.StsReceiveFailed {
		t.Fatalf("Shift error = %v, want StsReceiveFailed", err)
	}
	if sim.Clocks() != 0 {
		t.Fatalf("failed shift counted %d clocks", sim.Clocks())
	}

	sim.Fail = nil
	if err := sim.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	_, err = sim.Shift(nil, nil, 1)
	var ce *erc.Error
	if !errors.As(err, &ce) || ce.Code != erc.InvalidHif {
		t.Fatalf("Shift after Close error = %v, want InvalidHif", err)
	}
	if !sim.Closed() {
		t.Fatalf("Closed() = false after Close")
	}
}
