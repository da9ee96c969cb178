package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/erc"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

var (
	red   = color.New(color.FgRed).SprintFunc()
	green = color.New(color.FgGreen).SprintFunc()
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Exercise the library and the cable",
	Long: `Run the bit-reversal checks, connect and disconnect, then load USER1 and USER2
and shift test patterns through them. On the simulator the captured data is
checked against the starter board's two-bit USER1 path; on hardware it is
printed for inspection.`,
	RunE: runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}

// selftest counts results and prints one line per check.
type selftest struct {
	failed int
}

func (t *selftest) check(ok bool, name string) {
	if ok {
		fmt.Printf("%s: %s\n", green("SUCCESS"), name)
		return
	}
	t.failed++
	fmt.Printf("%s: %s\n", red("FAIL"), name)
}

// checkIO is check for chain operations: a failure also prints the cable
// error code.
func (t *selftest) checkIO(err error, code erc.Code, name string) {
	t.check(err == nil, name)
	if err == nil {
		return
	}
	if code == erc.NoError {
		code = erc.CodeOf(err)
	}
	if rec, lerr := erc.Lookup(code); lerr == nil {
		fmt.Printf("FAILURE: %s\n", rec.Name)
		fmt.Printf("REASON: %s\n", rec.Description)
	}
	fmt.Printf("ERROR: %v\n", err)
}

func runSelftest(cmd *cobra.Command, args []string) error {
	t := &selftest{}

	b := []byte{0xFF, 0x00, 0xF0}
	bitrev.ReverseBits(b, 24)
	t.check(bytes.Equal(b, []byte{0x0F, 0x00, 0xFF}), "Reverse Bits 24")
	bitrev.ReverseBits(b, 24)
	t.check(bytes.Equal(b, []byte{0xFF, 0x00, 0xF0}), "Reverse Bits 24 twice")
	c := []byte{0x01, 0x24, 0x08}
	bitrev.ReverseBits(c, 20)
	t.check(bytes.Equal(c, []byte{0x41, 0x02, 0x08}), "Reverse Bits 20")
	bitrev.ReverseBits(c, 20)
	t.check(bytes.Equal(c, []byte{0x01, 0x24, 0x08}), "Reverse Bits 20 twice")
	t.check(bitrev.ReverseByte(0x08) == 0x10, "Reverse Byte")

	cfg, err := sessionConfig(true)
	if err != nil {
		return err
	}
	conn := newConnector()

	s, err := conn.Connect(cmd.Context(), cfg)
	t.checkIO(err, conn.LastError(), "CONNECT")
	if err != nil {
		return errors.New("selftest: no cable")
	}
	t.checkIO(s.Close(), erc.NoError, "DISCONNECT")

	s, err = conn.Connect(cmd.Context(), cfg)
	t.checkIO(err, conn.LastError(), "CONNECT")
	if err != nil {
		return errors.New("selftest: no cable")
	}
	defer s.Close()

	t.checkIO(s.SetInstruction(bscan.InstructionUser1), s.LastError(), "SET INSTR USER1")
	t.checkIO(s.GotoState(tap.StateShiftDR), s.LastError(), "GOTO SHIFT")

	tdo, err := s.ShiftBinary("1111000011110000", false)
	t.checkIO(err, s.LastError(), "SHIFT BINARY")
	if err == nil {
		if simulated() {
			t.check(bytes.Equal(tdo, []byte{0x3C, 0x3C}), "USER1 capture")
		} else {
			fmt.Printf("  captured % X\n", tdo)
		}
	}

	pattern := []bool{true, true, false, true, false, true, false, true, false, true}
	var got []bool
	for _, bit := range pattern {
		out, err := s.ShiftBit(bit, false)
		if err != nil {
			t.checkIO(err, s.LastError(), "SHIFT BIT")
			break
		}
		got = append(got, out)
	}
	if len(got) == len(pattern) && simulated() {
		// Two bits of latency: the first two outputs are the tail of the
		// previous pattern.
		want := append([]bool{false, false}, pattern[:len(pattern)-2]...)
		t.check(bitrev.FormatBinary(got) == bitrev.FormatBinary(want), "USER1 latency")
	}

	t.checkIO(s.SetInstruction(bscan.InstructionUser2), s.LastError(), "SET INSTR USER2")
	t.checkIO(s.GotoState(tap.StateShiftDR), s.LastError(), "GOTO SHIFT")
	for i := 0; i < 8; i++ {
		if _, err := s.ShiftBit(false, i == 7); err != nil {
			t.checkIO(err, s.LastError(), "SHIFT BIT")
			break
		}
	}

	if err := s.Close(); err != nil {
		t.checkIO(err, erc.NoError, "DISCONNECT")
	} else {
		t.check(true, "DISCONNECT")
	}

	if t.failed > 0 {
		return fmt.Errorf("selftest: %d check(s) failed", t.failed)
	}
	fmt.Println("All checks passed.")
	return nil
}
