package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

var (
	shiftInstr string
	shiftBits  []string
	shiftLast  bool
	shiftMSB   bool
)

var shiftCmd = &cobra.Command{
	Use:   "shift",
	Short: "Shift bit strings through a user data register",
	Long: `Load an instruction, move to Shift-DR and shift each --bits string in turn,
printing the TDO captured for each. --last raises TMS on the final bit of the
final string so the TAP leaves Shift-DR.

Examples:
  bist shift --instr USER1 --bits 1111000011110000
  bist shift --instr USER2 --bits 0000000000000000000000001 --bits 1010 --last
  bist shift --instr USER1 --bits 1000000000 --msb=false`,
	RunE: runShift,
}

func init() {
	rootCmd.AddCommand(shiftCmd)

	shiftCmd.Flags().StringVarP(&shiftInstr, "instr", "i", "USER1", "instruction selecting the data register")
	shiftCmd.Flags().StringArrayVarP(&shiftBits, "bits", "b", nil, "bits to shift, first character first (repeatable)")
	shiftCmd.Flags().BoolVar(&shiftLast, "last", false, "exit Shift-DR on the final bit")
	shiftCmd.Flags().BoolVar(&shiftMSB, "msb", true, "pack captured bits MSB first")

	shiftCmd.MarkFlagRequired("bits")
}

func runShift(cmd *cobra.Command, args []string) error {
	instr, err := bscan.ParseInstruction(shiftInstr)
	if err != nil {
		return err
	}
	order := bitrev.MSBFirst
	if !shiftMSB {
		order = bitrev.LSBFirst
	}

	return withSession(cmd.Context(), true, func(s *bscan.Session) error {
		if err := s.SetInstruction(instr); err != nil {
			return err
		}
		if err := s.GotoState(tap.StateShiftDR); err != nil {
			return err
		}

		for i, bits := range shiftBits {
			last := shiftLast && i == len(shiftBits)-1
			tdo, err := s.ShiftBinary(bits, last, bscan.WithOrder(order))
			if err != nil {
				return err
			}
			in, _ := bitrev.ParseBinary(bits)
			captured := bitrev.Unpack(tdo, len(in), order)
			fmt.Printf("TDI: %s\n", bitrev.FormatBinary(in))
			fmt.Printf("TDO: %s (% X, %s)\n", bitrev.FormatBinary(captured), tdo, order)
		}
		fmt.Printf("State: %s\n", s.State())
		return nil
	})
}
