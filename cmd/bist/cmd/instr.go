package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bscan"
)

var instrCmd = &cobra.Command{
	Use:   "instr [name]",
	Short: "List or load FPGA instructions",
	Long: `Without arguments, list the instructions supported by the configured family.
With a name, load that instruction into the FPGA and put the other devices in
the chain into BYPASS.

Examples:
  bist instr
  bist instr USER1
  bist --family virtex instr USER3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstr,
}

func init() {
	rootCmd.AddCommand(instrCmd)
}

func runInstr(cmd *cobra.Command, args []string) error {
	fam, err := bscan.ParseFamily(settings.Family)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Printf("Instructions for %s (IR %d bits):\n", fam, fam.IRLength())
		for _, instr := range bscan.Instructions() {
			if !instr.SupportedBy(fam) {
				continue
			}
			fmt.Printf("  %-10s 0x%02X\n", instr, uint8(instr))
		}
		return nil
	}

	instr, err := bscan.ParseInstruction(args[0])
	if err != nil {
		return err
	}
	return withSession(cmd.Context(), true, func(s *bscan.Session) error {
		if err := s.SetInstruction(instr); err != nil {
			return err
		}
		fmt.Printf("Loaded %s (opcode 0x%02X) on %s\n", instr, uint8(instr), s.Family())
		fmt.Printf("State: %s\n", s.State())
		return nil
	})
}
