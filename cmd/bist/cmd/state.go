package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

var stateInstr string

var stateCmd = &cobra.Command{
	Use:   "state [target]",
	Short: "Walk the TAP to a state",
	Long: `Reset the TAP, optionally load an instruction and move to the target state,
printing the TMS sequence used. Without a target the state after reset is shown.

Data-register states need an instruction:
  bist state --instr USER1 ShiftDR
  bist state RunTestIdle`,
	Args: cobra.MaximumNArgs(1),
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().StringVarP(&stateInstr, "instr", "i", "", "instruction to load first")
}

func runState(cmd *cobra.Command, args []string) error {
	target := tap.StateTestLogicReset
	if len(args) == 1 {
		st, err := tap.ParseState(args[0])
		if err != nil {
			return err
		}
		target = st
	}

	return withSession(cmd.Context(), true, func(s *bscan.Session) error {
		if stateInstr != "" {
			instr, err := bscan.ParseInstruction(stateInstr)
			if err != nil {
				return err
			}
			if err := s.SetInstruction(instr); err != nil {
				return err
			}
		}

		from := s.State()
		path, err := tap.Path(from, target)
		if err != nil {
			return err
		}
		if err := s.GotoState(target); err != nil {
			return err
		}

		fmt.Printf("From:  %s\n", from)
		fmt.Printf("State: %s\n", s.State())
		fmt.Printf("TMS:   %s\n", tmsString(path.TMS))
		if instr, ok := s.Instruction(); ok {
			fmt.Printf("Instruction: %s\n", instr)
		}
		return nil
	})
}

func tmsString(tms []bool) string {
	if len(tms) == 0 {
		return "(none)"
	}
	out := make([]byte, len(tms))
	for i, b := range tms {
		out[i] = '0'
		if b {
			out[i] = '1'
		}
	}
	return string(out)
}
