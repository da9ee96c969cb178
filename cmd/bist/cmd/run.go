package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/script"
)

var runNoSession bool

var runCmd = &cobra.Command{
	Use:   "run <script.star>",
	Short: "Run a Starlark script against the chain",
	Long: `Run a Starlark script with a connected session. Scripts can call reset(),
goto(state), set_instruction(name), shift_bit(tdi, last=False),
shift_binary(bits, last=False, msb_first=True), clock(cycles), read_idcode(),
state(), last_error(), reverse_bits(list, n), reverse_byte(b) and
error_info(code).

Example script:
  set_instruction("USER1")
  goto("ShiftDR")
  print(shift_binary("1111000011110000"))`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNoSession, "no-session", false, "run without connecting (bit and error helpers only)")
}

func runScript(cmd *cobra.Command, args []string) error {
	r := &script.Runner{Stdout: os.Stdout, Logger: logger}
	if runNoSession {
		_, err := r.Run(cmd.Context(), args[0], nil)
		return err
	}
	return withSession(cmd.Context(), true, func(s *bscan.Session) error {
		r.Session = s
		_, err := r.Run(cmd.Context(), args[0], nil)
		return err
	})
}
