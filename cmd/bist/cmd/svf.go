package cmd

import (
	"fmt"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/svf"
)

var svfNoProgress bool

var svfCmd = &cobra.Command{
	Use:   "svf <file>",
	Short: "Play an SVF file",
	Long: `Parse a Serial Vector Format file and play it against the chain. TDO values
given in the file are checked under MASK and the first mismatch stops playback
with its line number.

Examples:
  bist svf idcode.svf
  bist --adapter cmsis-dap svf design.svf --no-progress`,
	Args: cobra.ExactArgs(1),
	RunE: runSVF,
}

func init() {
	rootCmd.AddCommand(svfCmd)
	svfCmd.Flags().BoolVar(&svfNoProgress, "no-progress", false, "do not draw a progress bar")
}

func runSVF(cmd *cobra.Command, args []string) error {
	parser, err := svf.NewParser()
	if err != nil {
		return err
	}
	file, err := parser.ParseFile(args[0])
	if err != nil {
		return err
	}

	// SVF drives the TAP directly, so the instruction policy is off.
	return withSession(cmd.Context(), false, func(s *bscan.Session) error {
		player := svf.NewPlayer(s)
		player.Logger = logger

		if !svfNoProgress {
			bar := newBar(len(file.Commands), "playing "+args[0])
			defer bar.Finish()
			player.Progress = func(done, total int) {
				bar.Set(done)
			}
		}

		if err := player.Play(cmd.Context(), file); err != nil {
			return err
		}
		fmt.Printf("SVF playback complete: %d commands\n", len(file.Commands))
		return nil
	})
}

func newBar(length int, text string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		length,
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(text),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
