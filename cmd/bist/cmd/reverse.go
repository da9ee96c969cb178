package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
)

var reverseBitCount int

var reverseCmd = &cobra.Command{
	Use:   "reverse <byte>...",
	Short: "Reverse the bit order of a buffer",
	Long: `Reverse the first --count bits of the given bytes (hex), bit 0 of the first
byte being bit 0 of the buffer. Bits past the count are left alone.

Examples:
  bist reverse 08              # 10
  bist reverse 10 42 08 -n 20  # 21 84 00`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReverse,
}

func init() {
	rootCmd.AddCommand(reverseCmd)
	reverseCmd.Flags().IntVarP(&reverseBitCount, "count", "n", 0, "number of bits to reverse (default all)")
}

func runReverse(cmd *cobra.Command, args []string) error {
	buf := make([]byte, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(arg), "0x"), 16, 8)
		if err != nil {
			return fmt.Errorf("invalid byte %q: %w", arg, err)
		}
		buf[i] = byte(v)
	}

	n := reverseBitCount
	if n == 0 {
		n = 8 * len(buf)
	}
	if n < 0 || n > 8*len(buf) {
		return fmt.Errorf("bit count %d out of range for %d bytes", n, len(buf))
	}

	fmt.Printf("% X\n", bitrev.ReverseBits(buf, n))
	return nil
}
