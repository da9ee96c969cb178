package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/erc"
)

var errorsCmd = &cobra.Command{
	Use:   "errors [code]",
	Short: "Describe cable error codes",
	Long: `Print the name and description of an error code, or the whole table when no
code is given. Codes may be decimal or 0x-prefixed hex.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runErrors,
}

func init() {
	rootCmd.AddCommand(errorsCmd)
}

func runErrors(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		for _, rec := range erc.Default().Records() {
			fmt.Printf("%5d  %-28s %-8s %s\n", rec.Code, rec.Name, rec.Category, rec.Description)
		}
		return nil
	}

	code, err := strconv.ParseInt(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid code %q: %w", args[0], err)
	}
	rec, err := erc.Lookup(erc.Code(code))
	if err != nil {
		return err
	}
	printRecord(rec)
	return nil
}

func printRecord(rec erc.Record) {
	fmt.Printf("Code:        %d\n", rec.Code)
	fmt.Printf("Name:        %s\n", rec.Name)
	fmt.Printf("Category:    %s\n", rec.Category)
	fmt.Printf("Description: %s\n", rec.Description)
}
