package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/jtag"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available boundary-scan cables",
	Long: `Scan the host for CMSIS-DAP probes and USB serial ports that may carry an XVC
bridge, and print a summary of the detected transports. The simulator is always
listed so commands can be tried without hardware.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := jtag.DiscoverInterfaces(ctx)
	if err != nil {
		logger.Warn("interface discovery incomplete", "err", err)
	}

	fmt.Println("Detected interfaces:")
	for _, iface := range infos {
		line := fmt.Sprintf("  - %s [%s]", iface.Label(), iface.Kind)
		if iface.VendorID != 0 || iface.ProductID != 0 {
			line += fmt.Sprintf(" (VID:PID %04X:%04X)", iface.VendorID, iface.ProductID)
		}
		fmt.Println(line)
		fmt.Printf("      use: bist %s\n", iface.Selector())
	}
	return nil
}
