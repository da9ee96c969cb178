package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/idcode"
	"github.com/OpenTraceLab/bistio/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

var idcodeChainCount int

var idcodeCmd = &cobra.Command{
	Use:   "idcode",
	Short: "Read and identify device IDCODEs",
	Long: `Read the FPGA IDCODE and look it up in the device table. With --chain N the
chain is scanned for up to N devices right after a TAP reset, nearest TDO
first. Devices without an IDCODE register show up as BYPASS.

Examples:
  bist idcode
  bist idcode --chain 2`,
	RunE: runIDCode,
}

func init() {
	rootCmd.AddCommand(idcodeCmd)
	idcodeCmd.Flags().IntVar(&idcodeChainCount, "chain", 0, "scan the reset chain for up to N devices")
}

func runIDCode(cmd *cobra.Command, args []string) error {
	if idcodeChainCount < 0 {
		return fmt.Errorf("invalid --chain %d", idcodeChainCount)
	}
	return withSession(cmd.Context(), idcodeChainCount == 0, func(s *bscan.Session) error {
		if idcodeChainCount == 0 {
			dev, err := s.Device()
			if err != nil {
				return err
			}
			printDevice(0, dev)
			return nil
		}

		// Every device selects IDCODE (or BYPASS) in Test-Logic-Reset. TDI
		// is held high so the end of the chain reads as all ones.
		if err := s.GotoState(tap.StateTestLogicReset); err != nil {
			return err
		}
		bits := 32 * (idcodeChainCount + 1)
		fill := bytes.Repeat([]byte{0xFF}, bits/8)
		out, err := s.ScanDR(fill, bits, tap.StateRunTestIdle)
		if err != nil {
			return err
		}
		ids := idcode.SplitChain(out, bits)
		fmt.Printf("Found %d device(s)\n", len(ids))
		for i, id := range ids {
			if !id.Valid() {
				fmt.Printf("Device %d: BYPASS (no IDCODE)\n", i)
				continue
			}
			printDevice(i, deviceinfo.Lookup(id.Raw))
		}
		return nil
	})
}

func printDevice(pos int, dev deviceinfo.DeviceInfo) {
	fmt.Printf("Device %d:\n", pos)
	fmt.Printf("  IDCODE:       0x%08X\n", dev.IDCode.Raw)
	fmt.Printf("  Manufacturer: %s\n", dev.Manufacturer.Name)
	fmt.Printf("  Name:         %s\n", dev.Name)
	if dev.Family != "" {
		fmt.Printf("  Family:       %s\n", dev.Family)
	}
	if dev.IRLength > 0 {
		fmt.Printf("  IR Length:    %d\n", dev.IRLength)
	}
	fmt.Printf("  Version:      %d\n", dev.IDCode.Version)
}
