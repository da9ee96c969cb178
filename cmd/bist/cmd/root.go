package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/internal/config"
)

var (
	// Global flags
	verbose        bool
	flagAdapter    string
	flagFamily     string
	flagSpeed      int
	flagXVCAddr    string
	flagSerialPort string
	flagProbe      string
	flagLogLevel   string

	// Resolved before every command runs.
	settings config.Config
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bist",
	Short: "Boundary-scan access to Xilinx FPGA user registers",
	Long: `A boundary-scan tool for Xilinx Spartan-3 and Virtex chains. It drives the
TAP through a CMSIS-DAP probe, an XVC server or the built-in board simulator,
loads instructions, shifts data through USER registers and plays SVF files.

Settings come from ~/.config/bistio/config.json, then BIST_* environment
variables, then flags.

Examples:
  bist idcode                                       # Identify the FPGA
  bist shift --instr USER1 --bits 1111000011110000  # Shift through USER1
  bist errors 3072                                  # Describe an error code
  bist --adapter xvc --xvc-addr 10.0.0.5 svf design.svf`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: resolveSettings,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVarP(&flagAdapter, "adapter", "a", "",
		"adapter type (simulator, cmsis-dap, xvc, xvc-serial)")
	pf.StringVarP(&flagFamily, "family", "f", "", "FPGA family (spartan3, virtex)")
	pf.IntVar(&flagSpeed, "speed", 0, "TCK speed in Hz")
	pf.StringVar(&flagXVCAddr, "xvc-addr", "", "XVC server address (host[:port])")
	pf.StringVar(&flagSerialPort, "serial-port", "", "serial port of an XVC bridge")
	pf.StringVar(&flagProbe, "probe-serial", "", "serial number of the CMSIS-DAP probe to use")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// resolveSettings layers flags over the config file and environment and
// installs the logger.
func resolveSettings(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagAdapter != "" {
		cfg.Adapter = flagAdapter
	}
	if flagFamily != "" {
		cfg.Family = flagFamily
	}
	if flagSpeed > 0 {
		cfg.SpeedHz = flagSpeed
	}
	if flagXVCAddr != "" {
		cfg.XVCAddr = flagXVCAddr
	}
	if flagSerialPort != "" {
		cfg.SerialPort = flagSerialPort
	}
	if flagProbe != "" {
		cfg.ProbeSerial = flagProbe
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	settings = cfg
	return nil
}
