package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/bistio/pkg/xvc"
)

var (
	xvcListen    string
	xvcMDNS      bool
	xvcInstance  string
	xvcMaxVector int
)

var xvcCmd = &cobra.Command{
	Use:   "xvc",
	Short: "Xilinx Virtual Cable bridge",
}

var xvcServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured cable to XVC clients",
	Long: `Expose the configured adapter over the Xilinx Virtual Cable protocol so tools
such as Vivado or openFPGALoader can use it over the network. One client is
served at a time. --mdns advertises the server as _xvc._tcp.

Examples:
  bist --adapter cmsis-dap xvc serve
  bist xvc serve --listen 127.0.0.1:2542 --mdns`,
	RunE: runXVCServe,
}

func init() {
	rootCmd.AddCommand(xvcCmd)
	xvcCmd.AddCommand(xvcServeCmd)

	xvcServeCmd.Flags().StringVarP(&xvcListen, "listen", "l", ":"+strconv.Itoa(xvc.DefaultPort), "listen address")
	xvcServeCmd.Flags().BoolVar(&xvcMDNS, "mdns", false, "advertise with mDNS")
	xvcServeCmd.Flags().StringVar(&xvcInstance, "instance", "", "mDNS instance name (default bistio-<hostname>)")
	xvcServeCmd.Flags().IntVar(&xvcMaxVector, "max-vector", xvc.DefaultMaxVectorBytes, "largest shift vector in bytes")
}

func runXVCServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter, err := openAdapter(ctx)
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	defer adapter.Close()

	if settings.SpeedHz > 0 {
		if err := adapter.SetSpeed(settings.SpeedHz); err != nil {
			logger.Warn("speed not applied", "hz", settings.SpeedHz, "err", err)
		}
	}

	srv := &xvc.Server{
		Adapter:        adapter,
		MaxVectorBytes: xvcMaxVector,
		Advertise:      xvcMDNS,
		Instance:       xvcInstance,
		Logger:         logger,
	}
	fmt.Printf("Serving %s adapter over XVC on %s\n", settings.Adapter, xvcListen)
	return srv.ListenAndServe(ctx, xvcListen)
}
