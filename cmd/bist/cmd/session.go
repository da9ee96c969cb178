package cmd

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/jtag"
	"github.com/OpenTraceLab/bistio/pkg/xvc"
)

func simulated() bool {
	return settings.Adapter == string(jtag.InterfaceKindSim)
}

// openAdapter opens the cable selected by the settings. The simulator is a
// fresh starter board for the configured family on every call.
func openAdapter(ctx context.Context) (jtag.Adapter, error) {
	kind, err := jtag.ParseInterfaceKind(settings.Adapter)
	if err != nil {
		return nil, err
	}
	switch kind {
	case jtag.InterfaceKindSim:
		fam, err := bscan.ParseFamily(settings.Family)
		if err != nil {
			return nil, err
		}
		board := jtag.BuildSpartan3Board
		if fam == bscan.FamilyVirtex {
			board = jtag.BuildVirtexBoard
		}
		chain, err := board()
		if err != nil {
			return nil, err
		}
		return chain.Adapter(), nil
	case jtag.InterfaceKindCMSISDAP:
		a, err := jtag.NewCMSISDAPAdapter(jtag.VendorIDRaspberryPi, jtag.ProductIDCMSISDAP, settings.ProbeSerial)
		if err != nil {
			return nil, err
		}
		return a, nil
	case jtag.InterfaceKindXVCTCP:
		if settings.XVCAddr == "" {
			return nil, fmt.Errorf("adapter %s needs --xvc-addr", kind)
		}
		c, err := xvc.Dial(ctx, settings.XVCAddr)
		if err != nil {
			return nil, err
		}
		return c, nil
	case jtag.InterfaceKindXVCSerial:
		if settings.SerialPort == "" {
			return nil, fmt.Errorf("adapter %s needs --serial-port", kind)
		}
		c, err := xvc.OpenSerial(settings.SerialPort, 0)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported adapter %q", settings.Adapter)
}

func sessionConfig(requireInstruction bool) (bscan.Config, error) {
	fam, err := bscan.ParseFamily(settings.Family)
	if err != nil {
		return bscan.Config{}, err
	}
	cfg := bscan.DefaultConfig()
	cfg.Family = fam
	cfg.SpeedHz = settings.SpeedHz
	cfg.RequireInstruction = requireInstruction
	cfg.Logger = logger
	return cfg, nil
}

func newConnector() *bscan.Connector {
	return &bscan.Connector{Open: openAdapter}
}

// withSession connects, runs fn and always closes the session.
func withSession(ctx context.Context, requireInstruction bool, fn func(*bscan.Session) error) error {
	cfg, err := sessionConfig(requireInstruction)
	if err != nil {
		return err
	}
	return bscan.With(ctx, newConnector(), cfg, fn)
}
