package jtag

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
)

// InterfaceKind names a cable family. The values double as the adapter
// names accepted by the command line and the config file.
type InterfaceKind string

const (
	InterfaceKindCMSISDAP  InterfaceKind = "cmsis-dap"
	InterfaceKindXVCSerial InterfaceKind = "xvc-serial"
	InterfaceKindXVCTCP    InterfaceKind = "xvc"
	InterfaceKindSim       InterfaceKind = "simulator"
	InterfaceKindUnknown   InterfaceKind = "unknown"
)

// ParseInterfaceKind validates an adapter name.
func ParseInterfaceKind(s string) (InterfaceKind, error) {
	k := InterfaceKind(s)
	switch k {
	case InterfaceKindCMSISDAP, InterfaceKindXVCSerial, InterfaceKindXVCTCP, InterfaceKindSim:
		return k, nil
	}
	return InterfaceKindUnknown, fmt.Errorf("jtag: unknown adapter type %q", s)
}

// InterfaceInfo is one cable found on the host.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
	Path        string
}

func (i InterfaceInfo) Label() string {
	switch {
	case i.Description != "":
		return i.Description
	case i.VendorID != 0 || i.ProductID != 0:
		return fmt.Sprintf("%s %04X:%04X", i.Kind, i.VendorID, i.ProductID)
	}
	return string(i.Kind)
}

// Selector returns the flags that open this cable with the bist command.
func (i InterfaceInfo) Selector() string {
	sel := "--adapter " + string(i.Kind)
	switch i.Kind {
	case InterfaceKindXVCSerial:
		sel += " --serial-port " + i.Path
	case InterfaceKindCMSISDAP:
		if i.Serial != "" {
			sel += " --probe-serial " + i.Serial
		}
	}
	return sel
}

// probeModels lists CMSIS-DAP probes by USB vendor and product id.
var probeModels = map[[2]uint16]string{
	{VendorIDRaspberryPi, ProductIDCMSISDAP}: "Raspberry Pi Debug Probe (CMSIS-DAP)",
	{0x0D28, 0x0204}:                         "DAPLink CMSIS-DAP",
	{0x1366, 0x0101}:                         "SEGGER J-Link CMSIS-DAP",
}

// DiscoverInterfaces lists CMSIS-DAP probes and USB serial ports that may
// host an XVC bridge. The simulator always comes last. A failing bus does
// not hide what the other one found; the error is returned with the list.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	probes, usbErr := discoverProbes(ctx)
	ports, serialErr := discoverSerialBridges(ctx)

	found := append(probes, ports...)
	found = append(found, InterfaceInfo{Kind: InterfaceKindSim, Description: "Simulated Spartan-3 board"})
	return found, errors.Join(usbErr, serialErr)
}

func discoverProbes(ctx context.Context) ([]InterfaceInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var found []InterfaceInfo
	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() == nil {
			if info, ok := probeInterface(desc); ok {
				found = append(found, info)
			}
		}
		// Nothing is opened; the descriptor is all discovery needs.
		return false
	})
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return found, fmt.Errorf("jtag: scan usb: %w", err)
	}
	return found, ctx.Err()
}

func probeInterface(desc *gousb.DeviceDesc) (InterfaceInfo, bool) {
	vid, pid := uint16(desc.Vendor), uint16(desc.Product)
	name, ok := probeModels[[2]uint16{vid, pid}]
	if !ok {
		return InterfaceInfo{}, false
	}
	return InterfaceInfo{
		Kind:        InterfaceKindCMSISDAP,
		Description: name,
		VendorID:    vid,
		ProductID:   pid,
		Path:        fmt.Sprintf("usb:%d:%d", desc.Bus, desc.Address),
	}, true
}

func discoverSerialBridges(ctx context.Context) ([]InterfaceInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("jtag: list serial ports: %w", err)
	}
	var found []InterfaceInfo
	for _, p := range ports {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		if p.IsUSB {
			found = append(found, serialInterface(p))
		}
	}
	return found, nil
}

func serialInterface(p *enumerator.PortDetails) InterfaceInfo {
	vid, _ := strconv.ParseUint(p.VID, 16, 16)
	pid, _ := strconv.ParseUint(p.PID, 16, 16)
	product := p.Product
	if product == "" {
		product = "USB serial"
	}
	return InterfaceInfo{
		Kind:        InterfaceKindXVCSerial,
		Description: product + " on " + p.Name,
		VendorID:    uint16(vid),
		ProductID:   uint16(pid),
		Serial:      p.SerialNumber,
		Path:        p.Name,
	}
}
