package jtag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/OpenTraceLab/bistio/pkg/erc"
)

const (
	// Raspberry Pi debug probe USB identifiers
	VendorIDRaspberryPi = 0x2E8A
	ProductIDCMSISDAP   = 0x000C

	cmsisdapPacketSize = 64
	cmsisdapTimeout    = 5 * time.Second
)

// usbProbe is the bulk-endpoint channel to a CMSIS-DAP v2 probe.
type usbProbe struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	out *gousb.OutEndpoint
	in  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

// openUSBProbe opens the probe with the given IDs. A non-empty serial picks
// one probe when several are attached.
func openUSBProbe(vid, pid uint16, serial string) (*usbProbe, error) {
	op := fmt.Sprintf("open probe %04X:%04X", vid, pid)
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == vid && uint16(desc.Product) == pid
	})
	if len(devs) == 0 {
		ctx.Close()
		if errors.Is(err, gousb.ErrorAccess) || errors.Is(err, gousb.ErrorBusy) {
			return nil, &erc.Error{Code: erc.DeviceBusy, Op: op, Err: err}
		}
		if err != nil {
			return nil, &erc.Error{Code: erc.ConnectionFailed, Op: op, Err: err}
		}
		return nil, erc.Errorf(erc.ConnectionFailed, op, "no probe attached")
	}

	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil && serial == "" {
			dev = d
			continue
		}
		if dev == nil {
			if sn, _ := d.SerialNumber(); sn == serial {
				dev = d
				continue
			}
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		return nil, erc.Errorf(erc.ConnectionFailed, op, "no probe with serial %q", serial)
	}

	// Not every platform can detach the kernel driver; claiming the
	// interface reports the real failure.
	_ = dev.SetAutoDetach(true)

	p := &usbProbe{
		ctx:        ctx,
		dev:        dev,
		packetSize: cmsisdapPacketSize,
		timeout:    cmsisdapTimeout,
	}
	if err := p.claim(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// claim selects the vendor-class interface and its bulk endpoint pair.
func (p *usbProbe) claim() error {
	cfg, err := p.dev.Config(1)
	if err != nil {
		return &erc.Error{Code: erc.ControlTransferFailed, Op: "select configuration", Err: err}
	}
	p.cfg = cfg

	num := 0
	for _, desc := range cfg.Desc.Interfaces {
		if len(desc.AltSettings) > 0 && desc.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = desc.Number
			break
		}
	}
	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return &erc.Error{Code: erc.DeviceBusy, Op: fmt.Sprintf("claim interface %d", num), Err: err}
	}
	p.intf = intf

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionOut && outNum == 0:
			outNum = ep.Number
		case ep.Direction == gousb.EndpointDirectionIn && inNum == 0:
			inNum = ep.Number
			p.packetSize = ep.MaxPacketSize
		}
	}
	if outNum == 0 || inNum == 0 {
		return erc.Errorf(erc.NotSupported, "claim probe", "interface %d has no bulk endpoint pair", num)
	}

	if p.out, err = intf.OutEndpoint(outNum); err != nil {
		return &erc.Error{Code: erc.ConnectionFailed, Op: "open OUT endpoint", Err: err}
	}
	if p.in, err = intf.InEndpoint(inNum); err != nil {
		return &erc.Error{Code: erc.ConnectionFailed, Op: "open IN endpoint", Err: err}
	}
	return nil
}

// WriteRead sends one command packet, zero padded, and returns the reply.
func (p *usbProbe) WriteRead(cmd []byte) ([]byte, error) {
	packet := make([]byte, p.packetSize)
	copy(packet, cmd)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if _, err := p.out.WriteContext(ctx, packet); err != nil {
		return nil, &erc.Error{Code: erc.CmdSendFailed, Op: "usb write", Err: err}
	}
	resp := make([]byte, p.packetSize)
	n, err := p.in.ReadContext(ctx, resp)
	if err != nil {
		return nil, &erc.Error{Code: erc.StsReceiveFailed, Op: "usb read", Err: err}
	}
	return resp[:n], nil
}

func (p *usbProbe) GetPacketSize() int {
	return p.packetSize
}

func (p *usbProbe) Close() error {
	if p.intf != nil {
		p.intf.Close()
		p.intf = nil
	}
	if p.cfg != nil {
		p.cfg.Close()
		p.cfg = nil
	}
	if p.dev != nil {
		p.dev.Close()
		p.dev = nil
	}
	if p.ctx != nil {
		p.ctx.Close()
		p.ctx = nil
	}
	return nil
}
