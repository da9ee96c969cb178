package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/erc"
)

// probeTransport is the command/response channel to a CMSIS-DAP probe.
type probeTransport interface {
	WriteRead(cmd []byte) ([]byte, error)
	GetPacketSize() int
	Close() error
}

// CMSISDAPAdapter implements the Adapter interface for CMSIS-DAP probes
type CMSISDAPAdapter struct {
	transport  probeTransport
	packetSize int

	info      AdapterInfo
	speedHz   int
	connected bool

	mu sync.Mutex // Protect concurrent access
}

// NewCMSISDAPAdapter opens a probe matching vid:pid, the first one found
// when serial is empty.
func NewCMSISDAPAdapter(vid, pid uint16, serial string) (*CMSISDAPAdapter, error) {
	transport, err := openUSBProbe(vid, pid, serial)
	if err != nil {
		return nil, err
	}
	adapter, err := newCMSISDAPAdapter(transport)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return adapter, nil
}

func newCMSISDAPAdapter(transport probeTransport) (*CMSISDAPAdapter, error) {
	adapter := &CMSISDAPAdapter{
		transport:  transport,
		packetSize: transport.GetPacketSize(),
		speedHz:    1_000_000,
	}

	if err := adapter.queryInfo(); err != nil {
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}
	if err := adapter.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to JTAG: %w", err)
	}
	if err := adapter.SetSpeed(adapter.speedHz); err != nil {
		return nil, fmt.Errorf("failed to set default speed: %w", err)
	}
	return adapter, nil
}

// queryInfo retrieves device information from the probe. Only the vendor
// string is mandatory; probes may leave the others empty.
func (a *CMSISDAPAdapter) queryInfo() error {
	vendor, err := a.infoString(infoVendor)
	if err != nil {
		return err
	}
	product, _ := a.infoString(infoProduct)
	serial, _ := a.infoString(infoSerial)
	firmware, _ := a.infoString(infoFirmware)

	a.info = AdapterInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
		MinFrequency: 1000,       // 1 kHz
		MaxFrequency: 10_000_000, // 10 MHz (typical for CMSIS-DAP)
		// DAP_ResetTarget drives the system reset; nTRST is left alone.
		SupportsSRST: true,
	}
	return nil
}

func (a *CMSISDAPAdapter) infoString(id byte) (string, error) {
	resp, err := a.transport.WriteRead(encodeInfo(id))
	if err != nil {
		return "", err
	}
	s, err := decodeInfo(resp)
	if err != nil {
		return "", erc.Errorf(erc.StsReceiveFailed, "info", "%v", err)
	}
	return s, nil
}

// connect switches the probe to JTAG mode.
func (a *CMSISDAPAdapter) connect() error {
	resp, err := a.transport.WriteRead(encodeConnect(portJTAG))
	if err != nil {
		return err
	}

	port, err := decodeConnect(resp)
	if err != nil {
		return &erc.Error{Code: erc.ConnectionFailed, Op: "connect", Err: err}
	}
	if port != portJTAG {
		return erc.Errorf(erc.NotSupported, "connect", "probe selected port %d instead of JTAG", port)
	}

	a.connected = true
	return nil
}

// Info returns adapter capabilities
func (a *CMSISDAPAdapter) Info() (AdapterInfo, error) {
	return a.info, nil
}

// Shift clocks bits TCK cycles with per-bit TMS and TDI.
func (a *CMSISDAPAdapter) Shift(tms, tdi []byte, bits int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := ValidateShiftBuffers(tms, tdi, bits); err != nil {
		return nil, err
	}
	if !a.connected {
		return nil, erc.Errorf(erc.InvalidHif, "shift", "probe not connected")
	}

	tdo := make([]byte, (bits+7)/8)
	pos := 0
	for _, batch := range a.batch(a.buildSequences(tms, tdi, bits)) {
		resp, err := a.transport.WriteRead(encodeSequences(batch))
		if err != nil {
			return nil, err
		}
		captured, err := decodeSequences(resp, batch)
		if err != nil {
			return nil, &erc.Error{Code: erc.ControlTransferFailed, Op: "shift", Err: err}
		}
		// Every sequence built by Shift captures, so captured lines up with batch.
		for j, seq := range batch {
			for k := 0; k < seq.clocks; k++ {
				if bitrev.Bit(captured[j], k, bitrev.LSBFirst) {
					bitrev.SetBit(tdo, pos, true, bitrev.LSBFirst)
				}
				pos++
			}
		}
	}
	return tdo, nil
}

// batch groups sequences so each request and its reply fit in one packet.
func (a *CMSISDAPAdapter) batch(seqs []dapSequence) [][]dapSequence {
	var out [][]dapSequence
	start := 0
	for end := 1; end <= len(seqs); end++ {
		req, resp := sequenceSizes(seqs[start:end])
		if end-start > 1 && (req > a.packetSize || resp > a.packetSize || end-start > maxSequences) {
			out = append(out, seqs[start:end-1])
			start = end - 1
		}
	}
	if start < len(seqs) {
		out = append(out, seqs[start:])
	}
	return out
}

// buildSequences splits a shift into runs of constant TMS, at most 64 clocks
// each.
func (a *CMSISDAPAdapter) buildSequences(tms, tdi []byte, bits int) []dapSequence {
	tmsAt := func(i int) bool {
		return len(tms) > 0 && bitrev.Bit(tms, i, bitrev.LSBFirst)
	}

	var seqs []dapSequence
	for pos := 0; pos < bits; {
		level := tmsAt(pos)
		n := 1
		for pos+n < bits && n < maxSequenceClocks && tmsAt(pos+n) == level {
			n++
		}
		run := make([]byte, (n+7)/8)
		if len(tdi) > 0 {
			for k := 0; k < n; k++ {
				if bitrev.Bit(tdi, pos+k, bitrev.LSBFirst) {
					bitrev.SetBit(run, k, true, bitrev.LSBFirst)
				}
			}
		}
		seqs = append(seqs, newSequence(n, level, true, run))
		pos += n
	}
	return seqs
}

// ResetTAP clocks five TMS=1 cycles. With hard set it sends DAP_ResetTarget
// instead, which resets the target system but not necessarily its TAP.
func (a *CMSISDAPAdapter) ResetTAP(hard bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hard {
		return a.command(dapResetTarget, "reset", []byte{byte(dapResetTarget)})
	}
	seqs := []dapSequence{newSequence(5, true, false, nil)}
	resp, err := a.transport.WriteRead(encodeSequences(seqs))
	if err != nil {
		return err
	}
	if _, err := decodeSequences(resp, seqs); err != nil {
		return &erc.Error{Code: erc.ControlTransferFailed, Op: "reset", Err: err}
	}
	return nil
}

// SetSpeed sets the TCK frequency.
func (a *CMSISDAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return erc.Errorf(erc.BadParameter, "set speed", "frequency %d Hz out of range [%d, %d]",
			hz, a.info.MinFrequency, a.info.MaxFrequency)
	}
	if err := a.command(dapSWJClock, "set speed", encodeClock(uint32(hz))); err != nil {
		return err
	}
	a.speedHz = hz
	return nil
}

// command sends a request whose reply is just the echoed id and a status.
func (a *CMSISDAPAdapter) command(cmd dapCmd, op string, req []byte) error {
	resp, err := a.transport.WriteRead(req)
	if err != nil {
		return err
	}
	if err := checkReply(cmd, resp, true); err != nil {
		return &erc.Error{Code: erc.ControlTransferFailed, Op: op, Err: err}
	}
	return nil
}

// Close leaves JTAG mode and releases the probe.
func (a *CMSISDAPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		// Best effort; the transport is released regardless.
		_ = a.command(dapDisconnect, "disconnect", []byte{byte(dapDisconnect)})
		a.connected = false
	}
	return a.transport.Close()
}
