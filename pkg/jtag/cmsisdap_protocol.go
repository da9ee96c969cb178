package jtag

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// dapCmd is a CMSIS-DAP command identifier. Responses echo it in byte 0.
type dapCmd byte

const (
	dapInfo         dapCmd = 0x00
	dapConnect      dapCmd = 0x02
	dapDisconnect   dapCmd = 0x03
	dapResetTarget  dapCmd = 0x0A
	dapSWJClock     dapCmd = 0x11
	dapJTAGSequence dapCmd = 0x14
)

func (c dapCmd) String() string {
	switch c {
	case dapInfo:
		return "DAP_Info"
	case dapConnect:
		return "DAP_Connect"
	case dapDisconnect:
		return "DAP_Disconnect"
	case dapResetTarget:
		return "DAP_ResetTarget"
	case dapSWJClock:
		return "DAP_SWJ_Clock"
	case dapJTAGSequence:
		return "DAP_JTAG_Sequence"
	}
	return fmt.Sprintf("DAP_0x%02X", byte(c))
}

// DAP_Info identifiers.
const (
	infoVendor   byte = 0x01
	infoProduct  byte = 0x02
	infoSerial   byte = 0x03
	infoFirmware byte = 0x04
)

// DAP_Connect port selectors.
const (
	portJTAG byte = 0x02
)

const dapOK byte = 0x00

// Sequence info byte layout.
const (
	seqClockMask  = 0x3F // 0 encodes 64 clocks
	seqTMS        = 0x40
	seqCaptureTDO = 0x80

	maxSequenceClocks = 64
	maxSequences      = 255
)

// ErrDAPResponse reports a reply the probe should not have sent.
var ErrDAPResponse = errors.New("cmsis-dap: bad response")

// dapSequence is one entry of a DAP_JTAG_Sequence request: up to 64 clocks at
// a fixed TMS level.
type dapSequence struct {
	clocks  int
	tms     bool
	capture bool
	tdi     []byte
}

func newSequence(clocks int, tms, capture bool, tdi []byte) dapSequence {
	if len(tdi) < (clocks+7)/8 {
		padded := make([]byte, (clocks+7)/8)
		copy(padded, tdi)
		tdi = padded
	}
	return dapSequence{clocks: clocks, tms: tms, capture: capture, tdi: tdi[:(clocks+7)/8]}
}

func (s dapSequence) info() byte {
	b := byte(s.clocks & seqClockMask)
	if s.tms {
		b |= seqTMS
	}
	if s.capture {
		b |= seqCaptureTDO
	}
	return b
}

// tdoBytes is the size of the captured data the probe returns for s.
func (s dapSequence) tdoBytes() int {
	if !s.capture {
		return 0
	}
	return len(s.tdi)
}

// parseSequenceInfo is the inverse of dapSequence.info.
func parseSequenceInfo(b byte) (clocks int, tms, capture bool) {
	clocks = int(b & seqClockMask)
	if clocks == 0 {
		clocks = maxSequenceClocks
	}
	return clocks, b&seqTMS != 0, b&seqCaptureTDO != 0
}

// checkReply validates the echoed command id and, when status is set, the
// status byte that follows it.
func checkReply(cmd dapCmd, resp []byte, status bool) error {
	if len(resp) < 1 || (status && len(resp) < 2) {
		return fmt.Errorf("%w: %s reply of %d bytes", ErrDAPResponse, cmd, len(resp))
	}
	if dapCmd(resp[0]) != cmd {
		return fmt.Errorf("%w: %s answered with %s", ErrDAPResponse, cmd, dapCmd(resp[0]))
	}
	if status && resp[1] != dapOK {
		return fmt.Errorf("%w: %s status 0x%02X", ErrDAPResponse, cmd, resp[1])
	}
	return nil
}

func encodeInfo(id byte) []byte {
	return []byte{byte(dapInfo), id}
}

func decodeInfo(resp []byte) (string, error) {
	if err := checkReply(dapInfo, resp, false); err != nil {
		return "", err
	}
	if len(resp) < 2 || len(resp) < 2+int(resp[1]) {
		return "", fmt.Errorf("%w: truncated %s string", ErrDAPResponse, dapInfo)
	}
	return string(resp[2 : 2+int(resp[1])]), nil
}

func encodeConnect(port byte) []byte {
	return []byte{byte(dapConnect), port}
}

// decodeConnect returns the port the probe selected. Zero means it refused.
func decodeConnect(resp []byte) (byte, error) {
	if err := checkReply(dapConnect, resp, false); err != nil {
		return 0, err
	}
	if len(resp) < 2 || resp[1] == 0 {
		return 0, fmt.Errorf("%w: %s refused", ErrDAPResponse, dapConnect)
	}
	return resp[1], nil
}

func encodeClock(hz uint32) []byte {
	return binary.LittleEndian.AppendUint32([]byte{byte(dapSWJClock)}, hz)
}

// encodeSequences builds a DAP_JTAG_Sequence request:
// count, then info byte and TDI bytes per sequence.
func encodeSequences(seqs []dapSequence) []byte {
	out := []byte{byte(dapJTAGSequence), byte(len(seqs))}
	for _, s := range seqs {
		out = append(out, s.info())
		out = append(out, s.tdi...)
	}
	return out
}

// decodeSequences returns the TDO bytes of every capturing sequence, in
// request order.
func decodeSequences(resp []byte, seqs []dapSequence) ([][]byte, error) {
	if err := checkReply(dapJTAGSequence, resp, true); err != nil {
		return nil, err
	}
	data := resp[2:]
	var tdo [][]byte
	for i, s := range seqs {
		n := s.tdoBytes()
		if n == 0 {
			continue
		}
		if len(data) < n {
			return nil, fmt.Errorf("%w: sequence %d: want %d TDO bytes, have %d", ErrDAPResponse, i, n, len(data))
		}
		tdo = append(tdo, data[:n:n])
		data = data[n:]
	}
	return tdo, nil
}

// sequenceSizes returns the request and reply bytes seqs occupy on the wire.
func sequenceSizes(seqs []dapSequence) (req, resp int) {
	req, resp = 2, 2
	for _, s := range seqs {
		req += 1 + len(s.tdi)
		resp += s.tdoBytes()
	}
	return req, resp
}
