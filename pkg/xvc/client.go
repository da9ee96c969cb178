// Package xvc speaks the Xilinx Virtual Cable 1.0 protocol. Client turns a
// remote XVC server into a jtag.Adapter and Server exposes a local adapter
// to XVC tools.
package xvc

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/OpenTraceLab/bistio/pkg/erc"
	"github.com/OpenTraceLab/bistio/pkg/jtag"
)

const (
	// DefaultPort is the TCP port XVC servers listen on.
	DefaultPort = 2542
	// Version is the protocol version spoken by this package.
	Version = "1.0"

	DefaultMaxVectorBytes = 2048
	DefaultBaudRate       = 3_000_000
)

// ErrProtocol is returned for malformed XVC messages.
var ErrProtocol = errors.New("xvc: protocol error")

// Client is a jtag.Adapter backed by an XVC server.
type Client struct {
	mu       sync.Mutex
	conn     io.ReadWriteCloser
	rd       *bufio.Reader
	name     string
	server   string
	maxBytes int
	periodNs uint32
	closed   bool
}

// NewClient performs the getinfo handshake over conn.
func NewClient(conn io.ReadWriteCloser, name string) (*Client, error) {
	c := &Client{
		conn: conn,
		rd:   bufio.NewReader(conn),
		name: name,
	}
	if err := c.getInfo(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Dial connects to an XVC server over TCP. A missing port defaults to
// DefaultPort.
func Dial(ctx context.Context, addr string) (*Client, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &erc.Error{Code: erc.ConnectionFailed, Op: "xvc dial " + addr, Err: err}
	}
	return NewClient(conn, "XVC "+addr)
}

// OpenSerial connects to an XVC server behind a serial port, as provided by
// microcontroller-based cables.
func OpenSerial(port string, baud int) (*Client, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, &erc.Error{Code: erc.ConnectionFailed, Op: fmt.Sprintf("open serial port %q", port), Err: err}
	}
	if err := p.SetReadTimeout(5 * time.Second); err != nil {
		p.Close()
		return nil, fmt.Errorf("xvc: set read timeout: %w", err)
	}
	p.ResetInputBuffer()
	p.ResetOutputBuffer()
	return NewClient(&serialConn{p}, "XVC "+port)
}

// serialConn turns read timeouts, which go.bug.st/serial reports as a zero
// length read, into errors so io.ReadFull does not spin.
type serialConn struct {
	serial.Port
}

func (s *serialConn) Read(p []byte) (int, error) {
	n, err := s.Port.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, fmt.Errorf("xvc: serial read timeout")
	}
	return n, err
}

func (c *Client) getInfo() error {
	if _, err := c.conn.Write([]byte("getinfo:")); err != nil {
		return &erc.Error{Code: erc.CmdSendFailed, Op: "xvc getinfo", Err: err}
	}
	line, err := c.rd.ReadString('\n')
	if err != nil {
		return &erc.Error{Code: erc.StsReceiveFailed, Op: "xvc getinfo", Err: err}
	}
	server, maxBytes, err := parseInfo(line)
	if err != nil {
		return err
	}
	c.server = server
	c.maxBytes = maxBytes
	return nil
}

// parseInfo decodes "xvcServer_v1.0:<max vector bytes>\n".
func parseInfo(line string) (string, int, error) {
	line = strings.TrimRight(line, "\r\n")
	server, size, ok := strings.Cut(line, ":")
	if !ok || !strings.HasPrefix(server, "xvcServer_v") {
		return "", 0, fmt.Errorf("%w: bad getinfo reply %q", ErrProtocol, line)
	}
	n, err := strconv.Atoi(size)
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("%w: bad vector size %q", ErrProtocol, size)
	}
	return server, n, nil
}

// MaxVectorBytes is the largest TMS or TDI vector the server accepts.
func (c *Client) MaxVectorBytes() int {
	return c.maxBytes
}

func (c *Client) Info() (jtag.AdapterInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := jtag.AdapterInfo{
		Name:         c.name,
		Vendor:       "Xilinx Virtual Cable",
		Firmware:     c.server,
		MinFrequency: 1,
		MaxFrequency: 100_000_000,
		Notes:        fmt.Sprintf("max vector %d bytes", c.maxBytes),
	}
	return info, nil
}

// Shift splits the request into vectors the server accepts. Every vector
// but the last is a whole number of bytes, so buffers are sliced directly.
func (c *Client) Shift(tms, tdi []byte, bits int) ([]byte, error) {
	nbytes, err := jtag.ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	tms = padded(tms, nbytes)
	tdi = padded(tdi, nbytes)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, erc.Errorf(erc.InvalidHif, "xvc shift", "client closed")
	}

	tdo := make([]byte, 0, nbytes)
	chunkBits := c.maxBytes * 8
	for done := 0; done < bits; done += chunkBits {
		n := bits - done
		if n > chunkBits {
			n = chunkBits
		}
		start := done / 8
		end := start + (n+7)/8
		out, err := c.shift(tms[start:end], tdi[start:end], n)
		if err != nil {
			return nil, err
		}
		tdo = append(tdo, out...)
	}
	return tdo, nil
}

func (c *Client) shift(tms, tdi []byte, bits int) ([]byte, error) {
	msg := make([]byte, 0, 10+2*len(tms))
	msg = append(msg, "shift:"...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(bits))
	msg = append(msg, tms...)
	msg = append(msg, tdi...)
	if _, err := c.conn.Write(msg); err != nil {
		return nil, &erc.Error{Code: erc.CmdSendFailed, Op: "xvc shift", Err: err}
	}
	tdo := make([]byte, len(tms))
	if _, err := io.ReadFull(c.rd, tdo); err != nil {
		return nil, &erc.Error{Code: erc.StsReceiveFailed, Op: "xvc shift", Err: err}
	}
	return tdo, nil
}

// ResetTAP clocks five TMS=1 cycles. XVC has no TRST line.
func (c *Client) ResetTAP(hard bool) error {
	if hard {
		return erc.Errorf(erc.NotSupported, "xvc reset", "%v", jtag.ErrUnsupported)
	}
	_, err := c.Shift([]byte{0x1F}, nil, 5)
	return err
}

// SetSpeed requests a TCK period. The server may round it.
func (c *Client) SetSpeed(hz int) error {
	if hz <= 0 {
		return erc.Errorf(erc.BadParameter, "xvc settck", "invalid frequency %dHz", hz)
	}
	period := uint32(1_000_000_000 / hz)
	if period == 0 {
		period = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return erc.Errorf(erc.InvalidHif, "xvc settck", "client closed")
	}
	msg := binary.LittleEndian.AppendUint32([]byte("settck:"), period)
	if _, err := c.conn.Write(msg); err != nil {
		return &erc.Error{Code: erc.CmdSendFailed, Op: "xvc settck", Err: err}
	}
	var reply [4]byte
	if _, err := io.ReadFull(c.rd, reply[:]); err != nil {
		return &erc.Error{Code: erc.StsReceiveFailed, Op: "xvc settck", Err: err}
	}
	c.periodNs = binary.LittleEndian.Uint32(reply[:])
	return nil
}

// PeriodNs returns the TCK period last confirmed by the server.
func (c *Client) PeriodNs() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.periodNs
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func padded(buf []byte, n int) []byte {
	if len(buf) >= n {
		return buf[:n]
	}
	out := make([]byte, n)
	copy(out, buf)
	return out
}

var _ jtag.Adapter = (*Client)(nil)
