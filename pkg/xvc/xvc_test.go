package xvc

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/erc"
	"github.com/OpenTraceLab/bistio/pkg/jtag"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pipeClient serves srv on one end of an in-memory pipe and returns a client
// attached to the other.
func pipeClient(t *testing.T, srv *Server) *Client {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(ctx, serverSide) }()

	c, err := NewClient(clientSide, "pipe")
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-done
	})
	return c
}

func TestParseInfo(t *testing.T) {
	server, n, err := parseInfo("xvcServer_v1.0:2048\n")
	require.NoError(t, err)
	assert.Equal(t, "xvcServer_v1.0", server)
	assert.Equal(t, 2048, n)

	for _, bad := range []string{"", "hello\n", "xvcServer_v1.0:\n", "xvcServer_v1.0:-4\n", "xvcServer_v1.0:abc\n"} {
		_, _, err := parseInfo(bad)
		assert.ErrorIs(t, err, ErrProtocol, "%q", bad)
	}
}

func TestClientHandshake(t *testing.T) {
	chain, err := jtag.BuildSpartan3Board()
	require.NoError(t, err)
	c := pipeClient(t, &Server{Adapter: chain.Adapter(), MaxVectorBytes: 64, Logger: quietLogger()})

	assert.Equal(t, 64, c.MaxVectorBytes())
	info, err := c.Info()
	require.NoError(t, err)
	assert.Equal(t, "xvcServer_v1.0", info.Firmware)
}

func TestClientShiftEcho(t *testing.T) {
	sim := jtag.NewSimAdapter(jtag.AdapterInfo{Name: "echo"})
	c := pipeClient(t, &Server{Adapter: sim, Logger: quietLogger()})

	tdo, err := c.Shift(nil, []byte{0xA5, 0x03}, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA5, 0x03}, tdo)

	last := sim.LastShift()
	assert.Equal(t, 10, last.Bits)
	assert.Equal(t, []byte{0x00, 0x00}, last.TMS)
}

func TestClientSplitsLongVectors(t *testing.T) {
	sim := jtag.NewSimAdapter(jtag.AdapterInfo{Name: "echo"})
	c := pipeClient(t, &Server{Adapter: sim, MaxVectorBytes: 2, Logger: quietLogger()})

	tdi := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	tdo, err := c.Shift(nil, tdi, 37)
	require.NoError(t, err)
	assert.Equal(t, tdi, tdo)

	hist := sim.History()
	require.Len(t, hist, 3)
	assert.Equal(t, 16, hist[0].Bits)
	assert.Equal(t, 16, hist[1].Bits)
	assert.Equal(t, 5, hist[2].Bits)
}

func TestClientSetSpeed(t *testing.T) {
	sim := jtag.NewSimAdapter(jtag.AdapterInfo{Name: "echo"})
	c := pipeClient(t, &Server{Adapter: sim, Logger: quietLogger()})

	require.NoError(t, c.SetSpeed(10_000_000))
	assert.Equal(t, uint32(100), c.PeriodNs())
	assert.Equal(t, 10_000_000, sim.SpeedHz)

	assert.Equal(t, erc.BadParameter, erc.CodeOf(c.SetSpeed(0)))
}

func TestClientResetTAP(t *testing.T) {
	chain, err := jtag.BuildSpartan3Board()
	require.NoError(t, err)
	c := pipeClient(t, &Server{Adapter: chain.Adapter(), Logger: quietLogger()})

	chain.Clock(false, false)
	require.NoError(t, c.ResetTAP(false))
	assert.Equal(t, "TestLogicReset", chain.State().String())
	assert.Equal(t, erc.NotSupported, erc.CodeOf(c.ResetTAP(true)))
}

func TestClientClosed(t *testing.T) {
	sim := jtag.NewSimAdapter(jtag.AdapterInfo{Name: "echo"})
	c := pipeClient(t, &Server{Adapter: sim, Logger: quietLogger()})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err := c.Shift(nil, []byte{1}, 1)
	assert.Equal(t, erc.InvalidHif, erc.CodeOf(err))
}

func TestSessionOverXVC(t *testing.T) {
	chain, err := jtag.BuildSpartan3Board()
	require.NoError(t, err)
	c := pipeClient(t, &Server{Adapter: chain.Adapter(), Logger: quietLogger()})

	conn := &bscan.Connector{Open: func(context.Context) (jtag.Adapter, error) { return c, nil }}
	cfg := bscan.DefaultConfig()
	cfg.Logger = quietLogger()
	err = bscan.With(context.Background(), conn, cfg, func(s *bscan.Session) error {
		id, err := s.ReadIDCode()
		if err != nil {
			return err
		}
		assert.Equal(t, jtag.IDCodeXC3S1000, id)
		return nil
	})
	require.NoError(t, err)
}

func TestServerRejectsOversizedShift(t *testing.T) {
	sim := jtag.NewSimAdapter(jtag.AdapterInfo{Name: "echo"})
	srv := &Server{Adapter: sim, MaxVectorBytes: 1, Logger: quietLogger()}
	clientSide, serverSide := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(context.Background(), serverSide) }()

	msg := binary.LittleEndian.AppendUint32([]byte("shift:"), 16)
	_, err := clientSide.Write(msg)
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, ErrProtocol)
	clientSide.Close()
}

func TestServerRejectsShortTDO(t *testing.T) {
	sim := jtag.NewSimAdapter(jtag.AdapterInfo{Name: "short"})
	sim.OnShift = func(_, _ []byte, bits int) ([]byte, error) {
		return make([]byte, (bits+7)/8-1), nil
	}
	srv := &Server{Adapter: sim, Logger: quietLogger()}
	clientSide, serverSide := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(context.Background(), serverSide) }()

	msg := binary.LittleEndian.AppendUint32([]byte("shift:"), 16)
	msg = append(msg, 0x00, 0x00, 0xA5, 0x5A)
	_, err := clientSide.Write(msg)
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, ErrProtocol)
	clientSide.Close()
}

func TestServerRejectsUnknownCommand(t *testing.T) {
	srv := &Server{Adapter: jtag.NewSimAdapter(jtag.AdapterInfo{}), Logger: quietLogger()}
	clientSide, serverSide := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(context.Background(), serverSide) }()

	_, err := clientSide.Write([]byte("reboot:"))
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, ErrProtocol)
	clientSide.Close()
}

func TestServeTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	chain, err := jtag.BuildSpartan3Board()
	require.NoError(t, err)
	srv := &Server{Adapter: chain.Adapter(), Logger: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	c, err := Dial(dialCtx, ln.Addr().String())
	require.NoError(t, err)

	// A second client is turned away while the first holds the cable.
	other, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	other.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = other.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	other.Close()

	tdo, err := c.Shift([]byte{0x1F}, nil, 5)
	require.NoError(t, err)
	assert.Len(t, tdo, 1)
	require.NoError(t, c.Close())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), addr)
	require.Error(t, err)
	assert.Equal(t, erc.ConnectionFailed, erc.CodeOf(err))
}
