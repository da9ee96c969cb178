package xvc

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/grandcat/zeroconf"
	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/bistio/pkg/jtag"
)

// ServiceType is the DNS-SD service advertised for XVC servers.
const ServiceType = "_xvc._tcp"

// Server exposes a jtag.Adapter to XVC clients. A chain has a single TAP so
// only one client is served at a time; others are disconnected.
type Server struct {
	Adapter jtag.Adapter

	// MaxVectorBytes caps the TMS/TDI vector length of a single shift.
	MaxVectorBytes int

	// Advertise registers the server with mDNS under Instance.
	Advertise bool
	Instance  string

	Logger *slog.Logger

	busy atomic.Bool
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) maxBytes() int {
	if s.MaxVectorBytes <= 0 {
		return DefaultMaxVectorBytes
	}
	return s.MaxVectorBytes
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("xvc: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := s.logger()
	g, gctx := errgroup.WithContext(ctx)

	if s.Advertise {
		port := DefaultPort
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		instance := s.Instance
		if instance == "" {
			host, _ := os.Hostname()
			instance = "bistio-" + host
		}
		mdns, err := zeroconf.Register(instance, ServiceType, "local.", port,
			[]string{"txtvers=1", "version=" + Version, "maxvector=" + strconv.Itoa(s.maxBytes())}, nil)
		if err != nil {
			ln.Close()
			return fmt.Errorf("xvc: mDNS registration: %w", err)
		}
		defer mdns.Shutdown()
		log.Info("mDNS registered", "name", instance, "service", ServiceType, "port", port)
	}

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		log.Info("xvc server listening", "addr", ln.Addr().String())
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("xvc: accept: %w", err)
			}
			if !s.busy.CompareAndSwap(false, true) {
				log.Warn("rejecting client, cable in use", "remote", conn.RemoteAddr().String())
				conn.Close()
				continue
			}
			g.Go(func() error {
				defer s.busy.Store(false)
				remote := conn.RemoteAddr().String()
				log.Info("client connected", "remote", remote)
				if err := s.ServeConn(gctx, conn); err != nil {
					log.Warn("client session ended with error", "remote", remote, "err", err)
				} else {
					log.Info("client disconnected", "remote", remote)
				}
				return nil
			})
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ServeConn runs the XVC command loop on conn until the client disconnects
// or ctx is cancelled. Transport errors from the adapter end the session.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log := s.logger()
	rd := bufio.NewReader(conn)
	maxBytes := s.maxBytes()
	var periodNs uint32

	for {
		cmd, err := readCommand(rd)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch cmd {
		case "getinfo":
			if _, err := fmt.Fprintf(conn, "xvcServer_v%s:%d\n", Version, maxBytes); err != nil {
				return err
			}

		case "settck":
			var buf [4]byte
			if _, err := io.ReadFull(rd, buf[:]); err != nil {
				return err
			}
			req := binary.LittleEndian.Uint32(buf[:])
			if req > 0 {
				if err := s.Adapter.SetSpeed(int(1_000_000_000 / req)); err != nil {
					log.Warn("settck rejected", "period_ns", req, "err", err)
				} else {
					periodNs = req
				}
			}
			binary.LittleEndian.PutUint32(buf[:], periodNs)
			if _, err := conn.Write(buf[:]); err != nil {
				return err
			}

		case "shift":
			var buf [4]byte
			if _, err := io.ReadFull(rd, buf[:]); err != nil {
				return err
			}
			bits := int(binary.LittleEndian.Uint32(buf[:]))
			nbytes := (bits + 7) / 8
			if nbytes > maxBytes {
				return fmt.Errorf("%w: shift of %d bits exceeds %d byte vectors", ErrProtocol, bits, maxBytes)
			}
			vectors := make([]byte, 2*nbytes)
			if _, err := io.ReadFull(rd, vectors); err != nil {
				return err
			}
			if bits == 0 {
				continue
			}
			tdo, err := s.Adapter.Shift(vectors[:nbytes], vectors[nbytes:], bits)
			if err != nil {
				return fmt.Errorf("xvc: shift: %w", err)
			}
			if len(tdo) < nbytes {
				return fmt.Errorf("%w: adapter returned %d TDO bytes for %d bits", ErrProtocol, len(tdo), bits)
			}
			log.Debug("xvc shift", "bits", bits)
			if _, err := conn.Write(tdo[:nbytes]); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: unknown command %q", ErrProtocol, cmd)
		}
	}
}

// readCommand reads up to and including the ':' that ends every XVC
// command name.
func readCommand(rd *bufio.Reader) (string, error) {
	var name []byte
	for len(name) <= len("getinfo") {
		b, err := rd.ReadByte()
		if err != nil {
			if len(name) > 0 && errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == ':' {
			return string(name), nil
		}
		name = append(name, b)
	}
	return "", fmt.Errorf("%w: command %q too long", ErrProtocol, name)
}
