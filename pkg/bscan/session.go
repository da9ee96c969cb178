// Package bscan drives a boundary-scan chain through a jtag.Adapter. A
// Session tracks the TAP state and the loaded instruction so that data
// shifts are only issued where the chain can accept them.
package bscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/erc"
	"github.com/OpenTraceLab/bistio/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/bistio/pkg/jtag"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

var (
	// ErrProtocolState is returned by shift operations issued outside
	// Shift-DR or before an instruction is loaded. Nothing is clocked.
	ErrProtocolState = errors.New("bscan: operation not valid in current TAP state")

	// ErrUnsupportedInstruction is returned for unknown opcodes and for
	// opcodes the configured family does not implement.
	ErrUnsupportedInstruction = errors.New("bscan: unsupported instruction")

	// ErrSessionBroken is returned by every operation after the adapter
	// has failed. The session must be closed and reopened.
	ErrSessionBroken = errors.New("bscan: session broken by transport error")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bscan: session closed")
)

// Opener connects to a cable.
type Opener func(ctx context.Context) (jtag.Adapter, error)

// Config controls how a session addresses the chain.
type Config struct {
	Family Family

	// Attempts is the number of times Connect tries to open the cable.
	Attempts   int
	RetryDelay time.Duration

	// SpeedHz, when positive, is applied to the cable after opening.
	SpeedHz int

	// TrailingIRBits is the total IR length of devices between the FPGA and
	// TDO. They are loaded with BYPASS by SetInstruction.
	TrailingIRBits int
	// TrailingDevices is the number of those devices, each contributing one
	// bypass bit to data scans.
	TrailingDevices int

	// RequireInstruction refuses to enter Shift-DR until SetInstruction has
	// loaded an opcode.
	RequireInstruction bool

	Logger *slog.Logger
}

// DefaultConfig matches a Spartan-3 followed by one Platform Flash PROM.
func DefaultConfig() Config {
	return Config{
		Family:             FamilySpartan3,
		Attempts:           3,
		RetryDelay:         100 * time.Millisecond,
		TrailingIRBits:     8,
		TrailingDevices:    1,
		RequireInstruction: true,
	}
}

func (c Config) normalize() Config {
	if c.Attempts <= 0 {
		c.Attempts = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.TrailingIRBits < 0 {
		c.TrailingIRBits = 0
	}
	if c.TrailingDevices < 0 {
		c.TrailingDevices = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Connector opens sessions. Errors records the code of the last failure so
// callers can query it after Connect returns.
type Connector struct {
	Open   Opener
	Errors *erc.Tracker
}

func (c *Connector) tracker() *erc.Tracker {
	if c.Errors == nil {
		c.Errors = &erc.Tracker{}
	}
	return c.Errors
}

// Connect opens the cable, retrying up to cfg.Attempts times, and resets the
// TAP. A cable that cannot be opened is reported as erc.ConnectionFailed
// unless the opener supplied a more specific code.
func (c *Connector) Connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.normalize()
	errs := c.tracker()
	log := cfg.Logger

	if c.Open == nil {
		err := erc.Errorf(erc.ConnectionFailed, "connect", "no cable configured")
		errs.Record(err)
		return nil, err
	}

	var adapter jtag.Adapter
	err := retry.Do(func() error {
		a, err := c.Open(ctx)
		if err != nil {
			return err
		}
		adapter = a
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.Attempts)),
		retry.Delay(cfg.RetryDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("cable open failed, retrying", "attempt", n+1, "err", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if code := erc.CodeOf(err); code == erc.Unknown || code == erc.NoError {
			err = &erc.Error{Code: erc.ConnectionFailed, Op: "connect", Err: err}
		}
		errs.Record(err)
		return nil, err
	}

	s := &Session{
		adapter: adapter,
		cfg:     cfg,
		tap:     tap.NewStateMachine(),
		errs:    errs,
		log:     log,
	}

	if cfg.SpeedHz > 0 {
		if err := adapter.SetSpeed(cfg.SpeedHz); err != nil {
			errs.Record(err)
			adapter.Close()
			return nil, fmt.Errorf("bscan: set speed: %w", err)
		}
	}

	s.mu.Lock()
	err = s.reset()
	s.mu.Unlock()
	if err != nil {
		adapter.Close()
		return nil, err
	}

	if info, err := adapter.Info(); err == nil {
		log.Info("cable connected", "adapter", info.Name, "family", cfg.Family)
	}
	errs.Clear()
	return s, nil
}

// With connects, runs fn and closes the session on every exit path.
func With(ctx context.Context, c *Connector, cfg Config, fn func(*Session) error) (err error) {
	s, err := c.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

// Session is an open connection to one scan chain. Calls are serialized.
type Session struct {
	mu      sync.Mutex
	adapter jtag.Adapter
	cfg     Config
	tap     *tap.StateMachine
	errs    *erc.Tracker
	log     *slog.Logger

	instr    Instruction
	hasInstr bool

	// irScan is set while setInstruction or ScanIR clocks the IR chain.
	// irPending records that such a scan shifted data the next Update-IR
	// latches.
	irScan    bool
	irPending bool

	broken error
	closed bool
}

// State returns the tracked TAP state.
func (s *Session) State() tap.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tap.State()
}

// Family returns the configured FPGA family.
func (s *Session) Family() Family {
	return s.cfg.Family
}

// Instruction returns the active instruction. The second result is false
// when none is loaded.
func (s *Session) Instruction() (Instruction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instr, s.hasInstr
}

// LastError returns the code of the most recent failure.
func (s *Session) LastError() erc.Code {
	return s.errs.Last()
}

// Adapter exposes the underlying cable.
func (s *Session) Adapter() jtag.Adapter {
	return s.adapter
}

// Close disconnects the cable. Repeated calls return nil.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.hasInstr = false
	if err := s.adapter.Close(); err != nil {
		s.errs.Record(err)
		return fmt.Errorf("bscan: close: %w", err)
	}
	s.log.Info("cable disconnected")
	return nil
}

func (s *Session) usable() error {
	if s.closed {
		return ErrClosed
	}
	if s.broken != nil {
		return fmt.Errorf("%w: %w", ErrSessionBroken, s.broken)
	}
	return nil
}

// transfer clocks len(tms) cycles and returns the sampled TDO bits. The
// tracked state and instruction follow the clocks.
func (s *Session) transfer(op string, tms, tdi []bool) ([]bool, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if len(tms) == 0 {
		return nil, nil
	}
	n := len(tms)
	tdo, err := s.adapter.Shift(bitrev.Pack(tms, bitrev.LSBFirst), bitrev.Pack(tdi, bitrev.LSBFirst), n)
	if err == nil && len(tdo) < bitrev.ByteLen(n) {
		err = erc.Errorf(erc.StsReceiveFailed, op, "short TDO buffer: %d bytes for %d bits", len(tdo), n)
	}
	if err != nil {
		return nil, s.fail(op, err)
	}

	from := s.tap.State()
	for _, bit := range tms {
		if s.tap.State() == tap.StateShiftIR && s.irScan {
			s.irPending = true
		}
		switch s.tap.Clock(bit) {
		case tap.StateTestLogicReset:
			s.hasInstr, s.irPending = false, false
		case tap.StateCaptureIR:
			s.irPending = false
		case tap.StateUpdateIR:
			// Without a requested IR scan the register latches the
			// Capture-IR pattern, which selects nothing known.
			s.instr, s.hasInstr = InstructionRaw, s.irPending
			s.irPending = false
		}
	}
	s.log.Debug("tap traffic", "op", op, "bits", n, "from", from, "to", s.tap.State())
	return bitrev.Unpack(tdo, n, bitrev.LSBFirst), nil
}

// fail marks the session broken after a transport error.
func (s *Session) fail(op string, err error) error {
	s.broken = err
	s.hasInstr, s.irPending = false, false
	s.errs.Record(err)
	s.log.Error("transport failure", "op", op, "err", err)
	return fmt.Errorf("bscan: %s: %w", op, err)
}

// reset clocks TMS high ResetClocks times, which reaches Test-Logic-Reset
// from any state.
func (s *Session) reset() error {
	tms := make([]bool, tap.ResetClocks)
	for i := range tms {
		tms[i] = true
	}
	_, err := s.transfer("reset", tms, make([]bool, len(tms)))
	return err
}

// drShiftState reports whether data moves, or can move, through the
// selected data register in st.
func drShiftState(st tap.State) bool {
	switch st {
	case tap.StateShiftDR, tap.StateExit1DR, tap.StatePauseDR, tap.StateExit2DR:
		return true
	}
	return false
}

// GotoState moves the TAP along the shortest path to target with TDI low.
// TestLogicReset always clocks the reset sequence.
func (s *Session) GotoState(target tap.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotoState(target)
}

func (s *Session) gotoState(target tap.State) error {
	if err := s.usable(); err != nil {
		return err
	}
	if !target.Valid() {
		return fmt.Errorf("%w: invalid state %d", tap.ErrInvalidTransition, target)
	}
	if target == tap.StateTestLogicReset {
		return s.reset()
	}
	if s.cfg.RequireInstruction && !s.hasInstr && drShiftState(target) {
		return fmt.Errorf("%w: %s requires a loaded instruction", tap.ErrInvalidTransition, target)
	}
	seq, err := tap.Path(s.tap.State(), target)
	if err != nil {
		return err
	}
	_, err = s.transfer("goto "+target.String(), seq.TMS, make([]bool, len(seq.TMS)))
	return err
}

// SetInstruction loads instr into the FPGA and BYPASS into the trailing
// devices, leaving the TAP in Run-Test/Idle.
func (s *Session) SetInstruction(instr Instruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setInstruction(instr)
}

func (s *Session) setInstruction(instr Instruction) error {
	if err := s.usable(); err != nil {
		return err
	}
	if !instr.SupportedBy(s.cfg.Family) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedInstruction, instr, s.cfg.Family)
	}

	toShift, err := tap.Path(s.tap.State(), tap.StateShiftIR)
	if err != nil {
		return err
	}
	tms := append([]bool(nil), toShift.TMS...)
	tdi := make([]bool, len(tms))

	for i := 0; i < s.cfg.TrailingIRBits; i++ {
		tms = append(tms, false)
		tdi = append(tdi, true)
	}
	irLen := s.cfg.Family.IRLength()
	value := s.cfg.Family.irValue(uint8(instr))
	for i := 0; i < irLen; i++ {
		tms = append(tms, i == irLen-1)
		tdi = append(tdi, value&(1<<uint(i)) != 0)
	}
	// Exit1-IR -> Update-IR -> Run-Test/Idle
	tms = append(tms, true, false)
	tdi = append(tdi, false, false)

	s.irScan = true
	_, err = s.transfer("set instruction "+instr.String(), tms, tdi)
	s.irScan = false
	if err != nil {
		return err
	}
	s.instr, s.hasInstr = instr, true
	return nil
}

// ReadIDCode loads IDCODE and returns the FPGA's 32-bit identifier,
// skipping the bypass bits of the trailing devices. The TAP is left in
// Run-Test/Idle.
func (s *Session) ReadIDCode() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setInstruction(InstructionIDCode); err != nil {
		return 0, err
	}
	if err := s.gotoState(tap.StateShiftDR); err != nil {
		return 0, err
	}
	skip := s.cfg.TrailingDevices
	out, err := s.shiftDR("read idcode", make([]bool, skip+32), true)
	if err != nil {
		return 0, err
	}
	var id uint32
	for i, b := range out[skip:] {
		if b {
			id |= 1 << uint(i)
		}
	}
	if err := s.gotoState(tap.StateRunTestIdle); err != nil {
		return 0, err
	}
	return id, nil
}

// Device reads the IDCODE and looks the part up in the device database.
func (s *Session) Device() (deviceinfo.DeviceInfo, error) {
	id, err := s.ReadIDCode()
	if err != nil {
		return deviceinfo.DeviceInfo{}, err
	}
	return deviceinfo.Lookup(id), nil
}

// LastError returns the code of the most recent Connect failure.
func (c *Connector) LastError() erc.Code {
	return c.tracker().Last()
}

// SetSpeed changes the TCK frequency. A rejected speed does not break the
// session.
func (s *Session) SetSpeed(hz int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.adapter.SetSpeed(hz); err != nil {
		s.errs.Record(err)
		return fmt.Errorf("bscan: set speed: %w", err)
	}
	return nil
}

// HardReset pulses the cable's reset line, then clocks the TMS reset
// sequence. Not every cable wires TRST, so the clocks are what guarantee
// Test-Logic-Reset. No instruction is loaded afterwards.
func (s *Session) HardReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.adapter.ResetTAP(true); err != nil {
		return s.fail("hard reset", err)
	}
	s.hasInstr = false
	return s.reset()
}
