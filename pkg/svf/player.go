package svf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

// ErrTDOMismatch is returned when captured TDO differs from the expected
// value under MASK.
var ErrTDOMismatch = errors.New("svf: TDO mismatch")

// Target is the chain an SVF program is played against. bscan.Session
// satisfies it.
type Target interface {
	State() tap.State
	GotoState(tap.State) error
	ScanIR(tdi []byte, bits int, end tap.State) ([]byte, error)
	ScanDR(tdi []byte, bits int, end tap.State) ([]byte, error)
	ClockTCK(cycles int, tms, tdi bool) error
}

// speedSetter and hardResetter are optional Target capabilities used by
// FREQUENCY and TRST.
type speedSetter interface {
	SetSpeed(hz int) error
}

type hardResetter interface {
	HardReset() error
}

// scanParams holds the sticky operands of one scan command kind.
type scanParams struct {
	length int
	tdi    []byte
	tdo    []byte
	mask   []byte
	smask  []byte
	hasTDO bool
}

// Player executes SVF commands against a Target.
type Player struct {
	Target Target

	// Progress, when set, is called after every command.
	Progress func(done, total int)
	Logger   *slog.Logger
	// Sleep waits out RUNTEST minimum times that cannot be converted to
	// clocks. Defaults to time.Sleep.
	Sleep func(time.Duration)

	endIR, endDR     tap.State
	runState, runEnd tap.State
	frequency        float64

	sir, sdr, hir, hdr, tir, tdr scanParams
}

// NewPlayer returns a player with the SVF default end states.
func NewPlayer(t Target) *Player {
	return &Player{
		Target:   t,
		endIR:    tap.StateRunTestIdle,
		endDR:    tap.StateRunTestIdle,
		runState: tap.StateRunTestIdle,
		runEnd:   tap.StateRunTestIdle,
	}
}

func (p *Player) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Play runs every command in f. Cancellation is checked between commands.
func (p *Player) Play(ctx context.Context, f *File) error {
	total := len(f.Commands)
	for i, cmd := range f.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.exec(cmd); err != nil {
			return fmt.Errorf("line %d: %w", cmd.Line(), err)
		}
		if p.Progress != nil {
			p.Progress(i+1, total)
		}
	}
	p.logger().Info("svf playback complete", "commands", total)
	return nil
}

func (p *Player) exec(cmd *Command) error {
	switch {
	case cmd.EndIR != nil:
		st, err := stableState(cmd.EndIR.State)
		if err != nil {
			return err
		}
		p.endIR = st
	case cmd.EndDR != nil:
		st, err := stableState(cmd.EndDR.State)
		if err != nil {
			return err
		}
		p.endDR = st
	case cmd.State != nil:
		return p.state(cmd.State)
	case cmd.RunTest != nil:
		return p.runTest(cmd.RunTest)
	case cmd.Frequency != nil:
		return p.setFrequency(cmd.Frequency)
	case cmd.TRST != nil:
		return p.trst(cmd.TRST)
	case cmd.Scan != nil:
		return p.scan(cmd.Scan)
	}
	return nil
}

func stableState(name string) (tap.State, error) {
	st, err := tap.ParseState(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if !st.IsStable() {
		return 0, fmt.Errorf("%w: %s is not a stable state", ErrSyntax, st)
	}
	return st, nil
}

func (p *Player) state(cmd *StateCmd) error {
	for i, name := range cmd.States {
		st, err := tap.ParseState(name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		if i == len(cmd.States)-1 && !st.IsStable() {
			return fmt.Errorf("%w: STATE must end in a stable state, got %s", ErrSyntax, st)
		}
		if err := p.Target.GotoState(st); err != nil {
			return err
		}
	}
	return nil
}

func (p *Player) runTest(cmd *RunTest) error {
	if cmd.RunState != "" {
		st, err := stableState(cmd.RunState)
		if err != nil {
			return err
		}
		p.runState, p.runEnd = st, st
	}
	if cmd.EndState != "" {
		st, err := stableState(cmd.EndState)
		if err != nil {
			return err
		}
		p.runEnd = st
	}

	var clocks int
	var minTime float64
	for _, q := range cmd.Timing {
		switch strings.ToUpper(q.Unit) {
		case "TCK":
			clocks = int(q.Value)
		case "SCK":
			// No system clock on a boundary-scan cable.
		case "SEC":
			minTime = q.Value
		default:
			return fmt.Errorf("%w: unknown RUNTEST unit %q", ErrSyntax, q.Unit)
		}
	}
	var sleep time.Duration
	if minTime > 0 {
		if p.frequency > 0 {
			if n := int(math.Ceil(minTime * p.frequency)); n > clocks {
				clocks = n
			}
		} else {
			sleep = time.Duration(minTime * float64(time.Second))
		}
	}

	if err := p.Target.GotoState(p.runState); err != nil {
		return err
	}
	if err := p.Target.ClockTCK(clocks, p.runState == tap.StateTestLogicReset, false); err != nil {
		return err
	}
	if sleep > 0 {
		if p.Sleep != nil {
			p.Sleep(sleep)
		} else {
			time.Sleep(sleep)
		}
	}
	if p.runEnd != p.runState {
		return p.Target.GotoState(p.runEnd)
	}
	return nil
}

func (p *Player) setFrequency(cmd *Frequency) error {
	if cmd.Hz == nil {
		p.frequency = 0
		return nil
	}
	p.frequency = *cmd.Hz
	if ss, ok := p.Target.(speedSetter); ok && p.frequency >= 1 {
		return ss.SetSpeed(int(p.frequency))
	}
	return nil
}

func (p *Player) trst(cmd *TRST) error {
	if strings.EqualFold(cmd.Mode, "ON") {
		if hr, ok := p.Target.(hardResetter); ok {
			return hr.HardReset()
		}
		p.logger().Warn("TRST ON ignored, target has no reset line")
	}
	return nil
}

func (p *Player) params(kind string) *scanParams {
	switch strings.ToUpper(kind) {
	case "SIR":
		return &p.sir
	case "SDR":
		return &p.sdr
	case "HIR":
		return &p.hir
	case "HDR":
		return &p.hdr
	case "TIR":
		return &p.tir
	case "TDR":
		return &p.tdr
	}
	return nil
}

// update applies a scan command's operands. TDI, MASK and SMASK persist
// while the length is unchanged; TDO is only checked when given.
func (sp *scanParams) update(cmd *Scan) error {
	if cmd.Length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrSyntax, cmd.Length)
	}
	changed := cmd.Length != sp.length
	sp.length = cmd.Length

	fields := map[string]string{}
	for _, f := range cmd.Fields {
		fields[strings.ToUpper(f.Name)] = f.Value
	}

	parse := func(name string) ([]byte, bool, error) {
		v, ok := fields[name]
		if !ok {
			return nil, false, nil
		}
		buf, err := parseHex(v, sp.length)
		if err != nil {
			return nil, false, fmt.Errorf("%s %s: %w", cmd.Kind, name, err)
		}
		return buf, true, nil
	}

	tdi, ok, err := parse("TDI")
	switch {
	case err != nil:
		return err
	case ok:
		sp.tdi = tdi
	case changed && sp.length > 0:
		return fmt.Errorf("%w: %s length changed to %d without TDI", ErrSyntax, cmd.Kind, sp.length)
	case sp.length == 0:
		sp.tdi = nil
	}

	for _, m := range []struct {
		name string
		dst  *[]byte
	}{{"MASK", &sp.mask}, {"SMASK", &sp.smask}} {
		buf, ok, err := parse(m.name)
		if err != nil {
			return err
		}
		if ok {
			*m.dst = buf
		} else if changed || *m.dst == nil {
			*m.dst = ones(sp.length)
		}
	}

	tdo, ok, err := parse("TDO")
	if err != nil {
		return err
	}
	sp.tdo, sp.hasTDO = tdo, ok
	return nil
}

// vector concatenates scan segments, first segment shifted first.
type vector struct {
	bits int
	tdi  []byte
	tdo  []byte
	care []byte
}

func (v *vector) append(sp *scanParams) {
	for k := 0; k < sp.length; k++ {
		pos := v.bits + k
		if need := bitrev.ByteLen(pos + 1); need > len(v.tdi) {
			v.tdi = append(v.tdi, 0)
			v.tdo = append(v.tdo, 0)
			v.care = append(v.care, 0)
		}
		if bitrev.Bit(sp.tdi, k, bitrev.LSBFirst) {
			bitrev.SetBit(v.tdi, pos, true, bitrev.LSBFirst)
		}
		if sp.hasTDO {
			if bitrev.Bit(sp.tdo, k, bitrev.LSBFirst) {
				bitrev.SetBit(v.tdo, pos, true, bitrev.LSBFirst)
			}
			if bitrev.Bit(sp.mask, k, bitrev.LSBFirst) {
				bitrev.SetBit(v.care, pos, true, bitrev.LSBFirst)
			}
		}
	}
	v.bits += sp.length
}

func (p *Player) scan(cmd *Scan) error {
	sp := p.params(cmd.Kind)
	if err := sp.update(cmd); err != nil {
		return err
	}

	var v vector
	var end tap.State
	var run func([]byte, int, tap.State) ([]byte, error)
	switch strings.ToUpper(cmd.Kind) {
	case "SIR":
		v.append(&p.hir)
		v.append(&p.sir)
		v.append(&p.tir)
		end, run = p.endIR, p.Target.ScanIR
	case "SDR":
		v.append(&p.hdr)
		v.append(&p.sdr)
		v.append(&p.tdr)
		end, run = p.endDR, p.Target.ScanDR
	default:
		// Header and trailer commands only update their operands.
		return nil
	}
	if v.bits == 0 {
		return nil
	}

	got, err := run(v.tdi, v.bits, end)
	if err != nil {
		return err
	}
	for k := 0; k < v.bits; k++ {
		if !bitrev.Bit(v.care, k, bitrev.LSBFirst) {
			continue
		}
		if bitrev.Bit(got, k, bitrev.LSBFirst) != bitrev.Bit(v.tdo, k, bitrev.LSBFirst) {
			return fmt.Errorf("%w: %s %d bits: got %s want %s mask %s", ErrTDOMismatch, strings.ToUpper(cmd.Kind), v.bits,
				formatHex(got, v.bits), formatHex(v.tdo, v.bits), formatHex(v.care, v.bits))
		}
	}
	return nil
}

// parseHex converts a parenthesized SVF hex payload, most significant digit
// first, into an LSB-first buffer of the given bit length.
func parseHex(s string, bits int) ([]byte, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	digits := strings.Join(strings.Fields(s), "")
	out := make([]byte, bitrev.ByteLen(bits))
	for i := 0; i < len(digits); i++ {
		v, err := strconv.ParseUint(digits[len(digits)-1-i:len(digits)-i], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: bad hex digit in %q", ErrSyntax, s)
		}
		for b := 0; b < 4; b++ {
			if v&(1<<uint(b)) == 0 {
				continue
			}
			k := 4*i + b
			if k >= bits {
				return nil, fmt.Errorf("%w: value %q wider than %d bits", ErrSyntax, digits, bits)
			}
			bitrev.SetBit(out, k, true, bitrev.LSBFirst)
		}
	}
	return out, nil
}

// formatHex renders the first bits bits of an LSB-first buffer as SVF hex.
func formatHex(buf []byte, bits int) string {
	digits := (bits + 3) / 4
	var sb strings.Builder
	for i := digits - 1; i >= 0; i-- {
		var v byte
		for b := 0; b < 4; b++ {
			k := 4*i + b
			if k < bits && k/8 < len(buf) && bitrev.Bit(buf, k, bitrev.LSBFirst) {
				v |= 1 << uint(b)
			}
		}
		sb.WriteString(strconv.FormatUint(uint64(v), 16))
	}
	return strings.ToUpper(sb.String())
}

func ones(bits int) []byte {
	out := make([]byte, bitrev.ByteLen(bits))
	for k := 0; k < bits; k++ {
		bitrev.SetBit(out, k, true, bitrev.LSBFirst)
	}
	return out
}
