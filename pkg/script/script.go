// Package script runs Starlark programs against a boundary-scan session.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/bscan"
	"github.com/OpenTraceLab/bistio/pkg/erc"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

// ErrNoSession is returned by chain builtins when the runner has no session.
var ErrNoSession = errors.New("script: no session attached")

// Runner executes scripts. Session may be nil for scripts that only use the
// bit and error-code helpers.
type Runner struct {
	Session *bscan.Session
	Stdout  io.Writer
	Logger  *slog.Logger
}

// Run executes src (a filename, string or []byte as accepted by Starlark)
// and returns the script's globals. Cancelling ctx stops the script at the
// next Starlark step.
func (r *Runner) Run(ctx context.Context, filename string, src any) (starlark.StringDict, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	out := r.Stdout
	if out == nil {
		out = io.Discard
	}

	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(out, msg)
		},
	}
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	opts := syntax.FileOptions{TopLevelControl: true, While: true, Set: true}
	log.Debug("running script", "file", filename)
	globals, err := starlark.ExecFileOptions(&opts, thread, filename, src, r.predeclared())
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			log.Debug("script failed", "file", filename, "backtrace", evalErr.Backtrace())
		}
		return globals, fmt.Errorf("script: %w", err)
	}
	return globals, nil
}

func (r *Runner) predeclared() starlark.StringDict {
	builtins := map[string]func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error){
		"reset":           r.reset,
		"goto":            r.gotoState,
		"state":           r.state,
		"set_instruction": r.setInstruction,
		"shift_bit":       r.shiftBit,
		"shift_binary":    r.shiftBinary,
		"clock":           r.clock,
		"read_idcode":     r.readIDCode,
		"last_error":      r.lastError,
		"reverse_bits":    reverseBits,
		"reverse_byte":    reverseByte,
		"error_info":      errorInfo,
	}
	dict := starlark.StringDict{}
	for name, fn := range builtins {
		dict[name] = starlark.NewBuiltin(name, fn)
	}
	return dict
}

func (r *Runner) session(b *starlark.Builtin) (*bscan.Session, error) {
	if r.Session == nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), ErrNoSession)
	}
	return r.Session, nil
}

func (r *Runner) reset(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	return starlark.None, s.GotoState(tap.StateTestLogicReset)
}

func (r *Runner) gotoState(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "state", &name); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	st, err := tap.ParseState(name)
	if err != nil {
		return nil, err
	}
	return starlark.None, s.GotoState(st)
}

func (r *Runner) state(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	return starlark.String(s.State().String()), nil
}

func (r *Runner) setInstruction(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "instruction", &name); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	instr, err := bscan.ParseInstruction(name)
	if err != nil {
		return nil, err
	}
	return starlark.None, s.SetInstruction(instr)
}

func (r *Runner) shiftBit(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var tdi, last bool
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "tdi", &tdi, "last?", &last); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	tdo, err := s.ShiftBit(tdi, last)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(tdo), nil
}

func (r *Runner) shiftBinary(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var bits string
	var last bool
	msbFirst := true
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "bits", &bits, "last?", &last, "msb_first?", &msbFirst); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	order := bitrev.MSBFirst
	if !msbFirst {
		order = bitrev.LSBFirst
	}
	out, err := s.ShiftBinary(bits, last, bscan.WithOrder(order))
	if err != nil {
		return nil, err
	}
	return byteList(out), nil
}

func (r *Runner) clock(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cycles int
	var tms, tdi bool
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cycles", &cycles, "tms?", &tms, "tdi?", &tdi); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	return starlark.None, s.ClockTCK(cycles, tms, tdi)
}

func (r *Runner) readIDCode(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	id, err := s.ReadIDCode()
	if err != nil {
		return nil, err
	}
	return starlark.MakeUint64(uint64(id)), nil
}

func (r *Runner) lastError(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	s, err := r.session(b)
	if err != nil {
		return nil, err
	}
	return starlark.MakeInt(int(s.LastError())), nil
}

func reverseBits(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var list *starlark.List
	var n int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &list, "n", &n); err != nil {
		return nil, err
	}
	buf, err := listBytes(list)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if n < 0 || n > 8*len(buf) {
		return nil, fmt.Errorf("%s: bit count %d out of range for %d bytes", b.Name(), n, len(buf))
	}
	return byteList(bitrev.ReverseBits(buf, n)), nil
}

func reverseByte(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "b", &v); err != nil {
		return nil, err
	}
	if v < 0 || v > 0xFF {
		return nil, fmt.Errorf("%s: %d is not a byte", b.Name(), v)
	}
	return starlark.MakeInt(int(bitrev.ReverseByte(byte(v)))), nil
}

func errorInfo(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var code int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "code", &code); err != nil {
		return nil, err
	}
	rec, err := erc.Lookup(erc.Code(code))
	if err != nil {
		return nil, err
	}
	d := starlark.NewDict(4)
	d.SetKey(starlark.String("code"), starlark.MakeInt(int(rec.Code)))
	d.SetKey(starlark.String("name"), starlark.String(rec.Name))
	d.SetKey(starlark.String("description"), starlark.String(rec.Description))
	d.SetKey(starlark.String("category"), starlark.String(rec.Category.String()))
	return d, nil
}

func byteList(buf []byte) *starlark.List {
	elems := make([]starlark.Value, len(buf))
	for i, v := range buf {
		elems[i] = starlark.MakeInt(int(v))
	}
	return starlark.NewList(elems)
}

func listBytes(list *starlark.List) ([]byte, error) {
	buf := make([]byte, list.Len())
	for i := range buf {
		v, err := starlark.AsInt32(list.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if v < 0 || v > 0xFF {
			return nil, fmt.Errorf("element %d: %d is not a byte", i, v)
		}
		buf[i] = byte(v)
	}
	return buf, nil
}
