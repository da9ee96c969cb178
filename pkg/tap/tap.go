// Package tap models the IEEE 1149.1 TAP controller. It performs no I/O; it
// produces the TMS sequences a cable must clock to move between states.
package tap

import (
	"errors"
	"fmt"
	"strings"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

// ResetClocks is the number of TMS=1 cycles Reset applies. Five is enough
// from any state.
const ResetClocks = 5

// ErrInvalidTransition is returned when a requested target is not a TAP state
// or cannot be reached under the caller's policy.
var ErrInvalidTransition = errors.New("tap: invalid transition")

var stateNames = [numStates]string{
	StateTestLogicReset: "TestLogicReset",
	StateRunTestIdle:    "RunTestIdle",
	StateSelectDRScan:   "SelectDRScan",
	StateCaptureDR:      "CaptureDR",
	StateShiftDR:        "ShiftDR",
	StateExit1DR:        "Exit1DR",
	StatePauseDR:        "PauseDR",
	StateExit2DR:        "Exit2DR",
	StateUpdateDR:       "UpdateDR",
	StateSelectIRScan:   "SelectIRScan",
	StateCaptureIR:      "CaptureIR",
	StateShiftIR:        "ShiftIR",
	StateExit1IR:        "Exit1IR",
	StatePauseIR:        "PauseIR",
	StateExit2IR:        "Exit2IR",
	StateUpdateIR:       "UpdateIR",
}

// aliases accepted by ParseState in addition to the canonical names. The
// short forms are the SVF stable-state names.
var aliases = map[string]State{
	"RESET":     StateTestLogicReset,
	"TLR":       StateTestLogicReset,
	"IDLE":      StateRunTestIdle,
	"RTI":       StateRunTestIdle,
	"DRSELECT":  StateSelectDRScan,
	"DRCAPTURE": StateCaptureDR,
	"DRSHIFT":   StateShiftDR,
	"DR_SHIFT":  StateShiftDR,
	"DREXIT1":   StateExit1DR,
	"DR_EXIT1":  StateExit1DR,
	"DRPAUSE":   StatePauseDR,
	"DREXIT2":   StateExit2DR,
	"DRUPDATE":  StateUpdateDR,
	"IRSELECT":  StateSelectIRScan,
	"IRCAPTURE": StateCaptureIR,
	"IRSHIFT":   StateShiftIR,
	"IR_SHIFT":  StateShiftIR,
	"IREXIT1":   StateExit1IR,
	"IR_EXIT1":  StateExit1IR,
	"IRPAUSE":   StatePauseIR,
	"IREXIT2":   StateExit2IR,
	"IRUPDATE":  StateUpdateIR,
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Valid reports whether s is one of the 16 TAP states.
func (s State) Valid() bool {
	return s < numStates
}

// IsShift reports whether TDI is shifted into a register in s.
func (s State) IsShift() bool {
	return s == StateShiftDR || s == StateShiftIR
}

// IsIR reports whether s belongs to the instruction-register column.
func (s State) IsIR() bool {
	return s >= StateSelectIRScan && s <= StateUpdateIR
}

// IsDR reports whether s belongs to the data-register column.
func (s State) IsDR() bool {
	return s >= StateSelectDRScan && s <= StateUpdateDR
}

// IsStable reports whether the TAP can remain in s while TMS is held.
func (s State) IsStable() bool {
	switch s {
	case StateTestLogicReset, StateRunTestIdle, StatePauseDR, StatePauseIR:
		return true
	}
	return false
}

// ParseState resolves a state name case-insensitively. Unknown names are
// rejected with ErrInvalidTransition.
func ParseState(name string) (State, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stateNames {
		if strings.ToUpper(n) == key {
			return State(i), nil
		}
	}
	if s, ok := aliases[key]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, name)
}

// States lists all TAP states in enum order.
func States() []State {
	out := make([]State, numStates)
	for i := range out {
		out[i] = State(i)
	}
	return out
}

// Sequence captures the TMS drive pattern and the sequence of states that result
// from applying that pattern to the TAP controller.
type Sequence struct {
	TMS    []bool
	States []State
}

// Len returns the number of TCK cycles in the sequence.
func (s Sequence) Len() int { return len(s.TMS) }

type stateTransitions struct {
	onZero State
	onOne  State
}

var transitions = [numStates]stateTransitions{
	StateTestLogicReset: {onZero: StateRunTestIdle, onOne: StateTestLogicReset},
	StateRunTestIdle:    {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
	StateSelectDRScan:   {onZero: StateCaptureDR, onOne: StateSelectIRScan},
	StateCaptureDR:      {onZero: StateShiftDR, onOne: StateExit1DR},
	StateShiftDR:        {onZero: StateShiftDR, onOne: StateExit1DR},
	StateExit1DR:        {onZero: StatePauseDR, onOne: StateUpdateDR},
	StatePauseDR:        {onZero: StatePauseDR, onOne: StateExit2DR},
	StateExit2DR:        {onZero: StateShiftDR, onOne: StateUpdateDR},
	StateUpdateDR:       {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
	StateSelectIRScan:   {onZero: StateCaptureIR, onOne: StateTestLogicReset},
	StateCaptureIR:      {onZero: StateShiftIR, onOne: StateExit1IR},
	StateShiftIR:        {onZero: StateShiftIR, onOne: StateExit1IR},
	StateExit1IR:        {onZero: StatePauseIR, onOne: StateUpdateIR},
	StatePauseIR:        {onZero: StatePauseIR, onOne: StateExit2IR},
	StateExit2IR:        {onZero: StateShiftIR, onOne: StateUpdateIR},
	StateUpdateIR:       {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
}

// NextState returns the next TAP state after clocking TCK with the provided TMS
// value. It panics if an invalid state is supplied, which should never happen
// when interacting through the exported API.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	row := transitions[current]
	if tms {
		return row.onOne
	}
	return row.onZero
}

// StateMachine tracks the TAP controller state locally. It does not perform any
// I/O; instead it produces the sequences of TMS bits needed so a hardware
// adapter can be instructed separately.
type StateMachine struct {
	state State
}

// NewStateMachine creates a TAP state machine initialized to Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the current TAP state tracked by the machine.
func (m *StateMachine) State() State {
	return m.state
}

// Clock advances the machine one TCK cycle with the provided TMS bit and
// returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	next := NextState(m.state, tms)
	m.state = next
	return next
}

// Force sets the tracked state without clocking. It is used when the TAP
// is known to have moved by other means, such as a TRST pulse.
func (m *StateMachine) Force(s State) error {
	if !s.Valid() {
		return fmt.Errorf("%w: invalid state %d", ErrInvalidTransition, s)
	}
	m.state = s
	return nil
}

// Apply clocks every TMS bit in order and returns the final state.
func (m *StateMachine) Apply(tms []bool) State {
	for _, bit := range tms {
		m.Clock(bit)
	}
	return m.state
}

// Reset clocks ResetClocks consecutive TMS=1 cycles, even when the machine
// already believes it is in Test-Logic-Reset. It returns the sequence so it
// can be forwarded to a hardware adapter.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{
		TMS:    make([]bool, ResetClocks),
		States: make([]State, ResetClocks+1),
	}
	seq.States[0] = m.state
	for i := 0; i < ResetClocks; i++ {
		seq.TMS[i] = true
		seq.States[i+1] = m.Clock(true)
	}
	return seq
}

// GoTo computes the minimal sequence of TMS values needed to reach the target
// state from the current state. It updates the machine as a side effect and
// returns the generated sequence.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	path, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	m.Apply(path.TMS)
	return path, nil
}

// Path returns the shortest TMS sequence from one state to another without
// touching any machine. Ties are broken by preferring TMS=0.
func Path(from, to State) (Sequence, error) {
	if !from.Valid() {
		return Sequence{}, fmt.Errorf("%w: invalid start state %d", ErrInvalidTransition, from)
	}
	if !to.Valid() {
		return Sequence{}, fmt.Errorf("%w: invalid target state %d", ErrInvalidTransition, to)
	}
	seq := paths[from][to]
	return Sequence{
		TMS:    append([]bool(nil), seq.TMS...),
		States: append([]State(nil), seq.States...),
	}, nil
}

var paths = func() (table [numStates][numStates]Sequence) {
	for from := State(0); from < numStates; from++ {
		for to := State(0); to < numStates; to++ {
			seq, err := computePath(from, to)
			if err != nil {
				panic(err)
			}
			table[from][to] = seq
		}
	}
	return table
}()

// computePath uses BFS across the TAP state diagram to find the shortest set of
// transitions between two states.
func computePath(from, to State) (Sequence, error) {
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	type node struct {
		state  State
		tms    []bool
		states []State
	}

	queue := []node{{
		state:  from,
		tms:    nil,
		states: []State{from},
	}}
	var visited [numStates]bool
	visited[from] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, bit := range []bool{false, true} {
			next := NextState(current.state, bit)
			if visited[next] {
				continue
			}

			newTMS := append(append([]bool{}, current.tms...), bit)
			newStates := append(append([]State{}, current.states...), next)

			if next == to {
				return Sequence{
					TMS:    newTMS,
					States: newStates,
				}, nil
			}

			visited[next] = true
			queue = append(queue, node{
				state:  next,
				tms:    newTMS,
				states: newStates,
			})
		}
	}

	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}
