package svf

import "github.com/alecthomas/participle/v2/lexer"

// File is a parsed SVF program.
type File struct {
	Commands []*Command `@@*`
}

// Command is one semicolon-terminated SVF statement.
type Command struct {
	Pos lexer.Position

	EndIR     *EndState  `(   "ENDIR" @@`
	EndDR     *EndState  `  | "ENDDR" @@`
	State     *StateCmd  `  | "STATE" @@`
	RunTest   *RunTest   `  | "RUNTEST" @@`
	Frequency *Frequency `  | @@`
	TRST      *TRST      `  | "TRST" @@`
	Scan      *Scan      `  | @@ ) ";"`
}

// EndState is the operand of ENDIR and ENDDR.
type EndState struct {
	State string `@Ident`
}

// StateCmd walks the TAP through the listed states.
type StateCmd struct {
	States []string `@Ident+`
}

// RunTest is RUNTEST [run_state] count TCK|SCK [min SEC] [MAXIMUM max SEC]
// [ENDSTATE end_state]. Counts and times share the Quantity form.
type RunTest struct {
	RunState string      `@Ident?`
	Timing   []*Quantity `@@+`
	Maximum  *Quantity   `( "MAXIMUM" @@ )?`
	EndState string      `( "ENDSTATE" @Ident )?`
}

// Quantity is a number followed by its unit.
type Quantity struct {
	Value float64 `@Number`
	Unit  string  `@Ident`
}

// Frequency sets the TCK rate. A bare FREQUENCY restores full speed.
type Frequency struct {
	Keyword string   `@"FREQUENCY"`
	Hz      *float64 `( @Number "HZ" )?`
}

// TRST drives the optional test reset line.
type TRST struct {
	Mode string `@( "ON" | "OFF" | "Z" | "ABSENT" )`
}

// Scan is SIR, SDR or one of the header/trailer commands.
type Scan struct {
	Kind   string   `@( "SIR" | "SDR" | "HIR" | "HDR" | "TIR" | "TDR" )`
	Length int      `@Number`
	Fields []*Field `@@*`
}

// Field is a TDI, TDO, MASK or SMASK payload.
type Field struct {
	Name  string `@( "TDI" | "TDO" | "MASK" | "SMASK" )`
	Value string `@Hex`
}

// Line returns the source line of the command.
func (c *Command) Line() int {
	return c.Pos.Line
}
