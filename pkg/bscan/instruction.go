package bscan

import (
	"fmt"
	"strings"
)

// Family selects the instruction register layout of the target FPGA.
type Family uint8

const (
	FamilySpartan3 Family = iota
	FamilyVirtex
)

func (f Family) String() string {
	switch f {
	case FamilySpartan3:
		return "spartan3"
	case FamilyVirtex:
		return "virtex"
	default:
		return fmt.Sprintf("Family(%d)", f)
	}
}

// IRLength is the instruction register length of the FPGA in bits.
func (f Family) IRLength() int {
	if f == FamilyVirtex {
		return 10
	}
	return 6
}

// irValue is the full register value for a 6-bit opcode. Virtex parts
// expect the opcode followed by four 1 bits.
func (f Family) irValue(op uint8) uint32 {
	v := uint32(op & 0x3F)
	if f == FamilyVirtex {
		v |= 0xF << 6
	}
	return v
}

// ParseFamily resolves a family name such as "spartan3", "spartan-3" or
// "virtex".
func ParseFamily(name string) (Family, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "")) {
	case "spartan3", "s3":
		return FamilySpartan3, nil
	case "virtex", "virtex4", "v4":
		return FamilyVirtex, nil
	}
	return 0, fmt.Errorf("bscan: unknown family %q", name)
}

// Instruction is a Xilinx boundary-scan opcode. The values are the 6-bit
// codes loaded into the FPGA instruction register.
type Instruction uint8

const (
	InstructionExtest    Instruction = 0x00
	InstructionSample    Instruction = 0x01
	InstructionUser1     Instruction = 0x02
	InstructionUser2     Instruction = 0x03
	InstructionReadback  Instruction = 0x04
	InstructionConfigure Instruction = 0x05
	InstructionIntest    Instruction = 0x07
	InstructionUsercode  Instruction = 0x08
	InstructionIDCode    Instruction = 0x09
	InstructionUser3     Instruction = 0x22
	InstructionUser4     Instruction = 0x23
	InstructionBypass    Instruction = 0x3F

	// InstructionRaw marks an instruction register loaded by a raw IR scan
	// or by passing through Update-IR. It cannot be passed to SetInstruction.
	InstructionRaw Instruction = 0xFF
)

var instructionNames = map[Instruction]string{
	InstructionExtest:    "EXTEST",
	InstructionSample:    "SAMPLE",
	InstructionUser1:     "USER1",
	InstructionUser2:     "USER2",
	InstructionReadback:  "READBACK",
	InstructionConfigure: "CONFIGURE",
	InstructionIntest:    "INTEST",
	InstructionUsercode:  "USERCODE",
	InstructionIDCode:    "IDCODE",
	InstructionUser3:     "USER3",
	InstructionUser4:     "USER4",
	InstructionBypass:    "BYPASS",
	InstructionRaw:       "RAW",
}

func (i Instruction) String() string {
	if n, ok := instructionNames[i]; ok {
		return n
	}
	return fmt.Sprintf("Instruction(0x%02X)", uint8(i))
}

// Valid reports whether i is a named opcode that can be loaded.
func (i Instruction) Valid() bool {
	_, ok := instructionNames[i]
	return ok && i != InstructionRaw
}

// SupportedBy reports whether family f implements i.
func (i Instruction) SupportedBy(f Family) bool {
	if !i.Valid() {
		return false
	}
	switch i {
	case InstructionUser3, InstructionUser4:
		return f == FamilyVirtex
	}
	return true
}

// Instructions lists the loadable opcodes in ascending order.
func Instructions() []Instruction {
	return []Instruction{
		InstructionExtest, InstructionSample, InstructionUser1, InstructionUser2,
		InstructionReadback, InstructionConfigure, InstructionIntest,
		InstructionUsercode, InstructionIDCode, InstructionUser3,
		InstructionUser4, InstructionBypass,
	}
}

// ParseInstruction resolves an instruction name case-insensitively.
func ParseInstruction(name string) (Instruction, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	for _, i := range Instructions() {
		if instructionNames[i] == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedInstruction, name)
}
