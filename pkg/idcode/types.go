// Package idcode decodes IEEE 1149.1 device identification registers.
package idcode

import "fmt"

// IDCode is a decoded 32-bit device identification register.
type IDCode struct {
	Raw              uint32
	Version          uint8  // bits 31:28
	PartNumber       uint16 // bits 27:12
	ManufacturerCode uint16 // bits 11:1, JEP106 bank and ID
}

// Bank is the JEP106 bank number (continuation codes plus one).
func (id IDCode) Bank() int {
	return int(id.ManufacturerCode>>7) + 1
}

// Valid reports whether Raw looks like an IDCODE: the marker bit is set and
// the manufacturer is not the reserved 0x7F pattern produced by a floating
// TDO.
func (id IDCode) Valid() bool {
	return id.Raw&1 == 1 && id.ManufacturerCode&0x7F != 0x7F
}

func (id IDCode) String() string {
	return fmt.Sprintf("0x%08X (ver %d, part 0x%04X, mfr 0x%03X)",
		id.Raw, id.Version, id.PartNumber, id.ManufacturerCode)
}

// Manufacturer is a JEP106 vendor.
type Manufacturer struct {
	Code         uint16 // 11-bit code as found in the IDCODE
	Name         string
	Abbreviation string
}
