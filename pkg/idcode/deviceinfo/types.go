// Package deviceinfo identifies the parts found on FPGA board scan chains.
package deviceinfo

import "github.com/OpenTraceLab/bistio/pkg/idcode"

// DeviceInfo describes a part identified by its IDCODE.
type DeviceInfo struct {
	IDCode       idcode.IDCode
	Manufacturer idcode.Manufacturer

	// Known is false when the part number has no database entry.
	Known bool

	Name        string // "XC3S1000"
	Family      string // "Spartan-3"
	Description string

	IsFPGA bool
	IsPROM bool

	// IRLength is the instruction register length in bits, 0 if unknown.
	IRLength     int
	DatasheetURL string
}

func (d DeviceInfo) String() string {
	return d.Manufacturer.Abbreviation + " " + d.Name
}
