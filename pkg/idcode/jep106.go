package idcode

import "fmt"

// manufacturers lists the JEP106 vendors found on FPGA boards: programmable
// logic, configuration memories and the usual companion chips. Keys are the
// 11-bit code from the IDCODE, (bank-1)<<7 | ID.
var manufacturers = map[uint16]Manufacturer{
	0x001: {Name: "AMD", Abbreviation: "AMD"},
	0x009: {Name: "Intel", Abbreviation: "Intel"},
	0x00E: {Name: "Freescale (Motorola)", Abbreviation: "Freescale"},
	0x015: {Name: "NXP (Philips)", Abbreviation: "NXP"},
	0x017: {Name: "Texas Instruments", Abbreviation: "TI"},
	0x01F: {Name: "Atmel", Abbreviation: "Atmel"},
	0x020: {Name: "STMicroelectronics", Abbreviation: "STM"},
	0x021: {Name: "Lattice Semiconductor", Abbreviation: "Lattice"},
	0x029: {Name: "Microchip Technology", Abbreviation: "Microchip"},
	0x02C: {Name: "Micron Technology", Abbreviation: "Micron"},
	0x034: {Name: "Cypress", Abbreviation: "Cypress"},
	0x042: {Name: "Macronix", Abbreviation: "Macronix"},
	0x049: {Name: "Xilinx", Abbreviation: "Xilinx"},
	0x065: {Name: "Analog Devices", Abbreviation: "ADI"},
	0x06E: {Name: "Altera", Abbreviation: "Altera"},
	0x23B: {Name: "ARM", Abbreviation: "ARM"},
}

// LookupManufacturer returns the vendor for an 11-bit JEP106 code. Unknown
// codes get a placeholder carrying the bank and ID.
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	code &= 0x7FF
	if m, ok := manufacturers[code]; ok {
		m.Code = code
		return m, true
	}
	return Manufacturer{
		Code:         code,
		Name:         fmt.Sprintf("Unknown (bank %d, ID 0x%02X)", code>>7+1, code&0x7F),
		Abbreviation: "Unknown",
	}, false
}
