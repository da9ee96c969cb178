package deviceinfo

// Xilinx FPGAs and configuration PROMs
func init() {
	const xilinx = 0x049

	spartan3 := []struct {
		part uint16
		name string
	}{
		{0x140D, "XC3S50"},
		{0x1414, "XC3S200"},
		{0x141C, "XC3S400"},
		{0x1428, "XC3S1000"},
		{0x1434, "XC3S1500"},
		{0x1440, "XC3S2000"},
		{0x1448, "XC3S4000"},
		{0x1450, "XC3S5000"},
	}
	for _, d := range spartan3 {
		register(key{ManufacturerCode: xilinx, PartNumber: d.part}, DeviceInfo{
			Name:         d.name,
			Family:       "Spartan-3",
			Description:  "Spartan-3 FPGA",
			IsFPGA:       true,
			IRLength:     6,
			DatasheetURL: "https://docs.amd.com/v/u/en-US/ds099",
		})
	}

	register(key{ManufacturerCode: xilinx, PartNumber: 0x1658}, DeviceInfo{
		Name:        "XC4VLX15",
		Family:      "Virtex-4",
		Description: "Virtex-4 LX FPGA",
		IsFPGA:      true,
		IRLength:    10,
	})
	register(key{ManufacturerCode: xilinx, PartNumber: 0x167C}, DeviceInfo{
		Name:        "XC4VLX25",
		Family:      "Virtex-4",
		Description: "Virtex-4 LX FPGA",
		IsFPGA:      true,
		IRLength:    10,
	})

	proms := []struct {
		part uint16
		name string
	}{
		{0x5044, "XCF01S"},
		{0x5045, "XCF02S"},
		{0x5046, "XCF04S"},
	}
	for _, d := range proms {
		register(key{ManufacturerCode: xilinx, PartNumber: d.part}, DeviceInfo{
			Name:        d.name,
			Family:      "Platform Flash",
			Description: "In-system programmable configuration PROM",
			IsPROM:      true,
			IRLength:    8,
		})
	}
}
