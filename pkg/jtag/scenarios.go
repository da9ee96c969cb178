package jtag

// IDCODEs of the parts used by the predefined scenarios.
const (
	IDCodeXC3S200  uint32 = 0x01414093
	IDCodeXC3S1000 uint32 = 0x01428093
	IDCodeXC4VLX25 uint32 = 0x0167C093
	IDCodeXCF04S   uint32 = 0x05046093
)

// Xilinx opcodes shared by Spartan-3 and (padded) Virtex parts.
const (
	xilinxUser1     = 0x02
	xilinxUser2     = 0x03
	xilinxIDCode    = 0x09
	xilinxUser3     = 0x22
	xilinxUser4     = 0x23
	virtexPadding   = 0x3C0
	platformFlashIR = 8
	platformFlashID = 0xFE
)

// ScenarioBuilder assembles a chain from TDI to TDO.
type ScenarioBuilder struct {
	devices []SimDevice
}

// NewScenarioBuilder creates an empty builder.
func NewScenarioBuilder() *ScenarioBuilder {
	return &ScenarioBuilder{}
}

// AddDevice appends dev to the TDO end of the chain.
func (sb *ScenarioBuilder) AddDevice(dev SimDevice) *ScenarioBuilder {
	sb.devices = append(sb.devices, dev)
	return sb
}

// AddSpartan3 appends a Spartan-3 FPGA whose USER1/USER2 registers are
// userBits long.
func (sb *ScenarioBuilder) AddSpartan3(name string, idcode uint32, userBits int) *ScenarioBuilder {
	return sb.AddDevice(SimDevice{
		Name:         name,
		IDCode:       idcode,
		IRLength:     6,
		IDCodeOpcode: xilinxIDCode,
		Registers: map[uint32]*SimRegister{
			xilinxUser1: {Name: "USER1", Length: userBits},
			xilinxUser2: {Name: "USER2", Length: userBits},
		},
	})
}

// AddVirtex appends a Virtex FPGA with a 10-bit IR and four user registers.
func (sb *ScenarioBuilder) AddVirtex(name string, idcode uint32, userBits int) *ScenarioBuilder {
	return sb.AddDevice(SimDevice{
		Name:         name,
		IDCode:       idcode,
		IRLength:     10,
		IDCodeOpcode: virtexPadding | xilinxIDCode,
		Registers: map[uint32]*SimRegister{
			virtexPadding | xilinxUser1: {Name: "USER1", Length: userBits},
			virtexPadding | xilinxUser2: {Name: "USER2", Length: userBits},
			virtexPadding | xilinxUser3: {Name: "USER3", Length: userBits},
			virtexPadding | xilinxUser4: {Name: "USER4", Length: userBits},
		},
	})
}

// AddPlatformFlash appends an XCF configuration PROM (8-bit IR).
func (sb *ScenarioBuilder) AddPlatformFlash(name string, idcode uint32) *ScenarioBuilder {
	return sb.AddDevice(SimDevice{
		Name:         name,
		IDCode:       idcode,
		IRLength:     platformFlashIR,
		IDCodeOpcode: platformFlashID,
	})
}

// Build creates the ChainSimulator with the configured devices.
func (sb *ScenarioBuilder) Build() (*ChainSimulator, error) {
	return NewChainSimulator(sb.devices...)
}

// BuildSpartan3Board models the Spartan-3 starter board chain: an XC3S1000
// nearest TDI followed by an XCF04S PROM driving TDO. With USER1 loaded in
// the FPGA and the PROM in BYPASS the data path is two bits long.
func BuildSpartan3Board() (*ChainSimulator, error) {
	return NewScenarioBuilder().
		AddSpartan3("XC3S1000", IDCodeXC3S1000, 1).
		AddPlatformFlash("XCF04S", IDCodeXCF04S).
		Build()
}

// BuildVirtexBoard models a Virtex-4 board with the same PROM arrangement.
func BuildVirtexBoard() (*ChainSimulator, error) {
	return NewScenarioBuilder().
		AddVirtex("XC4VLX25", IDCodeXC4VLX25, 1).
		AddPlatformFlash("XCF04S", IDCodeXCF04S).
		Build()
}
