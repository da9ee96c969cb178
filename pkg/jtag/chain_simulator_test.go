package jtag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/bistio/pkg/bitrev"
	"github.com/OpenTraceLab/bistio/pkg/tap"
)

// walk drives the simulator along the shortest path to target.
func walk(t *testing.T, cs *ChainSimulator, target tap.State) {
	t.Helper()
	seq, err := tap.Path(cs.State(), target)
	require.NoError(t, err)
	for _, tms := range seq.TMS {
		cs.Clock(tms, false)
	}
	require.Equal(t, target, cs.State())
}

// scan shifts bits through the current shift state, raising TMS on the
// last bit, and returns the TDO bits.
func scan(cs *ChainSimulator, bits []bool) []bool {
	out := make([]bool, len(bits))
	for i, b := range bits {
		out[i] = cs.Clock(i == len(bits)-1, b)
	}
	return out
}

func ones(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}

func TestChainSimulatorResetSelectsIDCode(t *testing.T) {
	cs, err := BuildSpartan3Board()
	require.NoError(t, err)

	walk(t, cs, tap.StateShiftDR)
	out := scan(cs, make([]bool, 64))

	fpga := bitrev.Pack(out[32:64], bitrev.LSBFirst)
	prom := bitrev.Pack(out[0:32], bitrev.LSBFirst)
	assert.Equal(t, IDCodeXCF04S, uint32(prom[0])|uint32(prom[1])<<8|uint32(prom[2])<<16|uint32(prom[3])<<24)
	assert.Equal(t, IDCodeXC3S1000, uint32(fpga[0])|uint32(fpga[1])<<8|uint32(fpga[2])<<16|uint32(fpga[3])<<24)
}

func TestChainSimulatorIRCaptureAndUpdate(t *testing.T) {
	cs, err := BuildSpartan3Board()
	require.NoError(t, err)

	walk(t, cs, tap.StateShiftIR)
	// PROM gets all ones (BYPASS), FPGA gets USER1 = 000010 LSB first.
	in := append(ones(8), false, true, false, false, false, false)
	out := scan(cs, in)

	// Capture-IR loads ...01 into each register; the PROM is nearest TDO.
	assert.True(t, out[0])
	assert.False(t, out[1])
	assert.True(t, out[8])
	assert.False(t, out[9])

	walk(t, cs, tap.StateRunTestIdle)
	assert.Equal(t, uint32(0x02), cs.Instruction(0))
	assert.Equal(t, uint32(0xFF), cs.Instruction(1))
}

func TestChainSimulatorUser1Latency(t *testing.T) {
	cs, err := BuildSpartan3Board()
	require.NoError(t, err)

	walk(t, cs, tap.StateShiftIR)
	scan(cs, append(ones(8), false, true, false, false, false, false))
	walk(t, cs, tap.StateShiftDR)

	in := []bool{true, true, false, true, false, true, false, true, false, true}
	out := make([]bool, len(in))
	for i, b := range in {
		out[i] = cs.Clock(false, b)
	}
	assert.False(t, out[0])
	assert.False(t, out[1])
	for k := 2; k < len(in); k++ {
		assert.Equal(t, in[k-2], out[k], "bit %d", k)
	}
}

func TestChainSimulatorTRST(t *testing.T) {
	cs, err := BuildSpartan3Board()
	require.NoError(t, err)

	walk(t, cs, tap.StateShiftIR)
	scan(cs, ones(14))
	walk(t, cs, tap.StateRunTestIdle)
	require.Equal(t, uint32(0x3F), cs.Instruction(0))

	require.NoError(t, cs.Adapter().ResetTAP(true))
	assert.Equal(t, tap.StateTestLogicReset, cs.State())
	assert.Equal(t, uint32(xilinxIDCode), cs.Instruction(0))
}

func TestChainSimulatorAdapterShift(t *testing.T) {
	cs, err := BuildSpartan3Board()
	require.NoError(t, err)

	// Reset, go to Shift-DR (0,1,0,0) and read both IDCODEs in one call.
	tmsBits := append([]bool{true, true, true, true, true, false, true, false, false}, make([]bool, 64)...)
	tmsBits[len(tmsBits)-1] = true
	tdo, err := cs.Adapter().Shift(bitrev.Pack(tmsBits, bitrev.LSBFirst), nil, len(tmsBits))
	require.NoError(t, err)
	assert.Equal(t, tap.StateExit1DR, cs.State())

	bits := bitrev.Unpack(tdo, len(tmsBits), bitrev.LSBFirst)[9:]
	id := bitrev.Pack(bits[32:], bitrev.LSBFirst)
	assert.Equal(t, []byte{0x93, 0x80, 0x42, 0x01}, id)
}

func TestNewChainSimulatorValidates(t *testing.T) {
	_, err := NewChainSimulator()
	assert.Error(t, err)

	_, err = NewChainSimulator(SimDevice{Name: "tiny", IRLength: 1})
	assert.Error(t, err)

	_, err = NewScenarioBuilder().AddSpartan3("bad", IDCodeXC3S200, 0).Build()
	assert.Error(t, err)
}

func TestVirtexBoardUserRegisters(t *testing.T) {
	cs, err := BuildVirtexBoard()
	require.NoError(t, err)

	walk(t, cs, tap.StateShiftIR)
	// USER3 (100010) plus four padding ones.
	fpga := []bool{false, true, false, false, false, true, true, true, true, true}
	scan(cs, append(ones(8), fpga...))
	walk(t, cs, tap.StateRunTestIdle)
	assert.Equal(t, uint32(0x3E2), cs.Instruction(0))
}
