package deviceinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupSpartan3(t *testing.T) {
	info := Lookup(0x01428093)
	assert.True(t, info.Known)
	assert.Equal(t, "XC3S1000", info.Name)
	assert.Equal(t, "Xilinx", info.Manufacturer.Name)
	assert.Equal(t, 6, info.IRLength)

	info = Lookup(0x01414093)
	assert.Equal(t, "XC3S200", info.Name)
}

func TestLookupIgnoresVersion(t *testing.T) {
	info := Lookup(0xF5046093)
	assert.True(t, info.Known)
	assert.Equal(t, "XCF04S", info.Name)
	assert.True(t, info.IsPROM)
	assert.Equal(t, uint8(0xF), info.IDCode.Version)
}

func TestLookupUnknown(t *testing.T) {
	info := Lookup(0x12345001)
	assert.False(t, info.Known)
	assert.Equal(t, "Unknown device", info.Name)
}
