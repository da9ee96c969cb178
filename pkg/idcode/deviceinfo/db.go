package deviceinfo

import "github.com/OpenTraceLab/bistio/pkg/idcode"

// key is used for device database lookups. The IDCODE version field is
// ignored so every silicon revision matches.
type key struct {
	ManufacturerCode uint16
	PartNumber       uint16
}

var db = make(map[key]DeviceInfo)

func register(k key, info DeviceInfo) {
	info.Known = true
	db[k] = info
}

// Lookup returns device information for an IDCODE. Parts missing from the
// database get a record with Known unset.
func Lookup(rawID uint32) DeviceInfo {
	id := idcode.Decode(rawID)
	m, _ := idcode.LookupManufacturer(id.ManufacturerCode)

	k := key{ManufacturerCode: id.ManufacturerCode, PartNumber: id.PartNumber}
	if info, ok := db[k]; ok {
		info.IDCode = id
		info.Manufacturer = m
		return info
	}

	return DeviceInfo{
		IDCode:       id,
		Manufacturer: m,
		Name:         "Unknown device",
		Description:  "No entry in device database",
	}
}
