package pax

import (
	"strings"

	"github.com/chaz8081/paxctl/internal/ble"
)

// Identity is the Device Information service content.
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	HardwareRev  string
	SoftwareRev  string
}

// set stores a Device Info value under the field for charUUID. Fields are
// written once; later values are ignored.
func (id *Identity) set(charUUID string, v []byte) {
	var field *string
	switch ble.NormalizeUUID(charUUID) {
	case ble.ManufacturerCharUUID:
		field = &id.Manufacturer
	case ble.ModelNumberCharUUID:
		field = &id.Model
	case ble.SerialNumberCharUUID:
		field = &id.Serial
	case ble.HardwareRevCharUUID:
		field = &id.HardwareRev
	case ble.SoftwareRevCharUUID:
		field = &id.SoftwareRev
	default:
		return
	}
	if *field == "" {
		*field = cleanString(v)
	}
}

// cleanString trims the NUL padding and whitespace some firmware appends.
func cleanString(v []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(v), "\x00"))
}
