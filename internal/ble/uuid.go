package ble

import "strings"

// sigBaseSuffix is the Bluetooth SIG base UUID after the 16-bit slot.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID lowercases uuid, strips dashes and any 0x prefix, and
// collapses SIG base UUIDs (0000xxxx-0000-1000-8000-00805f9b34fb) to their
// 16-bit form so "180A" and "0000180a-0000-1000-8000-00805f9b34fb" compare
// equal.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")
	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// UUIDEqual compares two UUID strings after normalisation.
func UUIDEqual(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

// ExpandUUID returns the dashed 128-bit form of uuid.
func ExpandUUID(uuid string) string {
	u := NormalizeUUID(uuid)
	if len(u) == 4 {
		u = "0000" + u + sigBaseSuffix
	}
	if len(u) != 32 {
		return uuid
	}
	return u[0:8] + "-" + u[8:12] + "-" + u[12:16] + "-" + u[16:20] + "-" + u[20:32]
}
