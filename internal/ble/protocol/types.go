// Package protocol implements the typed message layer of the Pax BLE protocol.
// Every decrypted payload starts with a one-byte MessageType tag followed by
// a type-specific payload; multi-byte fields are little-endian.
package protocol

import (
	"fmt"
	"strings"
)

// MessageType is the tag byte at offset 0 of every payload.
type MessageType uint8

const (
	HeaterSetPoint      MessageType = 2
	Battery             MessageType = 3
	Usage               MessageType = 4
	UsageLimit          MessageType = 5
	LockStatus          MessageType = 6
	ChargeStatus        MessageType = 7
	PodInserted         MessageType = 8
	Time                MessageType = 9
	DisplayName         MessageType = 10
	HeaterRanges        MessageType = 17
	DynamicMode         MessageType = 19
	ColorTheme          MessageType = 20
	Brightness          MessageType = 21
	HapticMode          MessageType = 23
	SupportedAttributes MessageType = 24
	HeatingParams       MessageType = 25
	UiMode              MessageType = 27
	ShellColor          MessageType = 28
	LowSoCMode          MessageType = 30
	CurrentTargetTemp   MessageType = 31
	HeatingState        MessageType = 32
	Haptics             MessageType = 40
	StatusUpdate        MessageType = 254
)

// MaxBitmaskType is the highest tag that has a bit in an attribute bitmask.
const MaxBitmaskType MessageType = 63

var typeNames = map[MessageType]string{
	HeaterSetPoint:      "HeaterSetPoint",
	Battery:             "Battery",
	Usage:               "Usage",
	UsageLimit:          "UsageLimit",
	LockStatus:          "LockStatus",
	ChargeStatus:        "ChargeStatus",
	PodInserted:         "PodInserted",
	Time:                "Time",
	DisplayName:         "DisplayName",
	HeaterRanges:        "HeaterRanges",
	DynamicMode:         "DynamicMode",
	ColorTheme:          "ColorTheme",
	Brightness:          "Brightness",
	HapticMode:          "HapticMode",
	SupportedAttributes: "SupportedAttributes",
	HeatingParams:       "HeatingParams",
	UiMode:              "UiMode",
	ShellColor:          "ShellColor",
	LowSoCMode:          "LowSoCMode",
	CurrentTargetTemp:   "CurrentTargetTemp",
	HeatingState:        "HeatingState",
	Haptics:             "Haptics",
	StatusUpdate:        "StatusUpdate",
}

// allTypes is the enumeration in ascending order.
var allTypes = []MessageType{
	HeaterSetPoint, Battery, Usage, UsageLimit, LockStatus, ChargeStatus,
	PodInserted, Time, DisplayName, HeaterRanges, DynamicMode, ColorTheme,
	Brightness, HapticMode, SupportedAttributes, HeatingParams, UiMode,
	ShellColor, LowSoCMode, CurrentTargetTemp, HeatingState, Haptics,
	StatusUpdate,
}

// AllMessageTypes returns every enumerated MessageType in ascending order.
func AllMessageTypes() []MessageType {
	out := make([]MessageType, len(allTypes))
	copy(out, allTypes)
	return out
}

// Known reports whether t is part of the enumeration.
func (t MessageType) Known() bool {
	_, ok := typeNames[t]
	return ok
}

func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// ParseMessageType resolves a name such as "Battery" (case-insensitive).
func ParseMessageType(name string) (MessageType, error) {
	for t, n := range typeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown message type %q", name)
}

// ChargeState is the payload of a ChargeStatus message.
type ChargeState uint8

const (
	NotCharging       ChargeState = 0
	Charging          ChargeState = 1
	ChargingCompleted ChargeState = 2
	ChargeUnknown     ChargeState = 0xff
)

func (s ChargeState) String() string {
	switch s {
	case NotCharging:
		return "not-charging"
	case Charging:
		return "charging"
	case ChargingCompleted:
		return "charging-completed"
	default:
		return "unknown"
	}
}

// HeatingStateValue is the payload of a HeatingState message.
type HeatingStateValue uint8

const (
	OvenOff     HeatingStateValue = 0
	Boosting    HeatingStateValue = 1
	Cooling     HeatingStateValue = 2
	Heating     HeatingStateValue = 3
	Ready       HeatingStateValue = 4
	Standby     HeatingStateValue = 5
	TempSetMode HeatingStateValue = 6
)

var heatingStateNames = [...]string{"oven-off", "boosting", "cooling", "heating", "ready", "standby", "temp-set-mode"}

func (s HeatingStateValue) String() string {
	if int(s) < len(heatingStateNames) {
		return heatingStateNames[s]
	}
	return fmt.Sprintf("HeatingState(%d)", uint8(s))
}

// Valid reports whether s is a defined heating state.
func (s HeatingStateValue) Valid() bool {
	return int(s) < len(heatingStateNames)
}

// DynamicModeValue is the oven heating profile.
type DynamicModeValue uint8

const (
	ModeStandard   DynamicModeValue = 0
	ModeBoost      DynamicModeValue = 1
	ModeEfficiency DynamicModeValue = 2
	ModeStealth    DynamicModeValue = 3
	ModeFlavor     DynamicModeValue = 4
)

var dynamicModeNames = [...]string{"standard", "boost", "efficiency", "stealth", "flavor"}

func (m DynamicModeValue) String() string {
	if int(m) < len(dynamicModeNames) {
		return dynamicModeNames[m]
	}
	return fmt.Sprintf("DynamicMode(%d)", uint8(m))
}

// Valid reports whether m is a defined dynamic mode.
func (m DynamicModeValue) Valid() bool {
	return int(m) < len(dynamicModeNames)
}

// ParseDynamicMode resolves a mode name such as "boost".
func ParseDynamicMode(name string) (DynamicModeValue, error) {
	for i, n := range dynamicModeNames {
		if strings.EqualFold(n, name) {
			return DynamicModeValue(i), nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown dynamic mode %q", name)
}
