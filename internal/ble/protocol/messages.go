package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// StatusUpdateSize is the fixed length of an encoded StatusUpdateMessage.
const StatusUpdateSize = 16

// SupportedAttributesMessage reports which attributes a device implements.
//
//	byte 0:    tag (24)
//	bytes 1-8: u64 bitmask, bit n set for MessageType n
type SupportedAttributesMessage struct {
	Attributes AttributeSet
}

func (SupportedAttributesMessage) Type() MessageType { return SupportedAttributes }

func decodeSupportedAttributes(data []byte) (Message, error) {
	if err := expect(data, SupportedAttributes, 9); err != nil {
		return nil, err
	}
	mask := binary.LittleEndian.Uint64(data[1:9])
	return SupportedAttributesMessage{Attributes: AttributeSetFromBitmask(mask)}, nil
}

// StatusUpdateMessage asks the device to report the listed attributes.
//
//	byte 0:     tag (254)
//	bytes 1-8:  u64 bitmask of requested attributes
//	bytes 9-15: reserved, zero
type StatusUpdateMessage struct {
	Attributes AttributeSet
}

func (StatusUpdateMessage) Type() MessageType { return StatusUpdate }

// Encode fails with ErrUnsupportedAttribute when an attribute is above
// MaxBitmaskType.
func (m StatusUpdateMessage) Encode() ([]byte, error) {
	mask, err := m.Attributes.Bitmask()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, StatusUpdateSize)
	buf[0] = byte(StatusUpdate)
	binary.LittleEndian.PutUint64(buf[1:9], mask)
	return buf, nil
}

// HeaterSetPointMessage carries the temperature the user selected.
type HeaterSetPointMessage struct {
	Celsius float64
}

func (HeaterSetPointMessage) Type() MessageType { return HeaterSetPoint }

func (m HeaterSetPointMessage) Encode() ([]byte, error) {
	return encodeTemp(HeaterSetPoint, m.Celsius)
}

func decodeHeaterSetPoint(data []byte) (Message, error) {
	c, err := decodeTemp(data, HeaterSetPoint)
	if err != nil {
		return nil, err
	}
	return HeaterSetPointMessage{Celsius: c}, nil
}

// CurrentTargetTempMessage carries the temperature the oven is driving to,
// which differs from the set point while boosting.
type CurrentTargetTempMessage struct {
	Celsius float64
}

func (CurrentTargetTempMessage) Type() MessageType { return CurrentTargetTemp }

func decodeCurrentTargetTemp(data []byte) (Message, error) {
	c, err := decodeTemp(data, CurrentTargetTemp)
	if err != nil {
		return nil, err
	}
	return CurrentTargetTempMessage{Celsius: c}, nil
}

// HeatingParamsMessage carries the live oven temperature.
type HeatingParamsMessage struct {
	OvenCelsius float64
}

func (HeatingParamsMessage) Type() MessageType { return HeatingParams }

func decodeHeatingParams(data []byte) (Message, error) {
	c, err := decodeTemp(data, HeatingParams)
	if err != nil {
		return nil, err
	}
	return HeatingParamsMessage{OvenCelsius: c}, nil
}

// HeaterRangesMessage carries the allowed set point range.
//
//	bytes 1-2: u16 minimum, deci-degrees
//	bytes 3-4: u16 maximum, deci-degrees
type HeaterRangesMessage struct {
	MinCelsius float64
	MaxCelsius float64
}

func (HeaterRangesMessage) Type() MessageType { return HeaterRanges }

func decodeHeaterRanges(data []byte) (Message, error) {
	if err := expect(data, HeaterRanges, 5); err != nil {
		return nil, err
	}
	return HeaterRangesMessage{
		MinCelsius: fromDeci(binary.LittleEndian.Uint16(data[1:3])),
		MaxCelsius: fromDeci(binary.LittleEndian.Uint16(data[3:5])),
	}, nil
}

// BatteryMessage carries the state of charge in percent.
type BatteryMessage struct {
	Level uint8
}

func (BatteryMessage) Type() MessageType { return Battery }

func decodeBattery(data []byte) (Message, error) {
	if err := expect(data, Battery, 2); err != nil {
		return nil, err
	}
	return BatteryMessage{Level: data[1]}, nil
}

// ChargeStatusMessage reports whether the device is on a charger.
type ChargeStatusMessage struct {
	State ChargeState
}

func (ChargeStatusMessage) Type() MessageType { return ChargeStatus }

func decodeChargeStatus(data []byte) (Message, error) {
	if err := expect(data, ChargeStatus, 2); err != nil {
		return nil, err
	}
	state := ChargeState(data[1])
	switch state {
	case NotCharging, Charging, ChargingCompleted:
	default:
		state = ChargeUnknown
	}
	return ChargeStatusMessage{State: state}, nil
}

// HeatingStateMessage reports what the oven is doing.
type HeatingStateMessage struct {
	State HeatingStateValue
}

func (HeatingStateMessage) Type() MessageType { return HeatingState }

func decodeHeatingState(data []byte) (Message, error) {
	if err := expect(data, HeatingState, 2); err != nil {
		return nil, err
	}
	return HeatingStateMessage{State: HeatingStateValue(data[1])}, nil
}

// DynamicModeMessage selects the oven heating profile.
type DynamicModeMessage struct {
	Mode DynamicModeValue
}

func (DynamicModeMessage) Type() MessageType { return DynamicMode }

func (m DynamicModeMessage) Encode() ([]byte, error) {
	if !m.Mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrCommandEncode, m.Mode)
	}
	return []byte{byte(DynamicMode), byte(m.Mode)}, nil
}

func decodeDynamicMode(data []byte) (Message, error) {
	if err := expect(data, DynamicMode, 2); err != nil {
		return nil, err
	}
	return DynamicModeMessage{Mode: DynamicModeValue(data[1])}, nil
}

// LockStatusMessage reports or sets the button lock.
type LockStatusMessage struct {
	Locked bool
}

func (LockStatusMessage) Type() MessageType { return LockStatus }

func (m LockStatusMessage) Encode() ([]byte, error) {
	return []byte{byte(LockStatus), boolByte(m.Locked)}, nil
}

func decodeLockStatus(data []byte) (Message, error) {
	if err := expect(data, LockStatus, 2); err != nil {
		return nil, err
	}
	return LockStatusMessage{Locked: data[1] != 0}, nil
}

// PodInsertedMessage reports whether a pod sits in an Era.
type PodInsertedMessage struct {
	Inserted bool
}

func (PodInsertedMessage) Type() MessageType { return PodInserted }

func decodePodInserted(data []byte) (Message, error) {
	if err := expect(data, PodInserted, 2); err != nil {
		return nil, err
	}
	return PodInsertedMessage{Inserted: data[1] != 0}, nil
}

// BrightnessMessage reports or sets LED brightness in percent.
type BrightnessMessage struct {
	Level uint8
}

func (BrightnessMessage) Type() MessageType { return Brightness }

func (m BrightnessMessage) Encode() ([]byte, error) {
	if m.Level > 100 {
		return nil, fmt.Errorf("%w: brightness %d > 100", ErrCommandEncode, m.Level)
	}
	return []byte{byte(Brightness), m.Level}, nil
}

func decodeBrightness(data []byte) (Message, error) {
	if err := expect(data, Brightness, 2); err != nil {
		return nil, err
	}
	return BrightnessMessage{Level: data[1]}, nil
}

// DisplayNameMessage carries the user-assigned device name, NUL padded.
type DisplayNameMessage struct {
	Name string
}

func (DisplayNameMessage) Type() MessageType { return DisplayName }

func decodeDisplayName(data []byte) (Message, error) {
	if err := expect(data, DisplayName, 1); err != nil {
		return nil, err
	}
	raw := data[1:]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return DisplayNameMessage{Name: strings.ToValidUTF8(string(raw), "?")}, nil
}

// Temperatures travel as u16 deci-degrees Celsius.

func decodeTemp(data []byte, t MessageType) (float64, error) {
	if err := expect(data, t, 3); err != nil {
		return 0, err
	}
	return fromDeci(binary.LittleEndian.Uint16(data[1:3])), nil
}

func encodeTemp(t MessageType, celsius float64) ([]byte, error) {
	deci := math.Round(celsius * 10)
	if math.IsNaN(deci) || deci < 0 || deci > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %s %.1f°C out of range", ErrCommandEncode, t, celsius)
	}
	buf := make([]byte, 3)
	buf[0] = byte(t)
	binary.LittleEndian.PutUint16(buf[1:], uint16(deci))
	return buf, nil
}

func fromDeci(v uint16) float64 {
	return float64(v) / 10
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
