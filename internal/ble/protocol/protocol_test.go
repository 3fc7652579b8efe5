package protocol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lowTypes() []MessageType {
	var out []MessageType
	for _, t := range AllMessageTypes() {
		if t <= MaxBitmaskType {
			out = append(out, t)
		}
	}
	return out
}

func TestStatusUpdateEncodeLayout(t *testing.T) {
	msg := StatusUpdateMessage{Attributes: NewAttributeSet(SupportedAttributes, Battery, ChargeStatus)}
	buf, err := msg.Encode()
	require.NoError(t, err)
	require.Len(t, buf, StatusUpdateSize)

	assert.Equal(t, byte(254), buf[0])
	want := uint64(1)<<24 | uint64(1)<<3 | uint64(1)<<7
	assert.Equal(t, want, binary.LittleEndian.Uint64(buf[1:9]))
	assert.Equal(t, make([]byte, 7), buf[9:])
}

func TestStatusUpdateEncodeEmpty(t *testing.T) {
	buf, err := StatusUpdateMessage{Attributes: NewAttributeSet()}.Encode()
	require.NoError(t, err)
	assert.Equal(t, append([]byte{254}, make([]byte, 15)...), buf)
}

func TestStatusUpdateRejectsHighAttribute(t *testing.T) {
	_, err := StatusUpdateMessage{Attributes: NewAttributeSet(Battery, StatusUpdate)}.Encode()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedAttribute))

	var attrErr *UnsupportedAttributeError
	require.ErrorAs(t, err, &attrErr)
	assert.Equal(t, StatusUpdate, attrErr.Type)

	_, err = StatusUpdateMessage{Attributes: NewAttributeSet(MessageType(64))}.Encode()
	assert.ErrorIs(t, err, ErrUnsupportedAttribute)
}

func TestBitmaskRoundTrip(t *testing.T) {
	sets := []AttributeSet{
		NewAttributeSet(),
		NewAttributeSet(Battery),
		NewAttributeSet(HeaterSetPoint, HeatingState, Haptics),
		NewAttributeSet(lowTypes()...),
	}
	for _, attrs := range sets {
		buf, err := StatusUpdateMessage{Attributes: attrs}.Encode()
		require.NoError(t, err)
		got := AttributeSetFromBitmask(binary.LittleEndian.Uint64(buf[1:9]))
		assert.True(t, attrs.Equal(got), "round trip of %s gave %s", attrs, got)
	}
}

func TestSupportedAttributesDecode(t *testing.T) {
	payload := make([]byte, 9)
	payload[0] = byte(SupportedAttributes)
	binary.LittleEndian.PutUint64(payload[1:], uint64(1)<<3|uint64(1)<<32|uint64(1)<<1)

	msg, err := Decode(payload)
	require.NoError(t, err)
	sa, ok := msg.(SupportedAttributesMessage)
	require.True(t, ok, "got %T", msg)
	// bit 1 has no enumerated type and is skipped
	assert.Equal(t, []MessageType{Battery, HeatingState}, sa.Attributes.Types())
}

func TestSupportedAttributesAllBits(t *testing.T) {
	payload := make([]byte, 9)
	payload[0] = byte(SupportedAttributes)
	binary.LittleEndian.PutUint64(payload[1:], 0xFFFFFFFFFFFFFFFF)

	msg, err := Decode(payload)
	require.NoError(t, err)
	got := msg.(SupportedAttributesMessage).Attributes
	assert.Equal(t, lowTypes(), got.Types())
	assert.False(t, got.Has(StatusUpdate))
}

func TestSupportedAttributesTooShort(t *testing.T) {
	_, err := Decode([]byte{byte(SupportedAttributes), 1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestDecodeUnsupportedType(t *testing.T) {
	for _, tag := range []MessageType{Usage, Time, Haptics, MessageType(99)} {
		_, err := Decode([]byte{byte(tag), 0, 0, 0})
		assert.ErrorIs(t, err, ErrUnsupportedMessageType, "tag %s", tag)

		var unsupported *UnsupportedMessageTypeError
		if assert.ErrorAs(t, err, &unsupported) {
			assert.Equal(t, tag, unsupported.Tag)
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestDecoderChecksTag(t *testing.T) {
	r := NewRegistry()
	// Misregister to exercise the decoder's own tag check.
	r.Register(Usage, decodeBattery)
	_, err := r.Decode([]byte{byte(Usage), 50})
	assert.ErrorIs(t, err, ErrTagMismatch)
}

func TestDecodeMessages(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Message
	}{
		{"battery", []byte{3, 87}, BatteryMessage{Level: 87}},
		{"charging", []byte{7, 1}, ChargeStatusMessage{State: Charging}},
		{"charge complete", []byte{7, 2}, ChargeStatusMessage{State: ChargingCompleted}},
		{"charge garbage", []byte{7, 9}, ChargeStatusMessage{State: ChargeUnknown}},
		{"set point", []byte{2, 0x66, 0x08}, HeaterSetPointMessage{Celsius: 215}},
		{"target", []byte{31, 0xd6, 0x06}, CurrentTargetTempMessage{Celsius: 175}},
		{"oven", []byte{25, 0x35, 0x08}, HeatingParamsMessage{OvenCelsius: 210.1}},
		{"ranges", []byte{17, 0xd6, 0x06, 0x66, 0x08}, HeaterRangesMessage{MinCelsius: 175, MaxCelsius: 215}},
		{"heating", []byte{32, 4}, HeatingStateMessage{State: Ready}},
		{"mode", []byte{19, 3}, DynamicModeMessage{Mode: ModeStealth}},
		{"locked", []byte{6, 1}, LockStatusMessage{Locked: true}},
		{"pod", []byte{8, 0}, PodInsertedMessage{Inserted: false}},
		{"brightness", []byte{21, 40}, BrightnessMessage{Level: 40}},
		{"name", []byte{10, 'm', 'y', 'p', 'a', 'x', 0, 0}, DisplayNameMessage{Name: "mypax"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, MessageType(tt.data[0]), got.Type())
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	for _, data := range [][]byte{{3}, {7}, {2, 0x6a}, {17, 1, 2, 3}, {32}} {
		_, err := Decode(data)
		assert.ErrorIs(t, err, ErrInvalidSize, "payload %x", data)
	}
}

func TestEncodeCommands(t *testing.T) {
	buf, err := HeaterSetPointMessage{Celsius: 182.5}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0x21, 0x07}, buf)

	buf, err = DynamicModeMessage{Mode: ModeBoost}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{19, 1}, buf)

	buf, err = LockStatusMessage{Locked: true}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{6, 1}, buf)

	buf, err = BrightnessMessage{Level: 100}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{21, 100}, buf)
}

func TestEncodeCommandErrors(t *testing.T) {
	_, err := HeaterSetPointMessage{Celsius: -1}.Encode()
	assert.ErrorIs(t, err, ErrCommandEncode)

	_, err = HeaterSetPointMessage{Celsius: 7000}.Encode()
	assert.ErrorIs(t, err, ErrCommandEncode)

	_, err = DynamicModeMessage{Mode: DynamicModeValue(9)}.Encode()
	assert.ErrorIs(t, err, ErrCommandEncode)

	_, err = BrightnessMessage{Level: 101}.Encode()
	assert.ErrorIs(t, err, ErrCommandEncode)
}

func TestSetPointRoundTrip(t *testing.T) {
	for _, c := range []float64{0, 175, 182.5, 215, 6553.5} {
		buf, err := HeaterSetPointMessage{Celsius: c}.Encode()
		require.NoError(t, err)
		msg, err := Decode(buf)
		require.NoError(t, err)
		assert.InDelta(t, c, msg.(HeaterSetPointMessage).Celsius, 0.001)
	}
}

func TestParseNames(t *testing.T) {
	mt, err := ParseMessageType("battery")
	require.NoError(t, err)
	assert.Equal(t, Battery, mt)

	_, err = ParseMessageType("nope")
	assert.Error(t, err)

	mode, err := ParseDynamicMode("Flavor")
	require.NoError(t, err)
	assert.Equal(t, ModeFlavor, mode)

	assert.Equal(t, "MessageType(99)", MessageType(99).String())
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "charging-completed", ChargingCompleted.String())
}
