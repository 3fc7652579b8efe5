package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned when a payload is too short for its type.
	ErrInvalidSize = errors.New("protocol: invalid payload size")
	// ErrTagMismatch is returned when a decoder is handed another type's payload.
	ErrTagMismatch = errors.New("protocol: tag mismatch")
	// ErrUnsupportedAttribute is returned when an attribute has no bitmask bit.
	ErrUnsupportedAttribute = errors.New("protocol: unsupported attribute")
	// ErrUnsupportedMessageType is returned when no decoder is registered for a tag.
	ErrUnsupportedMessageType = errors.New("protocol: unsupported message type")
	// ErrCommandEncode is returned when an outgoing message cannot be encoded.
	ErrCommandEncode = errors.New("protocol: command encode error")
)

// UnsupportedAttributeError names the attribute that cannot be represented
// in a 64-bit attribute bitmask.
type UnsupportedAttributeError struct {
	Type MessageType
}

func (e *UnsupportedAttributeError) Error() string {
	return fmt.Sprintf("protocol: unsupported attribute %s (%d > %d)", e.Type, uint8(e.Type), uint8(MaxBitmaskType))
}

// Is allows errors.Is(err, ErrUnsupportedAttribute).
func (e *UnsupportedAttributeError) Is(target error) bool {
	return target == ErrUnsupportedAttribute
}

// UnsupportedMessageTypeError carries the tag that had no registered decoder.
type UnsupportedMessageTypeError struct {
	Tag MessageType
}

func (e *UnsupportedMessageTypeError) Error() string {
	return fmt.Sprintf("protocol: unsupported message type %s", e.Tag)
}

// Is allows errors.Is(err, ErrUnsupportedMessageType).
func (e *UnsupportedMessageTypeError) Is(target error) bool {
	return target == ErrUnsupportedMessageType
}

func sizeError(t MessageType, got, want int) error {
	return fmt.Errorf("%w: %s payload is %d bytes, need %d", ErrInvalidSize, t, got, want)
}
