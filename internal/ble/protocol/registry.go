package protocol

import (
	"fmt"
	"sync"
)

// Message is a decoded protocol message.
type Message interface {
	Type() MessageType
}

// Encoder is a message that can be sent to a device.
type Encoder interface {
	Message
	Encode() ([]byte, error)
}

// DecodeFunc parses a complete payload, tag byte included.
type DecodeFunc func(data []byte) (Message, error)

// Registry maps tags to decoders. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders map[MessageType]DecodeFunc
}

// NewRegistry returns a registry with every built-in decoder registered.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[MessageType]DecodeFunc)}
	r.Register(HeaterSetPoint, decodeHeaterSetPoint)
	r.Register(Battery, decodeBattery)
	r.Register(LockStatus, decodeLockStatus)
	r.Register(ChargeStatus, decodeChargeStatus)
	r.Register(PodInserted, decodePodInserted)
	r.Register(DisplayName, decodeDisplayName)
	r.Register(HeaterRanges, decodeHeaterRanges)
	r.Register(DynamicMode, decodeDynamicMode)
	r.Register(Brightness, decodeBrightness)
	r.Register(SupportedAttributes, decodeSupportedAttributes)
	r.Register(HeatingParams, decodeHeatingParams)
	r.Register(CurrentTargetTemp, decodeCurrentTargetTemp)
	r.Register(HeatingState, decodeHeatingState)
	return r
}

// Register installs fn as the decoder for t, replacing any existing one.
func (r *Registry) Register(t MessageType, fn DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[t] = fn
}

// Supports reports whether a decoder is registered for t.
func (r *Registry) Supports(t MessageType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[t]
	return ok
}

// Decode dispatches data to the decoder registered for its tag byte.
func (r *Registry) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidSize)
	}
	tag := MessageType(data[0])

	r.mu.RLock()
	fn, ok := r.decoders[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnsupportedMessageTypeError{Tag: tag}
	}
	return fn(data)
}

var defaultRegistry = NewRegistry()

// Decode decodes data with the built-in decoders.
func Decode(data []byte) (Message, error) {
	return defaultRegistry.Decode(data)
}

// expect validates the tag byte and minimum length of a payload.
func expect(data []byte, t MessageType, minLen int) error {
	if len(data) == 0 {
		return sizeError(t, 0, minLen)
	}
	if MessageType(data[0]) != t {
		return fmt.Errorf("%w: decoder for %s got %s", ErrTagMismatch, t, MessageType(data[0]))
	}
	if len(data) < minLen {
		return sizeError(t, len(data), minLen)
	}
	return nil
}
