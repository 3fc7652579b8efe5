package ble

import (
	"errors"
	"fmt"
)

// ErrDisconnected is carried by a Disconnected event when the link drops.
var ErrDisconnected = errors.New("ble: peripheral disconnected")

// Event is a result or notification delivered by a Peripheral.
type Event interface {
	event()
}

// ServicesDiscovered answers DiscoverServices. Services holds only the
// requested services that exist; an absent service is not an error.
type ServicesDiscovered struct {
	Services []Service
	Err      error
}

// CharacteristicsDiscovered answers DiscoverCharacteristics.
type CharacteristicsDiscovered struct {
	Service         Service
	Characteristics []Characteristic
	Err             error
}

// ValueUpdated carries a read result or a notification.
type ValueUpdated struct {
	Characteristic Characteristic
	Value          []byte
	Err            error
}

// WriteCompleted answers WriteValue.
type WriteCompleted struct {
	Characteristic Characteristic
	Err            error
}

// Disconnected reports that the link is gone.
type Disconnected struct {
	Err error
}

func (ServicesDiscovered) event()        {}
func (CharacteristicsDiscovered) event() {}
func (ValueUpdated) event()              {}
func (WriteCompleted) event()            {}
func (Disconnected) event()              {}

// NotFoundError reports a GATT resource missing from a discovery result.
type NotFoundError struct {
	Resource string // "service" or "characteristic"
	UUID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ble: %s %s not found", e.Resource, e.UUID)
}

// FindService returns the service in svcs matching uuid.
func FindService(svcs []Service, uuid string) (Service, error) {
	for _, s := range svcs {
		if UUIDEqual(s.UUID(), uuid) {
			return s, nil
		}
	}
	return nil, &NotFoundError{Resource: "service", UUID: uuid}
}

// FindCharacteristic returns the characteristic in chars matching uuid.
func FindCharacteristic(chars []Characteristic, uuid string) (Characteristic, error) {
	for _, c := range chars {
		if UUIDEqual(c.UUID(), uuid) {
			return c, nil
		}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUID: uuid}
}
