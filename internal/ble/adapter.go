// Package ble is the transport facade between the Pax session logic and a
// BLE stack. Every Peripheral operation is fire-and-deliver-later: the call
// returns immediately and its result arrives as an Event on the handler
// registered with SetHandler.
package ble

import "context"

// GATT UUIDs used by Pax devices.
const (
	DeviceInfoServiceUUID = "180a"
	ManufacturerCharUUID  = "2a29"
	ModelNumberCharUUID   = "2a24"
	SerialNumberCharUUID  = "2a25"
	HardwareRevCharUUID   = "2a27"
	SoftwareRevCharUUID   = "2a26"

	PaxServiceUUID   = "8e320200-64d2-11e6-bdf4-0800200c9a66"
	PaxReadCharUUID  = "8e320201-64d2-11e6-bdf4-0800200c9a66"
	PaxWriteCharUUID = "8e320202-64d2-11e6-bdf4-0800200c9a66"
)

// DeviceInfoCharUUIDs lists the Device Info characteristics a session reads.
var DeviceInfoCharUUIDs = []string{
	ManufacturerCharUUID,
	ModelNumberCharUUID,
	SerialNumberCharUUID,
	HardwareRevCharUUID,
	SoftwareRevCharUUID,
}

// PaxCharUUIDs lists the Pax service characteristics a session needs.
var PaxCharUUIDs = []string{PaxReadCharUUID, PaxWriteCharUUID}

// Service is an opaque discovered GATT service.
type Service interface {
	UUID() string
}

// Characteristic is an opaque discovered GATT characteristic.
type Characteristic interface {
	UUID() string
}

// Peripheral is a connected BLE device.
type Peripheral interface {
	// ID identifies the peripheral (MAC address or CoreBluetooth UUID).
	ID() string
	// SetHandler installs the receiver for every event. A nil handler drops events.
	SetHandler(h func(Event))
	// DiscoverServices looks up the given services; delivers ServicesDiscovered.
	DiscoverServices(uuids []string)
	// DiscoverCharacteristics looks up characteristics of svc; delivers
	// CharacteristicsDiscovered.
	DiscoverCharacteristics(svc Service, uuids []string)
	// ReadValue reads ch; delivers ValueUpdated.
	ReadValue(ch Characteristic)
	// WriteValue writes data to ch; delivers WriteCompleted.
	WriteValue(ch Characteristic, data []byte)
	// EnableNotifications subscribes to ch. Each notification is delivered
	// as ValueUpdated; a subscription failure is a ValueUpdated with Err set.
	EnableNotifications(ch Characteristic)
	// Disconnect terminates the connection.
	Disconnect() error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers peripherals whose local name contains nameFilter
	// (case-insensitive; empty matches all) until ctx is done.
	Scan(ctx context.Context, nameFilter string) ([]Device, error)
	// Connect establishes a connection to the peripheral at address.
	Connect(ctx context.Context, address string) (Peripheral, error)
}
