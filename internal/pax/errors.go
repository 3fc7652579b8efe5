package pax

import (
	"errors"
	"fmt"
)

// Errors that end a session or a probe.
var (
	ErrRequiredServiceMissing        = errors.New("pax: required service missing")
	ErrRequiredCharacteristicMissing = errors.New("pax: required characteristic missing")
	ErrDiscoveryTimeout              = errors.New("pax: discovery timed out")
	ErrReadTimeout                   = errors.New("pax: device info read timed out")
	ErrTransportLost                 = errors.New("pax: transport lost")
	ErrSessionClosed                 = errors.New("pax: session closed")
)

var (
	// ErrWriteTimeout fails one Send whose write never completed. The
	// session stays usable.
	ErrWriteTimeout = errors.New("pax: write timed out")
	// ErrNotReady is returned by Send before the session is usable.
	ErrNotReady = errors.New("pax: session not usable")
	// ErrNoKey is logged for packets that arrive before the serial is read.
	ErrNoKey = errors.New("pax: packet before device key")
)

// Prober errors.
var (
	ErrUnknownDeviceModel = errors.New("pax: unknown device model")
	ErrAlreadyProbed      = errors.New("pax: peripheral already probed")
)

// UnknownModelError carries the model string a probe could not classify.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("pax: unknown device model %q", e.Model)
}

// Is matches ErrUnknownDeviceModel.
func (e *UnknownModelError) Is(target error) bool {
	return target == ErrUnknownDeviceModel
}
