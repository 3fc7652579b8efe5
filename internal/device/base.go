package device

import (
	"context"
	"sync"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
)

// BatteryUnknown is the battery level before the first Battery message.
const BatteryUnknown = -1

// Base is the state every Pax model exposes. It is also the variant used
// for unrecognised hardware.
type Base struct {
	mu         sync.RWMutex
	supported  protocol.AttributeSet
	battery    int
	charge     protocol.ChargeState
	name       string
	locked     bool
	brightness int
	sender     Sender

	notifier *notifier
}

// NewGeneric returns a Base-only variant.
func NewGeneric() *Base {
	return &Base{
		supported:  protocol.NewAttributeSet(),
		battery:    BatteryUnknown,
		charge:     protocol.ChargeUnknown,
		brightness: -1,
		notifier:   newNotifier(),
	}
}

var _ Variant = (*Base)(nil)

// Type reports TypeUnknown; Base stands in for unrecognised hardware.
func (b *Base) Type() Type { return TypeUnknown }

// Common returns b itself.
func (b *Base) Common() *Base { return b }

// SubscriptionAttributes is the minimum set every model requests.
func (b *Base) SubscriptionAttributes() protocol.AttributeSet {
	return protocol.NewAttributeSet(protocol.SupportedAttributes, protocol.Battery, protocol.ChargeStatus)
}

// Bind sets the sender used by commands. A nil sender unbinds.
func (b *Base) Bind(s Sender) {
	b.mu.Lock()
	b.sender = s
	b.mu.Unlock()
}

// Close unbinds the sender and drops every observer.
func (b *Base) Close() {
	b.mu.Lock()
	b.sender = nil
	b.mu.Unlock()
	b.notifier.close()
}

// Subscribe registers fn for every attribute update. The returned function
// unregisters it. Updates are delivered on one goroutine in order.
func (b *Base) Subscribe(fn func(Update)) (cancel func()) {
	return b.notifier.subscribe(fn)
}

// Apply handles the messages common to every model and reports whether msg
// was used.
func (b *Base) Apply(msg protocol.Message) bool {
	var u Update
	b.mu.Lock()
	switch m := msg.(type) {
	case protocol.SupportedAttributesMessage:
		b.supported = protocol.NewAttributeSet(m.Attributes.Types()...)
		u = Update{Attribute: protocol.SupportedAttributes, Value: protocol.NewAttributeSet(m.Attributes.Types()...)}
	case protocol.BatteryMessage:
		level := int(m.Level)
		if level > 100 {
			level = 100
		}
		b.battery = level
		u = Update{Attribute: protocol.Battery, Value: level}
	case protocol.ChargeStatusMessage:
		b.charge = m.State
		u = Update{Attribute: protocol.ChargeStatus, Value: m.State}
	case protocol.DisplayNameMessage:
		b.name = m.Name
		u = Update{Attribute: protocol.DisplayName, Value: m.Name}
	case protocol.LockStatusMessage:
		b.locked = m.Locked
		u = Update{Attribute: protocol.LockStatus, Value: m.Locked}
	case protocol.BrightnessMessage:
		b.brightness = int(m.Level)
		u = Update{Attribute: protocol.Brightness, Value: int(m.Level)}
	default:
		b.mu.Unlock()
		return false
	}
	b.mu.Unlock()
	b.publish(u)
	return true
}

func (b *Base) publish(u Update) {
	b.notifier.publish(u)
}

// SupportedAttributes returns what the device reported it implements.
func (b *Base) SupportedAttributes() protocol.AttributeSet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return protocol.NewAttributeSet(b.supported.Types()...)
}

// BatteryLevel returns 0-100, or BatteryUnknown.
func (b *Base) BatteryLevel() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.battery
}

// ChargeState returns ChargeUnknown until the device reports it.
func (b *Base) ChargeState() protocol.ChargeState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.charge
}

// DisplayName is the user-assigned device name.
func (b *Base) DisplayName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Locked reports whether the device buttons are locked.
func (b *Base) Locked() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.locked
}

// Brightness returns 0-100, or -1 before the device reported it.
func (b *Base) Brightness() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.brightness
}

// SetLocked locks or unlocks the device buttons.
func (b *Base) SetLocked(ctx context.Context, locked bool) error {
	return b.send(ctx, protocol.LockStatusMessage{Locked: locked})
}

// SetBrightness sets LED brightness in percent.
func (b *Base) SetBrightness(ctx context.Context, level uint8) error {
	return b.send(ctx, protocol.BrightnessMessage{Level: level})
}

func (b *Base) send(ctx context.Context, msg protocol.Encoder) error {
	b.mu.RLock()
	s := b.sender
	b.mu.RUnlock()
	if s == nil {
		return ErrNotBound
	}
	return s.Send(ctx, msg)
}
