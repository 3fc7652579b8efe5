package device

import "github.com/chaz8081/paxctl/internal/ble/protocol"

// Era is the pod-based model.
type Era struct {
	*Base
	podInserted bool
}

var _ Variant = (*Era)(nil)

// NewEra returns an Era with no reported state.
func NewEra() *Era {
	return &Era{Base: NewGeneric()}
}

// Type reports TypeEra.
func (e *Era) Type() Type { return TypeEra }

// SubscriptionAttributes adds the pod, lock and brightness attributes.
func (e *Era) SubscriptionAttributes() protocol.AttributeSet {
	set := e.Base.SubscriptionAttributes()
	set.Add(protocol.PodInserted, protocol.LockStatus, protocol.Brightness)
	return set
}

// Apply handles PodInserted and defers everything else to Base.
func (e *Era) Apply(msg protocol.Message) bool {
	m, ok := msg.(protocol.PodInsertedMessage)
	if !ok {
		return e.Base.Apply(msg)
	}
	e.mu.Lock()
	e.podInserted = m.Inserted
	e.mu.Unlock()
	e.publish(Update{Attribute: protocol.PodInserted, Value: m.Inserted})
	return true
}

// PodInserted reports whether a pod is seated.
func (e *Era) PodInserted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.podInserted
}
