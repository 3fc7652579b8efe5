// Package device holds the decoded state of a Pax device. A Variant owns the
// attribute values for one connected device; the session feeds it decoded
// messages and observers receive ordered updates.
package device

import (
	"context"
	"errors"
	"strings"

	"github.com/chaz8081/paxctl/internal/ble/protocol"
)

// ErrNotBound is returned by commands issued before the session is usable.
var ErrNotBound = errors.New("device: no session bound")

// Type is the device model family.
type Type int

const (
	TypeUnknown Type = iota
	TypeEra          // Era-class pod devices
	TypePax3         // 3-class oven devices
)

func (t Type) String() string {
	switch t {
	case TypeEra:
		return "era"
	case TypePax3:
		return "pax3"
	default:
		return "unknown"
	}
}

// knownModels maps normalised model-number prefixes to a Type.
var knownModels = []struct {
	prefix string
	typ    Type
}{
	{"PAXERA", TypeEra},
	{"ERA", TypeEra},
	{"PAX3", TypePax3},
}

// Classify maps a Model Number string to a Type. Matching ignores case,
// spaces, dashes and underscores.
func Classify(model string) Type {
	norm := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\x00':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(model)))
	if norm == "" {
		return TypeUnknown
	}
	for _, m := range knownModels {
		if strings.HasPrefix(norm, m.prefix) {
			return m.typ
		}
	}
	return TypeUnknown
}

// Sender delivers commands to the device.
type Sender interface {
	Send(ctx context.Context, msg protocol.Encoder) error
}

// Update is one attribute change pushed to observers.
type Update struct {
	Attribute protocol.MessageType
	Value     any
}

// Variant is the per-model device state owned by a session.
type Variant interface {
	Type() Type
	// Common returns the state shared by every model.
	Common() *Base
	// Apply updates state from a decoded message and reports whether the
	// message was relevant to this model.
	Apply(msg protocol.Message) bool
	// SubscriptionAttributes lists what the session requests on startup.
	SubscriptionAttributes() protocol.AttributeSet
	// Bind attaches the command path once the session is usable.
	Bind(s Sender)
	// Close drops all observers.
	Close()
}

// New returns a fresh variant for t. Unknown types get a Base-only variant.
func New(t Type) Variant {
	switch t {
	case TypeEra:
		return NewEra()
	case TypePax3:
		return NewPax3()
	default:
		return NewGeneric()
	}
}
