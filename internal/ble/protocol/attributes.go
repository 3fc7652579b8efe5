package protocol

import (
	"slices"
	"strings"
)

// AttributeSet is a set of message types. It is used both to request
// updates from a device and to describe what a device supports.
type AttributeSet map[MessageType]struct{}

// NewAttributeSet returns a set holding types.
func NewAttributeSet(types ...MessageType) AttributeSet {
	s := make(AttributeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Add inserts types into the set.
func (s AttributeSet) Add(types ...MessageType) {
	for _, t := range types {
		s[t] = struct{}{}
	}
}

// Has reports whether t is in the set.
func (s AttributeSet) Has(t MessageType) bool {
	_, ok := s[t]
	return ok
}

// Len returns the number of types in the set.
func (s AttributeSet) Len() int { return len(s) }

// Union returns a new set holding the members of s and other.
func (s AttributeSet) Union(other AttributeSet) AttributeSet {
	out := make(AttributeSet, len(s)+len(other))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range other {
		out[t] = struct{}{}
	}
	return out
}

// Equal reports whether s and other hold the same types.
func (s AttributeSet) Equal(other AttributeSet) bool {
	if len(s) != len(other) {
		return false
	}
	for t := range s {
		if !other.Has(t) {
			return false
		}
	}
	return true
}

// Types returns the members in ascending order.
func (s AttributeSet) Types() []MessageType {
	out := make([]MessageType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (s AttributeSet) String() string {
	names := make([]string, 0, len(s))
	for _, t := range s.Types() {
		names = append(names, t.String())
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// Bitmask sets bit n for every member with raw value n. Members above
// MaxBitmaskType have no bit and are rejected.
func (s AttributeSet) Bitmask() (uint64, error) {
	var mask uint64
	for _, t := range s.Types() {
		if t > MaxBitmaskType {
			return 0, &UnsupportedAttributeError{Type: t}
		}
		mask |= 1 << uint(t)
	}
	return mask, nil
}

// AttributeSetFromBitmask is the inverse of Bitmask. Bits that do not
// correspond to an enumerated MessageType are ignored.
func AttributeSetFromBitmask(mask uint64) AttributeSet {
	s := make(AttributeSet)
	for _, t := range allTypes {
		if t > MaxBitmaskType {
			continue
		}
		if mask&(1<<uint(t)) != 0 {
			s[t] = struct{}{}
		}
	}
	return s
}
