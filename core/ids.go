package core

import "fmt"

// LocalityID identifies one participating process.
type LocalityID uint32

// InvalidLocality is the locality id of identifiers that are not bound to
// any locality.
const InvalidLocality = ^LocalityID(0)

// ComponentType tags the kind of component an identifier refers to.
// Only the low 20 bits are representable inside a GID.
type ComponentType uint32

const (
	// ComponentInvalid marks an unresolved or unknown component type.
	ComponentInvalid ComponentType = 0
	// ComponentRuntimeSupport is the per-locality runtime support component.
	ComponentRuntimeSupport ComponentType = 1
	// ComponentFirstUser is the first component type available to users.
	ComponentFirstUser ComponentType = 16

	// MaxComponentType is the largest component type a GID can carry.
	MaxComponentType ComponentType = 0xfffff
)

// Address is the resolved location of a component: the locality it lives
// on, its type and its locality-local virtual address.
type Address struct {
	Locality LocalityID    `json:"locality"`
	Type     ComponentType `json:"type"`
	LVA      uint64        `json:"lva"`
}

// Valid reports whether the address refers to a known component type.
func (a Address) Valid() bool {
	return a.Type != ComponentInvalid && a.Locality != InvalidLocality
}

// String returns a string representation of the Address.
func (a Address) String() string {
	return fmt.Sprintf("Addr(%d:%d:%#x)", a.Locality, a.Type, a.LVA)
}
