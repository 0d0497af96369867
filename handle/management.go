package handle

// Management selects how a handle takes part in distributed reference
// counting.
type Management int8

const (
	// UnknownDeleter only appears in error reports.
	UnknownDeleter Management = -1
	// Unmanaged handles carry no credit; releasing them never talks to the
	// address service.
	Unmanaged Management = 0
	// Managed handles carry credit which is split when sent.
	Managed Management = 1
	// ManagedMoveCredit handles hand all of their credit to the first
	// message they are sent with.
	ManagedMoveCredit Management = 2
)

var managementNames = [...]string{
	"unknown_deleter",
	"unmanaged",
	"managed",
	"managed_move_credit",
}

// String returns the canonical name of m, "invalid" for unknown values.
func (m Management) String() string {
	i := int(m) + 1
	if i < 0 || i >= len(managementNames) {
		return "invalid"
	}
	return managementNames[i]
}

// Valid reports whether m is one of the three usable modes.
func (m Management) Valid() bool {
	return m >= Unmanaged && m <= ManagedMoveCredit
}

// IsManaged reports whether m takes part in credit accounting.
func (m Management) IsManaged() bool {
	return m == Managed || m == ManagedMoveCredit
}
