package gid

// Bit layout of the most significant word.
const (
	LocalityIDMask  uint64 = 0xffffffff00000000
	LocalityIDShift        = 32

	WasSplitMask   uint64 = 0x80000000 // bit 31
	HasCreditsMask uint64 = 0x40000000 // bit 30
	LockMask       uint64 = 0x20000000 // bit 29

	CreditShift          = 24
	CreditBaseMask uint64 = 0x1f
	CreditMask            = CreditBaseMask << CreditShift // bits 24..28

	DontCacheMask  uint64 = 0x800000 // bit 23
	MigratableMask uint64 = 0x400000 // bit 22

	ComponentTypeShift           = 1
	ComponentTypeBaseMask uint64 = 0xfffff
	ComponentTypeMask            = ComponentTypeBaseMask << ComponentTypeShift

	DynamicallyAssignedMask uint64 = 0x1

	// CreditBitsMask covers everything the credit protocol owns.
	CreditBitsMask = CreditMask | WasSplitMask | HasCreditsMask
	// InternalBitsMask covers all bits that do not contribute to identity.
	InternalBitsMask = CreditBitsMask | LockMask | DontCacheMask | MigratableMask
)

const (
	// MaxLog2Credit is the largest exponent the credit field can hold.
	MaxLog2Credit = 31
	// DefaultInitialLog2 is the exponent of the credit assigned to newly
	// created components and of each replenished batch.
	DefaultInitialLog2 = MaxLog2Credit
	// DefaultInitialCredit is 2^DefaultInitialLog2.
	DefaultInitialCredit int64 = 1 << DefaultInitialLog2
)

func internalBits(msb uint64) uint64 { return msb & InternalBitsMask }
