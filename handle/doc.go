// Package handle implements the identifier handle: a locally
// reference-counted wrapper around a shared gid.Cell.
//
// All local copies of a handle share one Impl. Clone and Release adjust an
// intrusive atomic count; the release that drops it to zero runs the
// deleter of the handle's management mode exactly once:
//
//	Unmanaged               free the local structure
//	Managed                 free, or return the credit (distributed decrement)
//	ManagedMoveCredit       same as Managed
//
// The distributed decrement either destroys a never-shared component
// directly (its address is in the local resolution cache and no copy ever
// left the locality) or sends the remaining credit to the address service
// in the background. Once the runtime is tearing down no traffic is started
// at all.
package handle
