// Package gid implements the 128-bit global identifier.
//
// A GID is two 64-bit words. The most significant word carries, besides the
// locality id and the component type, the reference-count metadata of the
// distributed garbage collector:
//
//	63            32 31  30  29  28   24 23  22  21  20        1  0
//	┌───────────────┬───┬───┬───┬───────┬───┬───┬───┬───────────┬───┐
//	│ locality + 1  │ S │ V │ L │ log2  │ D │ M │   │ comp type │ A │
//	└───────────────┴───┴───┴───┴───────┴───┴───┴───┴───────────┴───┘
//
//	S  was split (a copy left the local-only status at some point)
//	V  has credits (the credit field is valid)
//	L  lock bit (per-identifier spinlock, see Cell)
//	D  do not cache the resolved address
//	M  migratable
//	A  dynamically assigned
//
// The credit of a valid GID is 2^log2 and therefore always a power of two.
//
// GID is a plain comparable value. Identifiers that are shared between
// goroutines live in a Cell, whose most significant word is accessed
// atomically and whose lock bit guards every read-modify-write of the credit
// fields.
package gid
